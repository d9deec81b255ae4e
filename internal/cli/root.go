// Package cli implements gatectl, the door-side tool that scores bursts,
// submits them for recognition and drives the lock.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL  string
	APIKey  string
	Format  string // "json" | "text"
	Timeout time.Duration
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gatectl",
		Short: "Door-side control for doorgate",
		Long:  "Select the sharpest frame of a burst, submit it for recognition and actuate the lock once a visit is granted.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", envOr("DOORGATE_API_URL", "http://localhost:8080"), "doorgate API base URL")
	cmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", os.Getenv("DOORGATE_API_KEY"), "API key for device calls")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "http-timeout", 30*time.Second, "HTTP request timeout")

	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewCaptureCommand(opts))
	cmd.AddCommand(NewLockCommand(opts, LogActuator{}))

	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
