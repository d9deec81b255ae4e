package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

// Actuator drives the physical lock.
type Actuator interface {
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
}

// LogActuator only logs, for doors without a wired relay.
type LogActuator struct{}

func (LogActuator) Unlock(context.Context) error {
	slog.Info("lock released")
	return nil
}

func (LogActuator) Lock(context.Context) error {
	slog.Info("lock engaged")
	return nil
}

type lockOptions struct {
	visitID  string
	interval time.Duration
	timeout  time.Duration
	hold     time.Duration
}

// NewLockCommand polls the unlock claim for a visit and actuates once.
func NewLockCommand(rootOpts *RootOptions, actuator Actuator) *cobra.Command {
	var opts lockOptions

	cmd := &cobra.Command{
		Use:          "lock",
		Short:        "Wait for a visit to be granted and open the door once",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.visitID == "" {
				return fmt.Errorf("--visit is required")
			}
			client := NewClient(rootOpts.APIURL, rootOpts.APIKey, rootOpts.Timeout)
			opened, err := runLock(cmd.Context(), client, actuator, opts)
			if err != nil {
				return err
			}
			if opened {
				fmt.Fprintf(cmd.OutOrStdout(), "visit %s: door opened\n", opts.visitID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "visit %s: not granted, door stays locked\n", opts.visitID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.visitID, "visit", "", "visit ID to wait for")
	cmd.Flags().DurationVar(&opts.interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up after this long")
	cmd.Flags().DurationVar(&opts.hold, "hold", 5*time.Second, "how long the door stays unlocked")
	return cmd
}

type unlockClaimer interface {
	ClaimUnlock(ctx context.Context, visitID string) (bool, error)
}

// runLock returns true once the claim succeeded and the door cycled.
func runLock(ctx context.Context, client unlockClaimer, actuator Actuator, opts lockOptions) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		claimed, err := client.ClaimUnlock(ctx, opts.visitID)
		if err != nil {
			slog.Warn("claim unlock", "visit", opts.visitID, "error", err)
		}
		if claimed {
			if err := actuator.Unlock(ctx); err != nil {
				return false, fmt.Errorf("unlock: %w", err)
			}
			select {
			case <-time.After(opts.hold):
			case <-ctx.Done():
			}
			// Re-lock even if the wait was cut short.
			if err := actuator.Lock(context.Background()); err != nil {
				return true, fmt.Errorf("lock: %w", err)
			}
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}
