package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/your-org/doorgate/internal/capture"
)

var errOwnerRequired = errors.New("--owner is required with --submit")

// NewCaptureCommand grabs a burst from a camera and scores it.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sub    submitOptions
		source string
		outDir string
		opts   capture.Options
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Grab a burst from a camera with ffmpeg and pick the best frame",
		Long: `Grab a short burst of stills from an RTSP/HTTP stream or a V4L2 device
(/dev/videoN) using ffmpeg, score every frame and report the best one.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := capture.Burst(cmd.Context(), source, opts)
			if err != nil {
				return err
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", outDir, err)
				}
				for _, f := range frames {
					if err := os.WriteFile(filepath.Join(outDir, f.ID+".jpg"), f.Data, 0o644); err != nil {
						return fmt.Errorf("write frame: %w", err)
					}
				}
			}
			return processBurst(cmd, rootOpts, sub, frames)
		},
	}

	cmd.Flags().StringVar(&source, "source", "/dev/video0", "camera URL or V4L2 device")
	cmd.Flags().IntVar(&opts.Frames, "frames", 5, "number of frames in the burst")
	cmd.Flags().IntVar(&opts.FPS, "fps", 5, "capture rate")
	cmd.Flags().IntVar(&opts.Width, "width", 1280, "frame width")
	cmd.Flags().StringVar(&outDir, "out", "", "also write the frames to this directory")
	sub.bind(cmd)
	return cmd
}
