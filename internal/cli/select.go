package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/capture"
	"github.com/your-org/doorgate/internal/quality"
)

type submitOptions struct {
	submit  bool
	ownerID string
}

func (s *submitOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&s.submit, "submit", false, "submit the burst to the API for recognition")
	cmd.Flags().StringVar(&s.ownerID, "owner", "", "owner ID the visit belongs to (with --submit)")
}

// NewSelectCommand scores a directory of frames and reports the best one.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	var sub submitOptions

	cmd := &cobra.Command{
		Use:          "select <dir>",
		Short:        "Score a burst stored as image files and pick the best frame",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := capture.LoadDir(args[0])
			if err != nil {
				return err
			}
			return processBurst(cmd, rootOpts, sub, frames)
		},
	}
	sub.bind(cmd)
	return cmd
}

// processBurst scores frames, optionally submits them and prints a report.
func processBurst(cmd *cobra.Command, rootOpts *RootOptions, sub submitOptions, frames []burst.Frame) error {
	if sub.submit && sub.ownerID == "" {
		return errOwnerRequired
	}

	report, err := scoreBurst(frames)
	if err != nil {
		return err
	}

	if sub.submit {
		ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
		defer cancel()
		rec, err := NewClient(rootOpts.APIURL, rootOpts.APIKey, rootOpts.Timeout).SubmitBurst(ctx, sub.ownerID, frames)
		if err != nil {
			return err
		}
		report.Recognition = rec
	}
	return writeReport(cmd.OutOrStdout(), rootOpts.Format, report)
}

func scoreBurst(frames []burst.Frame) (BurstReport, error) {
	scorer := quality.NewScorer()

	var report BurstReport
	for _, f := range frames {
		fs := FrameScore{ID: f.ID}
		img, err := quality.DecodeFrame(f.Data)
		if err == nil {
			var res quality.Result
			res, err = scorer.Score(img)
			fs.Score, fs.Metrics = res.Score, res.Metrics
		}
		if err != nil {
			fs.Error = err.Error()
		}
		report.Frames = append(report.Frames, fs)
	}

	best, err := burst.NewSelector(scorer).SelectBest(frames)
	if err != nil {
		return report, err
	}
	report.Best, report.BestIndex = best.ID, best.Index
	return report, nil
}
