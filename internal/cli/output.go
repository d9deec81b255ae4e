package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/pkg/dto"
)

// FrameScore is one scored frame of a burst.
type FrameScore struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Metrics quality.Metrics `json:"metrics"`
	Error   string          `json:"error,omitempty"`
}

// BurstReport is what select and capture print.
type BurstReport struct {
	Frames      []FrameScore             `json:"frames"`
	Best        string                   `json:"best"`
	BestIndex   int                      `json:"best_index"`
	Recognition *dto.RecognitionResponse `json:"recognition,omitempty"`
}

func writeReport(w io.Writer, format string, r BurstReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	for _, f := range r.Frames {
		if f.Error != "" {
			fmt.Fprintf(w, "%-24s skipped: %s\n", f.ID, f.Error)
			continue
		}
		fmt.Fprintf(w, "%-24s score=%.4f focus=%.1f brightness=%.1f contrast=%.1f face=%.3f\n",
			f.ID, f.Score, f.Metrics.Focus, f.Metrics.Brightness, f.Metrics.Contrast, f.Metrics.FaceAreaRatio)
	}
	fmt.Fprintf(w, "best: %s (index %d)\n", r.Best, r.BestIndex)

	if rec := r.Recognition; rec != nil {
		fmt.Fprintf(w, "identity: %s (known=%t)\n", rec.Identity, rec.Known)
		fmt.Fprintf(w, "visit: %s status=%s\n", rec.Visit.ID, rec.Visit.Status)
	}
	return nil
}
