package burst

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/your-org/doorgate/internal/observability"
	"github.com/your-org/doorgate/internal/quality"
)

var (
	ErrEmptyBurst       = errors.New("empty burst")
	ErrNoDecodableFrame = errors.New("no decodable frame in burst")
)

// Frame is one still from a capture burst. Image is decoded from Data when nil.
type Frame struct {
	ID    string
	Data  []byte
	Image image.Image
}

// Selection is the best frame of a burst.
type Selection struct {
	ID      string          `json:"id"`
	Index   int             `json:"index"`
	Score   float64         `json:"score"`
	Metrics quality.Metrics `json:"metrics"`
	Image   image.Image     `json:"-"`
	Data    []byte          `json:"-"`
}

// Scorer scores a decoded frame.
type Scorer interface {
	Score(img image.Image) (quality.Result, error)
}

// Selector picks the highest scoring frame from a burst.
type Selector struct {
	scorer Scorer
}

func NewSelector(scorer Scorer) *Selector {
	return &Selector{scorer: scorer}
}

// SelectBest scores every frame and returns the maximum. Equal scores keep the
// frame seen first. Frames that fail to decode or score are skipped.
func (s *Selector) SelectBest(frames []Frame) (*Selection, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyBurst
	}

	var best *Selection
	for i, f := range frames {
		img := f.Image
		if img == nil {
			decoded, err := quality.DecodeFrame(f.Data)
			if err != nil {
				slog.Warn("skip frame", "frame", frameName(f, i), "error", err)
				observability.FramesSkipped.WithLabelValues("decode").Inc()
				continue
			}
			img = decoded
		}

		res, err := s.scorer.Score(img)
		if err != nil {
			slog.Warn("skip frame", "frame", frameName(f, i), "error", err)
			observability.FramesSkipped.WithLabelValues("score").Inc()
			continue
		}
		observability.FramesScored.Inc()
		slog.Debug("frame scored", "frame", frameName(f, i), "score", res.Score)

		if best == nil || res.Score > best.Score {
			best = &Selection{
				ID:      f.ID,
				Index:   i,
				Score:   res.Score,
				Metrics: res.Metrics,
				Image:   img,
				Data:    f.Data,
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: %d frames rejected", ErrNoDecodableFrame, len(frames))
	}
	observability.HybridScore.Observe(best.Score)
	return best, nil
}

func frameName(f Frame, i int) string {
	if f.ID != "" {
		return f.ID
	}
	return fmt.Sprintf("#%d", i)
}
