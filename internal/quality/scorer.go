package quality

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
)

// FaceLocator finds face regions in a frame. Implementations must be safe
// for concurrent use.
type FaceLocator interface {
	LocateFaces(img image.Image) ([]image.Rectangle, error)
}

// Result is the outcome of scoring one frame.
type Result struct {
	Metrics Metrics `json:"metrics"`
	Score   float64 `json:"score"`
}

// Scorer computes hybrid quality scores. A Scorer holds no mutable state and
// may be shared between goroutines.
type Scorer struct {
	faces   FaceLocator
	maxDim  int
	weights Weights
}

type Option func(*Scorer)

// WithFaceLocator enables the face prominence metric.
func WithFaceLocator(l FaceLocator) Option {
	return func(s *Scorer) { s.faces = l }
}

// WithMaxDimension downscales frames whose longest side exceeds n pixels
// before the pixel metrics are computed. n <= 0 disables downscaling.
func WithMaxDimension(n int) Option {
	return func(s *Scorer) { s.maxDim = n }
}

func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{maxDim: 640, weights: DefaultWeights}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Measure computes the raw metrics of img.
func (s *Scorer) Measure(img image.Image) (Metrics, error) {
	if img == nil || img.Bounds().Empty() {
		return Metrics{}, fmt.Errorf("%w: zero area", ErrInvalidFrame)
	}

	var ratio float64
	if s.faces != nil {
		faces, err := s.faces.LocateFaces(img)
		if err != nil {
			slog.Warn("locate faces for quality", "error", err)
		} else {
			ratio = faceAreaRatio(faces, img.Bounds())
		}
	}

	work := img
	b := img.Bounds()
	if s.maxDim > 0 && (b.Dx() > s.maxDim || b.Dy() > s.maxDim) {
		work = imaging.Fit(img, s.maxDim, s.maxDim, imaging.Box)
	}
	gray := grayscale(work)

	return Metrics{
		Focus:         focus(gray),
		Brightness:    brightness(work),
		Contrast:      contrast(gray),
		FaceAreaRatio: ratio,
	}, nil
}

// Score measures img and folds the metrics into a hybrid score.
func (s *Scorer) Score(img image.Image) (Result, error) {
	m, err := s.Measure(img)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: m, Score: s.weights.Score(m)}, nil
}
