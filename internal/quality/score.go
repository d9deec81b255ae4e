package quality

import (
	"errors"
	"math"
)

// ErrInvalidFrame is returned for frames that cannot be decoded or have no area.
var ErrInvalidFrame = errors.New("invalid frame")

// normEpsilon guards the min-max normalization against a zero range.
const normEpsilon = 1e-9

// Metrics are the raw quality measurements of one frame.
type Metrics struct {
	Focus         float64 `json:"focus"`
	Brightness    float64 `json:"brightness"`
	Contrast      float64 `json:"contrast"`
	FaceAreaRatio float64 `json:"face_area_ratio"`
}

// Weights combine normalized metrics into a hybrid score. They must sum to 1.
type Weights struct {
	Focus      float64
	Brightness float64
	Contrast   float64
	FaceArea   float64
}

// DefaultWeights favour sharpness and contrast over exposure and face size.
var DefaultWeights = Weights{Focus: 0.35, Brightness: 0.15, Contrast: 0.30, FaceArea: 0.20}

// ScoreMetrics computes the hybrid score of m with DefaultWeights.
func ScoreMetrics(m Metrics) float64 {
	return DefaultWeights.Score(m)
}

// Score normalizes the four metrics of m against each other and returns their
// weighted sum, clamped to [0, 1].
func (w Weights) Score(m Metrics) float64 {
	values := [4]float64{
		sanitize(m.Focus),
		sanitize(m.Brightness),
		sanitize(m.Contrast),
		sanitize(m.FaceAreaRatio),
	}
	weights := [4]float64{w.Focus, w.Brightness, w.Contrast, w.FaceArea}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo + normEpsilon

	var score float64
	for i, v := range values {
		score += (v - lo) / span * weights[i]
	}
	return clamp01(score)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
