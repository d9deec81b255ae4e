// Package recognition matches faces in visitor images against an enrolled
// gallery and reduces per-face matches into one identity per capture event.
package recognition

import (
	"errors"
	"image"

	"github.com/google/uuid"
)

// Unknown is the identity of a face that matched no gallery label.
const Unknown = "unknown"

var (
	ErrDetection          = errors.New("face detection failed")
	ErrGalleryUnavailable = errors.New("face gallery unavailable")
)

// Detection is one face box reported by a Detector.
type Detection struct {
	Box   image.Rectangle
	Score float32
}

// Detector finds faces in an image, in detector order.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
}

// Classifier maps a face crop to a gallery label index and a distance-like
// confidence. Lower confidence means a stronger match.
type Classifier interface {
	Predict(face image.Image) (label int, confidence float64, err error)
}

// NoMatchConfidence is the confidence of a face that was never compared with
// a gallery template: the gallery was empty or classification failed.
const NoMatchConfidence = -1.0

// MatchResult is the classification of one detected face.
type MatchResult struct {
	Identity   string          `json:"identity"`
	VisitorID  *uuid.UUID      `json:"visitor_id,omitempty"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Accepted reports whether the face matched a gallery label.
func (m MatchResult) Accepted() bool {
	return m.Identity != Unknown
}
