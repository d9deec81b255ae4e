package recognition

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/your-org/doorgate/internal/observability"
)

// FacePadding is the fraction of a detector box added on every side before a
// face is embedded. Enrollment and matching must crop the same way.
const FacePadding = 0.1

// FaceCrop cuts the padded face around box out of img.
func FaceCrop(img image.Image, box image.Rectangle) image.Image {
	return imaging.Crop(img, PadFace(box, img.Bounds()))
}

// PadFace grows box by FacePadding of its size and clips it to bounds.
func PadFace(box, bounds image.Rectangle) image.Rectangle {
	dx := int(float64(box.Dx()) * FacePadding)
	dy := int(float64(box.Dy()) * FacePadding)
	return image.Rect(box.Min.X-dx, box.Min.Y-dy, box.Max.X+dx, box.Max.Y+dy).Intersect(bounds)
}

// Matcher detects faces and classifies each one against the current gallery.
type Matcher struct {
	detector    Detector
	gallery     atomic.Pointer[Gallery]
	threshold   float64
	minFaceSize int
}

// NewMatcher returns a Matcher. A nil gallery leaves the matcher unavailable
// until SetGallery is called.
func NewMatcher(detector Detector, gallery *Gallery, threshold float64, minFaceSize int) *Matcher {
	m := &Matcher{detector: detector, threshold: threshold, minFaceSize: minFaceSize}
	if gallery != nil {
		m.gallery.Store(gallery)
	}
	return m
}

// SetGallery swaps in a freshly loaded gallery.
func (m *Matcher) SetGallery(g *Gallery) {
	m.gallery.Store(g)
}

// Gallery returns the current gallery, or nil.
func (m *Matcher) Gallery() *Gallery {
	return m.gallery.Load()
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns one result per detected face, in detector order. Faces whose
// confidence is not below the threshold are reported as Unknown.
func (m *Matcher) Match(img image.Image) ([]MatchResult, error) {
	g := m.gallery.Load()
	if g == nil {
		return nil, ErrGalleryUnavailable
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-area image", ErrDetection)
	}

	start := time.Now()
	dets, err := m.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	bounds := img.Bounds()
	results := make([]MatchResult, 0, len(dets))
	for _, d := range dets {
		box := d.Box.Intersect(bounds)
		if box.Dx() < m.minFaceSize || box.Dy() < m.minFaceSize {
			continue
		}
		observability.FacesDetected.Inc()

		res := MatchResult{Identity: Unknown, Confidence: NoMatchConfidence, Box: box}
		if g.Size() > 0 {
			start = time.Now()
			label, conf, err := g.classifier.Predict(FaceCrop(img, box))
			observability.InferenceDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
			if err != nil {
				slog.Warn("classify face", "box", box, "error", err)
				results = append(results, res)
				continue
			}
			if math.IsNaN(conf) || math.IsInf(conf, 0) {
				results = append(results, res)
				continue
			}
			res.Confidence = conf
			if l, ok := g.label(label); ok && conf < m.threshold {
				res.Identity = l.Name
				res.VisitorID = l.VisitorID
				observability.FacesAccepted.Inc()
			}
		}
		results = append(results, res)
	}
	return results, nil
}
