package recognition

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/observability"
)

// FaceMatcher is the per-image matching step used by the Resolver.
type FaceMatcher interface {
	Match(img image.Image) ([]MatchResult, error)
}

// Resolution is the identity decided for one capture event.
type Resolution struct {
	Identity            string         `json:"identity"`
	VisitorID           *uuid.UUID     `json:"visitor_id,omitempty"`
	RepresentativeIndex int            `json:"representative_index"`
	Votes               map[string]int `json:"votes"`
	Faces               int            `json:"faces"`
	Accepted            int            `json:"accepted"`
}

// Known reports whether the event resolved to an enrolled identity.
func (r Resolution) Known() bool {
	return r.Identity != Unknown
}

// Resolver majority-votes accepted face matches across a batch of images.
type Resolver struct {
	matcher FaceMatcher
}

func NewResolver(matcher FaceMatcher) *Resolver {
	return &Resolver{matcher: matcher}
}

// Resolve matches every image and reduces the results. Images that fail
// detection are skipped. ErrGalleryUnavailable is returned as is.
func (r *Resolver) Resolve(ctx context.Context, images []image.Image) (*Resolution, error) {
	batches := make([][]MatchResult, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := r.matcher.Match(img)
		if err != nil {
			if errors.Is(err, ErrGalleryUnavailable) {
				return nil, err
			}
			slog.Warn("skip image", "index", i, "error", err)
			observability.FramesSkipped.WithLabelValues("detect").Inc()
			continue
		}
		batches[i] = matches
	}

	res := ResolveBatches(batches)
	if res.Known() {
		observability.Recognitions.WithLabelValues("known").Inc()
	} else {
		observability.Recognitions.WithLabelValues("unknown").Inc()
	}
	return &res, nil
}

type tally struct {
	count     int
	first     int
	visitorID *uuid.UUID
}

// ResolveBatches reduces per-image match results into one identity. The label
// with the most accepted faces wins; ties go to the label seen first. The
// representative index is the first image holding any detected face, else 0.
func ResolveBatches(batches [][]MatchResult) Resolution {
	res := Resolution{Identity: Unknown, Votes: map[string]int{}}
	tallies := map[string]*tally{}
	order := 0
	representative := -1

	for i, batch := range batches {
		for _, m := range batch {
			res.Faces++
			if representative < 0 {
				representative = i
			}
			if !m.Accepted() {
				continue
			}
			res.Accepted++
			t, ok := tallies[m.Identity]
			if !ok {
				t = &tally{first: order, visitorID: m.VisitorID}
				tallies[m.Identity] = t
			}
			t.count++
			order++
		}
	}

	var best *tally
	for label, t := range tallies {
		res.Votes[label] = t.count
		if best == nil || t.count > best.count || (t.count == best.count && t.first < best.first) {
			best = t
			res.Identity = label
			res.VisitorID = t.visitorID
		}
	}
	if representative > 0 {
		res.RepresentativeIndex = representative
	}
	return res
}
