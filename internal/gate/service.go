// Package gate wires recognition to visits: it picks the best burst frame,
// resolves the visitor, stores the capture, opens a visit and applies the
// auto-grant policy.
package gate

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/recognition"
	"github.com/your-org/doorgate/internal/visit"
)

// ImageStore persists a capture and returns its stable reference.
type ImageStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// Policy decides what happens after a visitor is resolved.
type Policy struct {
	// AutoGrantKnown grants visits whose visitor resolved to an enrolled identity.
	AutoGrantKnown bool
}

// Outcome is the result of one recognition request.
type Outcome struct {
	Visit       *models.Visit           `json:"visit"`
	Resolution  *recognition.Resolution `json:"resolution"`
	Selection   *burst.Selection        `json:"selection,omitempty"`
	AutoGranted bool                    `json:"auto_granted"`
}

type Service struct {
	selector *burst.Selector
	resolver *recognition.Resolver
	visits   *visit.Lifecycle
	images   ImageStore
	fetcher  *Fetcher
	policy   Policy
}

func NewService(
	selector *burst.Selector,
	resolver *recognition.Resolver,
	visits *visit.Lifecycle,
	images ImageStore,
	fetcher *Fetcher,
	policy Policy,
) *Service {
	return &Service{
		selector: selector,
		resolver: resolver,
		visits:   visits,
		images:   images,
		fetcher:  fetcher,
		policy:   policy,
	}
}

// SubmitBurst selects the best frame of a burst, resolves who is in it and
// opens a visit for ownerID.
func (s *Service) SubmitBurst(ctx context.Context, ownerID uuid.UUID, frames []burst.Frame) (*Outcome, error) {
	sel, err := s.selector.SelectBest(frames)
	if err != nil {
		return nil, err
	}
	slog.Info("burst frame selected", "owner", ownerID, "frame", sel.ID, "index", sel.Index, "score", sel.Score)

	res, err := s.resolver.Resolve(ctx, []image.Image{sel.Image})
	if err != nil {
		return nil, fmt.Errorf("resolve visitor: %w", err)
	}

	data, err := quality.EncodeJPEG(sel.Image, 90)
	if err != nil {
		return nil, err
	}
	url, err := s.images.Put(ctx, data, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("store capture: %w", err)
	}

	out, err := s.open(ctx, ownerID, url, res)
	if err != nil {
		return nil, err
	}
	out.Selection = sel
	return out, nil
}

// DetectVisitor resolves the visitor across already uploaded images. The
// visit references the representative image's original URL.
func (s *Service) DetectVisitor(ctx context.Context, ownerID uuid.UUID, urls []string) (*Outcome, error) {
	if len(urls) == 0 {
		return nil, burst.ErrEmptyBurst
	}

	var imgs []image.Image
	var sources []string
	for _, u := range urls {
		data, err := s.fetcher.Fetch(ctx, u)
		if err != nil {
			slog.Warn("skip image", "url", u, "error", err)
			continue
		}
		img, err := quality.DecodeFrame(data)
		if err != nil {
			slog.Warn("skip image", "url", u, "error", err)
			continue
		}
		imgs = append(imgs, img)
		sources = append(sources, u)
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("%w: none of %d images could be loaded", burst.ErrNoDecodableFrame, len(urls))
	}

	res, err := s.resolver.Resolve(ctx, imgs)
	if err != nil {
		return nil, fmt.Errorf("resolve visitor: %w", err)
	}
	return s.open(ctx, ownerID, sources[res.RepresentativeIndex], res)
}

func (s *Service) open(ctx context.Context, ownerID uuid.UUID, imageURL string, res *recognition.Resolution) (*Outcome, error) {
	v, err := s.visits.Create(ctx, visit.CreateParams{
		VisitorID:     res.VisitorID,
		OwnerID:       ownerID,
		ImageURL:      imageURL,
		DetectedLabel: res.Identity,
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Visit: v, Resolution: res}
	if s.policy.AutoGrantKnown && res.Known() && res.VisitorID != nil {
		granted, err := s.visits.Transition(ctx, v.ID, models.VisitStatusGranted)
		if err != nil {
			// The visit stays pending for a manual decision.
			slog.Error("auto grant", "visit", v.ID, "error", err)
			return out, nil
		}
		out.Visit = granted
		out.AutoGranted = true
	}
	return out, nil
}
