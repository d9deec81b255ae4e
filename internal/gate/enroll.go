package gate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/recognition"
)

var ErrVisitorNotFound = errors.New("visitor not found")

// FaceEmbedder embeds the most confident face of an enrollment photo.
type FaceEmbedder interface {
	EmbedBestFace(img image.Image) ([]float32, float32, error)
}

// TemplateStore is the persistence used by enrollment.
type TemplateStore interface {
	GetVisitor(ctx context.Context, id uuid.UUID) (*models.Visitor, error)
	AddFaceTemplate(ctx context.Context, t *models.FaceTemplate) error
}

// GallerySink receives a freshly loaded gallery.
type GallerySink interface {
	SetGallery(g *recognition.Gallery)
}

// Enroller adds face templates for visitors and rebuilds the live gallery.
type Enroller struct {
	embedder FaceEmbedder
	store    TemplateStore
	images   ImageStore
	loader   recognition.GalleryLoader
	sink     GallerySink
}

func NewEnroller(embedder FaceEmbedder, store TemplateStore, images ImageStore, loader recognition.GalleryLoader, sink GallerySink) *Enroller {
	return &Enroller{embedder: embedder, store: store, images: images, loader: loader, sink: sink}
}

// Enroll stores one face template for visitorID from an encoded photo and
// reloads the gallery.
func (e *Enroller) Enroll(ctx context.Context, visitorID uuid.UUID, data []byte, contentType string) (*models.FaceTemplate, error) {
	v, err := e.store.GetVisitor(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("get visitor: %w", err)
	}
	if v == nil {
		return nil, ErrVisitorNotFound
	}

	img, err := quality.DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	emb, score, err := e.embedder.EmbedBestFace(img)
	if err != nil {
		return nil, err
	}

	key, err := e.images.Put(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store enrollment photo: %w", err)
	}

	t := &models.FaceTemplate{
		VisitorID:   v.ID,
		VisitorName: v.Name,
		Embedding:   emb,
		Quality:     score,
		SourceKey:   key,
	}
	if err := e.store.AddFaceTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("add face template: %w", err)
	}
	slog.Info("face enrolled", "visitor", v.ID, "name", v.Name, "quality", score)

	if err := e.Reload(ctx); err != nil {
		// The template is stored; the next reload picks it up.
		slog.Error("reload gallery", "error", err)
	}
	return t, nil
}

// Reload rebuilds the gallery from stored templates and swaps it in.
func (e *Enroller) Reload(ctx context.Context) error {
	g, err := e.loader.Load(ctx)
	if err != nil {
		return err
	}
	e.sink.SetGallery(g)
	return nil
}
