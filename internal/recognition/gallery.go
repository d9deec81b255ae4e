package recognition

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
)

// Label is one enrolled identity.
type Label struct {
	Name      string     `json:"name"`
	VisitorID *uuid.UUID `json:"visitor_id,omitempty"`
}

// Gallery is an immutable classifier together with the labels its indices refer to.
type Gallery struct {
	classifier Classifier
	labels     []Label
}

func NewGallery(classifier Classifier, labels []Label) *Gallery {
	return &Gallery{classifier: classifier, labels: append([]Label(nil), labels...)}
}

// Size returns the number of labels.
func (g *Gallery) Size() int {
	if g == nil {
		return 0
	}
	return len(g.labels)
}

func (g *Gallery) Labels() []Label {
	return append([]Label(nil), g.labels...)
}

func (g *Gallery) label(i int) (Label, bool) {
	if i < 0 || i >= len(g.labels) {
		return Label{}, false
	}
	return g.labels[i], true
}

// GalleryLoader builds a Gallery from persisted enrollments.
type GalleryLoader interface {
	Load(ctx context.Context) (*Gallery, error)
}

// Embedder turns an aligned face crop into an L2-normalized embedding.
type Embedder interface {
	Embed(face image.Image) ([]float32, error)
}

// TemplateSource lists enrolled face templates.
type TemplateSource interface {
	ListFaceTemplates(ctx context.Context) ([]models.FaceTemplate, error)
}

// TemplateLoader builds an embedding gallery from stored face templates.
type TemplateLoader struct {
	Source   TemplateSource
	Embedder Embedder
}

func (l TemplateLoader) Load(ctx context.Context) (*Gallery, error) {
	templates, err := l.Source.ListFaceTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list face templates: %w", err)
	}

	index := make(map[uuid.UUID]int)
	var labels []Label
	var entries []templateEntry
	for _, t := range templates {
		if len(t.Embedding) == 0 {
			slog.Warn("face template without embedding", "template", t.ID)
			continue
		}
		i, ok := index[t.VisitorID]
		if !ok {
			id := t.VisitorID
			i = len(labels)
			index[id] = i
			labels = append(labels, Label{Name: t.VisitorName, VisitorID: &id})
		}
		entries = append(entries, templateEntry{label: i, embedding: t.Embedding})
	}

	slog.Info("face gallery loaded", "labels", len(labels), "templates", len(entries))
	return NewGallery(&EmbeddingClassifier{embedder: l.Embedder, templates: entries}, labels), nil
}

type templateEntry struct {
	label     int
	embedding []float32
}

// EmbeddingClassifier classifies a face by its nearest enrolled embedding.
// Confidence is (1 - cosine similarity) * 100.
type EmbeddingClassifier struct {
	embedder  Embedder
	templates []templateEntry
}

func NewEmbeddingClassifier(embedder Embedder) *EmbeddingClassifier {
	return &EmbeddingClassifier{embedder: embedder}
}

// Add enrolls an embedding under label.
func (c *EmbeddingClassifier) Add(label int, embedding []float32) {
	c.templates = append(c.templates, templateEntry{label: label, embedding: embedding})
}

func (c *EmbeddingClassifier) Predict(face image.Image) (int, float64, error) {
	if len(c.templates) == 0 {
		return -1, math.Inf(1), nil
	}
	emb, err := c.embedder.Embed(face)
	if err != nil {
		return -1, 0, fmt.Errorf("embed face: %w", err)
	}

	best, bestSim := -1, math.Inf(-1)
	for _, t := range c.templates {
		sim := CosineSimilarity(emb, t.embedding)
		if sim > bestSim {
			best, bestSim = t.label, sim
		}
	}
	return best, (1 - bestSim) * 100, nil
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when the
// vectors differ in length or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
