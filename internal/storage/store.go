package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
)

// ErrDuplicate is returned when a unique key (owner email) already exists.
var ErrDuplicate = errors.New("duplicate record")

// Store is the relational store behind visits, people and devices. Getters
// return (nil, nil) when the row does not exist.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	CreateOwner(ctx context.Context, o *models.Owner) error
	GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error)
	GetOwnerByEmail(ctx context.Context, email string) (*models.Owner, error)

	CreateVisitor(ctx context.Context, v *models.Visitor) error
	GetVisitor(ctx context.Context, id uuid.UUID) (*models.Visitor, error)
	ListVisitors(ctx context.Context) ([]models.Visitor, error)
	UpdateVisitor(ctx context.Context, v *models.Visitor) (bool, error)
	DeleteVisitor(ctx context.Context, id uuid.UUID) (bool, error)

	AddFaceTemplate(ctx context.Context, t *models.FaceTemplate) error
	ListFaceTemplates(ctx context.Context) ([]models.FaceTemplate, error)
	CountFaceTemplates(ctx context.Context, visitorID uuid.UUID) (int, error)

	RegisterDevice(ctx context.Context, d *models.DeviceRegistration) error
	ListDevicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.DeviceRegistration, error)
	UnregisterDevice(ctx context.Context, ownerID uuid.UUID, token string) (bool, error)
	RemoveDevices(ctx context.Context, tokens []string) (int, error)

	CreateVisit(ctx context.Context, v *models.Visit) error
	GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to models.VisitStatus, at time.Time) (bool, error)
	ClaimUnlock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListVisits(ctx context.Context, f models.VisitFilter) ([]models.Visit, error)
	VisitStats(ctx context.Context, ownerID uuid.UUID, since time.Time) (*models.VisitStats, error)
}

// ImageStore keeps uploaded captures and returns a stable reference to each.
type ImageStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
}

// ErrImageNotFound is returned by ImageStore.Get for unknown keys.
var ErrImageNotFound = errors.New("image not found")

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
