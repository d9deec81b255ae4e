package models

import (
	"time"

	"github.com/google/uuid"
)

// Owner holds a door subscription; visits and devices belong to an owner.
type Owner struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Visitor is a person that may be enrolled into the recognition gallery.
type Visitor struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" db:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// FaceTemplate is one enrolled face embedding of a visitor.
type FaceTemplate struct {
	ID          uuid.UUID `json:"id" db:"id"`
	VisitorID   uuid.UUID `json:"visitor_id" db:"visitor_id"`
	VisitorName string    `json:"visitor_name,omitempty" db:"visitor_name"`
	Embedding   []float32 `json:"-" db:"embedding"`
	Quality     float32   `json:"quality" db:"quality"`
	SourceKey   string    `json:"source_key" db:"source_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
