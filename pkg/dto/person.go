package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
)

type RegisterOwnerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type OwnerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt string    `json:"created_at"`
}

type AuthResponse struct {
	Token     string        `json:"token"`
	ExpiresAt string        `json:"expires_at"`
	Owner     OwnerResponse `json:"owner"`
}

func NewOwnerResponse(o *models.Owner) OwnerResponse {
	return OwnerResponse{
		ID:        o.ID,
		Name:      o.Name,
		Email:     o.Email,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

type VisitorRequest struct {
	Name            string `json:"name" binding:"required"`
	ProfileImageURL string `json:"profile_image_url"`
}

type VisitorResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	FaceCount       int       `json:"face_count"`
	CreatedAt       string    `json:"created_at"`
}

func NewVisitorResponse(v *models.Visitor, faceCount int) VisitorResponse {
	return VisitorResponse{
		ID:              v.ID,
		Name:            v.Name,
		ProfileImageURL: v.ProfileImageURL,
		FaceCount:       faceCount,
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
	}
}

type FaceTemplateResponse struct {
	ID        uuid.UUID `json:"id"`
	VisitorID uuid.UUID `json:"visitor_id"`
	Quality   float32   `json:"quality"`
	SourceKey string    `json:"source_key"`
	CreatedAt string    `json:"created_at"`
}

func NewFaceTemplateResponse(t *models.FaceTemplate) FaceTemplateResponse {
	return FaceTemplateResponse{
		ID:        t.ID,
		VisitorID: t.VisitorID,
		Quality:   t.Quality,
		SourceKey: t.SourceKey,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}
