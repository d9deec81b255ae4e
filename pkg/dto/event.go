package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
)

type VisitResponse struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	VisitorID     *uuid.UUID `json:"visitor_id,omitempty"`
	DetectedLabel string     `json:"detected_label"`
	ImageURL      string     `json:"image_url"`
	Status        string     `json:"status"`
	CreatedAt     string     `json:"created_at"`
	DecidedAt     string     `json:"decided_at,omitempty"`
	UnlockedAt    string     `json:"unlocked_at,omitempty"`
}

func NewVisitResponse(v *models.Visit) VisitResponse {
	r := VisitResponse{
		ID:            v.ID,
		OwnerID:       v.OwnerID,
		VisitorID:     v.VisitorID,
		DetectedLabel: v.DetectedLabel,
		ImageURL:      v.ImageURL,
		Status:        string(v.Status),
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
	}
	if v.DecidedAt != nil {
		r.DecidedAt = v.DecidedAt.Format(time.RFC3339)
	}
	if v.UnlockedAt != nil {
		r.UnlockedAt = v.UnlockedAt.Format(time.RFC3339)
	}
	return r
}

type VisitListResponse struct {
	Visits []VisitResponse `json:"visits"`
	Total  int             `json:"total"`
}

type UpdateVisitStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type VisitStatusResponse struct {
	VisitID uuid.UUID `json:"visit_id"`
	Status  string    `json:"status"`
}

type UnlockResponse struct {
	VisitID uuid.UUID `json:"visit_id"`
	Unlock  bool      `json:"unlock"`
}

type VisitQuery struct {
	OwnerID string `form:"owner_id"`
	Status  string `form:"status"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// WSEvent is a WebSocket message for live visit updates.
type WSEvent struct {
	Type    string        `json:"type"`
	OwnerID uuid.UUID     `json:"owner_id"`
	Visit   VisitEventDTO `json:"visit"`
}

type VisitEventDTO struct {
	ID            uuid.UUID  `json:"id"`
	VisitorID     *uuid.UUID `json:"visitor_id,omitempty"`
	DetectedLabel string     `json:"detected_label"`
	ImageURL      string     `json:"image_url"`
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
}

func NewWSEvent(ev models.VisitEvent) WSEvent {
	return WSEvent{
		Type:    string(ev.Type),
		OwnerID: ev.OwnerID,
		Visit: VisitEventDTO{
			ID:            ev.VisitID,
			VisitorID:     ev.VisitorID,
			DetectedLabel: ev.DetectedLabel,
			ImageURL:      ev.ImageURL,
			Status:        string(ev.Status),
			Timestamp:     ev.Timestamp.Format(time.RFC3339),
		},
	}
}
