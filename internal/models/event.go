package models

import (
	"time"

	"github.com/google/uuid"
)

type VisitEventType string

const (
	VisitEventCreated VisitEventType = "visit.created"
	VisitEventGranted VisitEventType = "visit.granted"
	VisitEventDenied  VisitEventType = "visit.denied"
)

// VisitEvent is published after a visit is created or wins a status transition.
// It is the message carried on the VISITS stream and broadcast to owner apps.
type VisitEvent struct {
	Type          VisitEventType `json:"type"`
	VisitID       uuid.UUID      `json:"visit_id"`
	OwnerID       uuid.UUID      `json:"owner_id"`
	VisitorID     *uuid.UUID     `json:"visitor_id,omitempty"`
	DetectedLabel string         `json:"detected_label"`
	ImageURL      string         `json:"image_url"`
	Status        VisitStatus    `json:"status"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewVisitEvent snapshots v into an event of the given type.
func NewVisitEvent(typ VisitEventType, v *Visit) VisitEvent {
	return VisitEvent{
		Type:          typ,
		VisitID:       v.ID,
		OwnerID:       v.OwnerID,
		VisitorID:     v.VisitorID,
		DetectedLabel: v.DetectedLabel,
		ImageURL:      v.ImageURL,
		Status:        v.Status,
		Timestamp:     time.Now().UTC(),
	}
}

// EventTypeFor maps a terminal status onto its event type.
func EventTypeFor(status VisitStatus) VisitEventType {
	switch status {
	case VisitStatusGranted:
		return VisitEventGranted
	case VisitStatusDenied:
		return VisitEventDenied
	default:
		return VisitEventCreated
	}
}
