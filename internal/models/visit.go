package models

import (
	"time"

	"github.com/google/uuid"
)

type VisitStatus string

const (
	VisitStatusPending VisitStatus = "pending"
	VisitStatusGranted VisitStatus = "granted"
	VisitStatusDenied  VisitStatus = "denied"
)

// Terminal reports whether no further transition may leave the status.
func (s VisitStatus) Terminal() bool {
	return s == VisitStatusGranted || s == VisitStatusDenied
}

func (s VisitStatus) Valid() bool {
	return s == VisitStatusPending || s.Terminal()
}

// Visit is the durable record of one recognition event at an owner's door.
type Visit struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	VisitorID     *uuid.UUID  `json:"visitor_id,omitempty" db:"visitor_id"`
	OwnerID       uuid.UUID   `json:"owner_id" db:"owner_id"`
	ImageURL      string      `json:"image_url" db:"image_url"`
	DetectedLabel string      `json:"detected_label" db:"detected_label"`
	Status        VisitStatus `json:"status" db:"status"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	DecidedAt     *time.Time  `json:"decided_at,omitempty" db:"decided_at"`
	UnlockedAt    *time.Time  `json:"unlocked_at,omitempty" db:"unlocked_at"`
}

// VisitFilter narrows visit listings. Zero values mean "any".
type VisitFilter struct {
	OwnerID *uuid.UUID
	Status  VisitStatus
	Limit   int
	Offset  int
}

type VisitStats struct {
	Total   int `json:"total_visits"`
	Pending int `json:"pending_visits"`
	Granted int `json:"granted_visits"`
	Denied  int `json:"denied_visits"`
	Today   int `json:"today_visits"`
}
