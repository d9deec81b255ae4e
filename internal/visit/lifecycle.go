// Package visit owns the visit state machine: pending visits move exactly once
// to granted or denied, and every committed change is published as an event.
package visit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/observability"
)

var (
	ErrVisitNotFound     = errors.New("visit not found")
	ErrInvalidTransition = errors.New("invalid visit status transition")
	ErrInvalidVisit      = errors.New("invalid visit")
)

// Store persists visits. GetVisit returns (nil, nil) for a missing visit.
// UpdateVisitStatus and ClaimUnlock are compare-and-set operations that
// report whether the row changed.
type Store interface {
	CreateVisit(ctx context.Context, v *models.Visit) error
	GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to models.VisitStatus, at time.Time) (bool, error)
	ClaimUnlock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListVisits(ctx context.Context, f models.VisitFilter) ([]models.Visit, error)
	VisitStats(ctx context.Context, ownerID uuid.UUID, since time.Time) (*models.VisitStats, error)
}

// EventPublisher delivers visit events to downstream consumers.
type EventPublisher interface {
	PublishVisitEvent(ctx context.Context, ev models.VisitEvent) error
}

// CreateParams describe a newly recognized visit.
type CreateParams struct {
	VisitorID     *uuid.UUID
	OwnerID       uuid.UUID
	ImageURL      string
	DetectedLabel string
}

// Lifecycle enforces pending -> granted | denied.
type Lifecycle struct {
	store     Store
	publisher EventPublisher
	now       func() time.Time
}

// NewLifecycle returns a Lifecycle. publisher may be nil.
func NewLifecycle(store Store, publisher EventPublisher) *Lifecycle {
	return &Lifecycle{store: store, publisher: publisher, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new pending visit.
func (l *Lifecycle) Create(ctx context.Context, p CreateParams) (*models.Visit, error) {
	if p.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidVisit)
	}
	if strings.TrimSpace(p.ImageURL) == "" {
		return nil, fmt.Errorf("%w: image reference is required", ErrInvalidVisit)
	}
	label := p.DetectedLabel
	if label == "" {
		label = "unknown"
	}

	v := &models.Visit{
		ID:            uuid.New(),
		VisitorID:     p.VisitorID,
		OwnerID:       p.OwnerID,
		ImageURL:      p.ImageURL,
		DetectedLabel: label,
		Status:        models.VisitStatusPending,
		CreatedAt:     l.now(),
	}
	if err := l.store.CreateVisit(ctx, v); err != nil {
		return nil, fmt.Errorf("create visit: %w", err)
	}

	slog.Info("visit created", "visit", v.ID, "owner", v.OwnerID, "label", v.DetectedLabel)
	l.publish(ctx, models.NewVisitEvent(models.VisitEventCreated, v))
	return v, nil
}

// Transition moves a pending visit to target. Repeating the current terminal
// status succeeds without a change.
func (l *Lifecycle) Transition(ctx context.Context, id uuid.UUID, target models.VisitStatus) (*models.Visit, error) {
	if !target.Terminal() {
		observability.VisitTransitions.WithLabelValues(string(target), "invalid").Inc()
		return nil, fmt.Errorf("%w: unknown target %q", ErrInvalidTransition, target)
	}

	v, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status == target {
		observability.VisitTransitions.WithLabelValues(string(target), "noop").Inc()
		return v, nil
	}
	if v.Status.Terminal() {
		observability.VisitTransitions.WithLabelValues(string(target), "invalid").Inc()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, target)
	}

	at := l.now()
	won, err := l.store.UpdateVisitStatus(ctx, id, models.VisitStatusPending, target, at)
	if err != nil {
		return nil, fmt.Errorf("update visit status: %w", err)
	}
	if !won {
		// Lost the race; report against whatever the winner committed.
		current, err := l.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			observability.VisitTransitions.WithLabelValues(string(target), "noop").Inc()
			return current, nil
		}
		observability.VisitTransitions.WithLabelValues(string(target), "invalid").Inc()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}

	v.Status = target
	v.DecidedAt = &at
	observability.VisitTransitions.WithLabelValues(string(target), "applied").Inc()
	slog.Info("visit status changed", "visit", id, "status", target)

	l.publish(ctx, models.NewVisitEvent(models.EventTypeFor(target), v))
	return v, nil
}

// IsUnlockEligible reports whether the visit has been granted.
func (l *Lifecycle) IsUnlockEligible(ctx context.Context, id uuid.UUID) (bool, error) {
	v, err := l.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return v.Status == models.VisitStatusGranted, nil
}

// ClaimUnlock returns true exactly once for a granted visit: the caller that
// receives true is the one lock command allowed to actuate.
func (l *Lifecycle) ClaimUnlock(ctx context.Context, id uuid.UUID) (bool, error) {
	v, err := l.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if v.Status != models.VisitStatusGranted || v.UnlockedAt != nil {
		return false, nil
	}
	claimed, err := l.store.ClaimUnlock(ctx, id, l.now())
	if err != nil {
		return false, fmt.Errorf("claim unlock: %w", err)
	}
	if claimed {
		slog.Info("unlock claimed", "visit", id)
	}
	return claimed, nil
}

func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	v, err := l.store.GetVisit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	if v == nil {
		return nil, ErrVisitNotFound
	}
	return v, nil
}

func (l *Lifecycle) List(ctx context.Context, f models.VisitFilter) ([]models.Visit, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	visits, err := l.store.ListVisits(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return visits, nil
}

// Stats summarizes an owner's visits; Today counts visits since UTC midnight.
func (l *Lifecycle) Stats(ctx context.Context, ownerID uuid.UUID) (*models.VisitStats, error) {
	midnight := l.now().Truncate(24 * time.Hour)
	stats, err := l.store.VisitStats(ctx, ownerID, midnight)
	if err != nil {
		return nil, fmt.Errorf("visit stats: %w", err)
	}
	return stats, nil
}

func (l *Lifecycle) publish(ctx context.Context, ev models.VisitEvent) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishVisitEvent(ctx, ev); err != nil {
		slog.Warn("publish visit event", "visit", ev.VisitID, "type", ev.Type, "error", err)
	}
}
