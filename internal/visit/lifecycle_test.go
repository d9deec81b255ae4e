package visit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorgate/internal/models"
)

type memStore struct {
	mu     sync.Mutex
	visits map[uuid.UUID]models.Visit
}

func newMemStore() *memStore {
	return &memStore{visits: map[uuid.UUID]models.Visit{}}
}

func (s *memStore) CreateVisit(_ context.Context, v *models.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[v.ID] = *v
	return nil
}

func (s *memStore) GetVisit(_ context.Context, id uuid.UUID) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memStore) UpdateVisitStatus(_ context.Context, id uuid.UUID, from, to models.VisitStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	v.DecidedAt = &at
	s.visits[id] = v
	return true, nil
}

func (s *memStore) ClaimUnlock(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok || v.Status != models.VisitStatusGranted || v.UnlockedAt != nil {
		return false, nil
	}
	v.UnlockedAt = &at
	s.visits[id] = v
	return true, nil
}

func (s *memStore) ListVisits(_ context.Context, f models.VisitFilter) ([]models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Visit
	for _, v := range s.visits {
		if f.OwnerID != nil && v.OwnerID != *f.OwnerID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) VisitStats(_ context.Context, ownerID uuid.UUID, since time.Time) (*models.VisitStats, error) {
	return &models.VisitStats{}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.VisitEvent
	err    error
}

func (p *recordingPublisher) PublishVisitEvent(_ context.Context, ev models.VisitEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []models.VisitEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.VisitEventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newPending(t *testing.T, l *Lifecycle) *models.Visit {
	t.Helper()
	v, err := l.Create(context.Background(), CreateParams{OwnerID: uuid.New(), ImageURL: "captures/a.jpg"})
	require.NoError(t, err)
	return v
}

func TestCreate(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewLifecycle(newMemStore(), pub)
	visitor := uuid.New()

	v, err := l.Create(context.Background(), CreateParams{
		VisitorID:     &visitor,
		OwnerID:       uuid.New(),
		ImageURL:      "captures/b.jpg",
		DetectedLabel: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusPending, v.Status)
	assert.Equal(t, &visitor, v.VisitorID)
	assert.Nil(t, v.DecidedAt)
	assert.Equal(t, []models.VisitEventType{models.VisitEventCreated}, pub.types())

	_, err = l.Create(context.Background(), CreateParams{ImageURL: "x"})
	assert.ErrorIs(t, err, ErrInvalidVisit)
	_, err = l.Create(context.Background(), CreateParams{OwnerID: uuid.New(), ImageURL: "  "})
	assert.ErrorIs(t, err, ErrInvalidVisit)
}

func TestCreate_DefaultsLabel(t *testing.T) {
	l := NewLifecycle(newMemStore(), nil)
	v := newPending(t, l)
	assert.Equal(t, "unknown", v.DetectedLabel)
}

func TestTransition_IdempotentThenInvalid(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewLifecycle(newMemStore(), pub)
	v := newPending(t, l)
	ctx := context.Background()

	granted, err := l.Transition(ctx, v.ID, models.VisitStatusGranted)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusGranted, granted.Status)
	require.NotNil(t, granted.DecidedAt)

	again, err := l.Transition(ctx, v.ID, models.VisitStatusGranted)
	require.NoError(t, err)
	assert.Equal(t, granted.DecidedAt.Unix(), again.DecidedAt.Unix())

	_, err = l.Transition(ctx, v.ID, models.VisitStatusDenied)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := l.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusGranted, got.Status)

	assert.Equal(t, []models.VisitEventType{models.VisitEventCreated, models.VisitEventGranted}, pub.types())
}

func TestTransition_Errors(t *testing.T) {
	l := NewLifecycle(newMemStore(), nil)
	ctx := context.Background()

	_, err := l.Transition(ctx, uuid.New(), models.VisitStatusGranted)
	assert.ErrorIs(t, err, ErrVisitNotFound)

	v := newPending(t, l)
	_, err = l.Transition(ctx, v.ID, models.VisitStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.Transition(ctx, v.ID, "opened")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_PublishFailureDoesNotFail(t *testing.T) {
	l := NewLifecycle(newMemStore(), &recordingPublisher{err: errors.New("broker down")})
	v := newPending(t, l)

	got, err := l.Transition(context.Background(), v.ID, models.VisitStatusDenied)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusDenied, got.Status)
}

func TestTransition_ConcurrentGrantDeny(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		v := newPending(t, l)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, target := range []models.VisitStatus{models.VisitStatusGranted, models.VisitStatusDenied} {
			wg.Add(1)
			go func(j int, target models.VisitStatus) {
				defer wg.Done()
				_, errs[j] = l.Transition(ctx, v.ID, target)
			}(j, target)
		}
		wg.Wait()

		var ok, invalid int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInvalidTransition):
				invalid++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, invalid)

		final, err := l.Get(ctx, v.ID)
		require.NoError(t, err)
		assert.True(t, final.Status.Terminal())
	}
}

func TestUnlock(t *testing.T) {
	l := NewLifecycle(newMemStore(), nil)
	ctx := context.Background()
	v := newPending(t, l)

	eligible, err := l.IsUnlockEligible(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, eligible)

	claimed, err := l.ClaimUnlock(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "pending visits cannot unlock")

	_, err = l.Transition(ctx, v.ID, models.VisitStatusGranted)
	require.NoError(t, err)

	eligible, err = l.IsUnlockEligible(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, eligible)

	claimed, err = l.ClaimUnlock(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = l.ClaimUnlock(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "only one lock command per visit")

	_, err = l.IsUnlockEligible(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrVisitNotFound)
}

func TestList_FiltersAndClampsLimit(t *testing.T) {
	l := NewLifecycle(newMemStore(), nil)
	ctx := context.Background()
	a := newPending(t, l)
	newPending(t, l)
	_, err := l.Transition(ctx, a.ID, models.VisitStatusDenied)
	require.NoError(t, err)

	denied, err := l.List(ctx, models.VisitFilter{Status: models.VisitStatusDenied, Limit: 1000})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, a.ID, denied[0].ID)

	owner := a.OwnerID
	mine, err := l.List(ctx, models.VisitFilter{OwnerID: &owner})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
