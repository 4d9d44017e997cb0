// Package memory is an in-process implementation of the store interfaces.
// Writes for one provider are serialized by a per-provider lock; a transaction
// stages its writes and publishes them only when fn succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	availability map[string]domain.Availability
	appointments map[uuid.UUID]domain.Appointment

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	now func() time.Time
}

func New() *Store {
	return &Store{
		availability: make(map[string]domain.Availability),
		appointments: make(map[uuid.UUID]domain.Appointment),
		locks:        make(map[string]chan struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) UpsertAvailability(ctx context.Context, av domain.Availability) (domain.Availability, error) {
	if err := ctx.Err(); err != nil {
		return domain.Availability{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.availability[av.ProviderID]; ok {
		av.CreatedAt = existing.CreatedAt
	} else {
		av.CreatedAt = now
	}
	av.UpdatedAt = now
	av.Windows = append([]domain.AvailabilityWindow(nil), av.Windows...)
	s.availability[av.ProviderID] = av
	return av, nil
}

func (s *Store) GetAvailability(ctx context.Context, providerID string) (domain.Availability, error) {
	if err := ctx.Err(); err != nil {
		return domain.Availability{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	av, ok := s.availability[providerID]
	if !ok {
		return domain.Availability{}, store.ErrNotFound
	}
	av.Windows = append([]domain.AvailabilityWindow(nil), av.Windows...)
	return av, nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	matched := make([]domain.Appointment, 0)
	for _, a := range s.appointments {
		if filter.Matches(a) {
			matched = append(matched, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ScheduledAt.Equal(matched[j].ScheduledAt) {
			return matched[i].ScheduledAt.After(matched[j].ScheduledAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	if filter.Offset >= total {
		return []domain.Appointment{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (s *Store) ListActive(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeIn(s.appointments, nil, providerID, windowStart, windowEnd), nil
}

func (s *Store) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	unlock, err := s.lockProvider(ctx, providerID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &ledgerTx{
		s:          s,
		providerID: providerID,
		staged:     make(map[uuid.UUID]domain.Appointment),
		inserted:   make(map[uuid.UUID]struct{}),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another provider's transaction may have committed the same id since it was staged.
	for id := range tx.inserted {
		if _, ok := s.appointments[id]; ok {
			return store.ErrIdempotencyConflict
		}
	}
	for id, a := range tx.staged {
		s.appointments[id] = a
	}
	return nil
}

func (s *Store) lockProvider(ctx context.Context, providerID string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[providerID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[providerID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// activeIn returns the provider's active appointments overlapping
// [windowStart, windowEnd), with staged entries shadowing committed ones.
func activeIn(committed, staged map[uuid.UUID]domain.Appointment, providerID string, windowStart, windowEnd time.Time) []domain.Appointment {
	window := domain.Interval{Start: windowStart, End: windowEnd}
	out := make([]domain.Appointment, 0)
	add := func(a domain.Appointment) {
		if a.ProviderID == providerID && a.Status.Active() && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	for id, a := range committed {
		if _, shadowed := staged[id]; shadowed {
			continue
		}
		add(a)
	}
	for _, a := range staged {
		add(a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}
