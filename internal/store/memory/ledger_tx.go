package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type ledgerTx struct {
	s          *Store
	providerID string
	staged     map[uuid.UUID]domain.Appointment
	inserted   map[uuid.UUID]struct{}
}

func (t *ledgerTx) GetAvailability(ctx context.Context, providerID string) (domain.Availability, error) {
	return t.s.GetAvailability(ctx, providerID)
}

func (t *ledgerTx) ListActive(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return activeIn(t.s.appointments, t.staged, providerID, windowStart, windowEnd), nil
}

func (t *ledgerTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	if appt.ProviderID != t.providerID {
		return domain.Appointment{}, domain.ValidationError("appointment provider does not match the locked provider")
	}

	iv := appt.Interval()
	t.s.mu.RLock()
	clash := len(activeIn(t.s.appointments, t.staged, appt.ProviderID, iv.Start, iv.End)) > 0
	_, taken := t.s.appointments[appt.ID]
	t.s.mu.RUnlock()
	if _, staged := t.staged[appt.ID]; appt.ID != uuid.Nil && (taken || staged) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	if appt.Status.Active() && clash {
		return domain.Appointment{}, store.ErrConflict
	}

	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	now := t.s.now()
	appt.EndsAt = iv.End
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.staged[appt.ID] = appt
	t.inserted[appt.ID] = struct{}{}
	return appt, nil
}

func (t *ledgerTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return a, nil
	}
	return t.s.GetAppointment(ctx, id)
}

func (t *ledgerTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Appointment, error) {
	a, err := t.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if a.ProviderID != t.providerID {
		return domain.Appointment{}, store.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = t.s.now()
	t.staged[id] = a
	return a, nil
}
