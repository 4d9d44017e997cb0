package store

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type AvailabilityRepository interface {
	UpsertAvailability(ctx context.Context, av domain.Availability) (domain.Availability, error)
	GetAvailability(ctx context.Context, providerID string) (domain.Availability, error)
}

type AppointmentRepository interface {
	// InProviderTransaction runs fn with every other booking write for
	// providerID held off until fn returns. Returning an error rolls back.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx LedgerTx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, int, error)
	ListActive(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

// LedgerTx is the view of one provider's ledger inside InProviderTransaction.
type LedgerTx interface {
	GetAvailability(ctx context.Context, providerID string) (domain.Availability, error)
	ListActive(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Appointment, error)
}

// AppointmentFilter selects appointments for listing. Empty fields match anything.
// Results are ordered by scheduled_at descending.
type AppointmentFilter struct {
	ProviderID string
	ClientID   string
	Statuses   []domain.Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Normalize applies the default page size and checks bounds.
func (f AppointmentFilter) Normalize() (AppointmentFilter, error) {
	if f.Limit == 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit < 1 || f.Limit > MaxPageLimit {
		return f, domain.ValidationError("limit must be between 1 and %d", MaxPageLimit)
	}
	if f.Offset < 0 {
		return f, domain.ValidationError("offset must not be negative")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return f, domain.ValidationError("from must be before to")
	}
	return f, nil
}

func (f AppointmentFilter) Matches(a domain.Appointment) bool {
	if f.ProviderID != "" && a.ProviderID != f.ProviderID {
		return false
	}
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if f.From != nil && a.ScheduledAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.ScheduledAt.Before(*f.To) {
		return false
	}
	return true
}

func StatusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
