package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses hold a provider's time; only these take part in overlap checks.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

const (
	MinDurationMinutes     = 15
	DefaultDurationMinutes = 60
	MaxDurationMinutes     = 24 * 60
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", ValidationError("invalid status %q", s)
}

func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ProviderID      string    `bun:"provider_id,notnull" json:"provider_id"`
	ClientID        string    `bun:"client_id,notnull" json:"client_id"`
	ScheduledAt     time.Time `bun:"scheduled_at,notnull" json:"scheduled_at"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	EndsAt          time.Time `bun:"ends_at,notnull" json:"ends_at"`
	Status          Status    `bun:"status,notnull" json:"status"`
	Notes           string    `bun:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.EndsAt.IsZero() {
			a.EndsAt = a.Interval().End
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Interval is the occupied range [ScheduledAt, ScheduledAt+DurationMinutes).
func (a Appointment) Interval() Interval {
	return Interval{
		Start: a.ScheduledAt,
		End:   a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute),
	}
}
