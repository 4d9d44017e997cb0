// Package events carries booking notifications off the request path.
// Publishing never blocks a booking operation and delivery failures never
// surface to the caller.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

const (
	TypeBookingCreated       = "booking.created.v1"
	TypeBookingStatusChanged = "booking.status_changed.v1"
)

type Event struct {
	ID          string             `json:"event_id"`
	Type        string             `json:"event_type"`
	OccurredAt  time.Time          `json:"occurred_at"`
	Appointment domain.Appointment `json:"appointment"`
	OldStatus   domain.Status      `json:"old_status,omitempty"`
	NewStatus   domain.Status      `json:"new_status,omitempty"`
	// Recipients are the user ids that should be told about the event.
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Sink delivers one event to a downstream system.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

func BookingCreated(appt domain.Appointment) Event {
	return Event{
		ID:          newEventID(),
		Type:        TypeBookingCreated,
		OccurredAt:  time.Now().UTC(),
		Appointment: appt,
		NewStatus:   appt.Status,
		Recipients:  []string{appt.ProviderID},
		Message:     "New appointment request for " + appt.ScheduledAt.UTC().Format(time.RFC3339),
	}
}

// StatusChanged notifies the participant who did not make the change.
func StatusChanged(appt domain.Appointment, old domain.Status, actor domain.Caller) Event {
	var recipients []string
	switch actor.ID {
	case appt.ClientID:
		recipients = []string{appt.ProviderID}
	case appt.ProviderID:
		recipients = []string{appt.ClientID}
	default:
		recipients = []string{appt.ClientID, appt.ProviderID}
	}
	return Event{
		ID:          newEventID(),
		Type:        TypeBookingStatusChanged,
		OccurredAt:  time.Now().UTC(),
		Appointment: appt,
		OldStatus:   old,
		NewStatus:   appt.Status,
		Recipients:  recipients,
		Message:     statusMessage(appt),
	}
}

func statusMessage(appt domain.Appointment) string {
	when := appt.ScheduledAt.UTC().Format(time.RFC3339)
	switch appt.Status {
	case domain.StatusApproved:
		return "Your appointment on " + when + " has been approved"
	case domain.StatusRejected:
		return "Your appointment request for " + when + " was rejected"
	case domain.StatusCancelled:
		return "The appointment on " + when + " was cancelled"
	case domain.StatusCompleted:
		return "The appointment on " + when + " is completed"
	}
	return "Appointment status changed to " + string(appt.Status)
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
