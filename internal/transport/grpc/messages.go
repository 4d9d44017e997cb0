package grpc

import (
	"time"

	"appointly/backend/internal/domain"
)

type CreateBookingRequest struct {
	ProviderID      string    `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes"`
}

type GetBookingRequest struct {
	ID string `json:"id"`
}

type TransitionStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type BookingResponse struct {
	Appointment domain.Appointment `json:"appointment"`
}

type AvailableSlotsRequest struct {
	ProviderID         string `json:"provider_id"`
	Date               string `json:"date"`
	GranularityMinutes int    `json:"granularity_minutes"`
}

type AvailableSlotsResponse struct {
	Slots []time.Time `json:"slots"`
}
