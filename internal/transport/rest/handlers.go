package rest

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/appointments"
)

const IdempotencyKeyHeader = "Idempotency-Key"

func callerOf(c echo.Context) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(c.Request().Context())
	if !ok {
		return domain.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return caller, nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return domain.ValidationError("malformed request body")
	}
	return nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, domain.ValidationError("invalid appointment id")
	}
	return id, nil
}

type createAppointmentRequest struct {
	ProviderID      string    `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes"`
}

func (s *Server) createAppointment(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req createAppointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	appt, err := s.svc.CreateBooking(c.Request().Context(), caller, appointments.CreateBookingInput{
		ProviderID:      req.ProviderID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		IdempotencyKey:  c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, appt)
}

func (s *Server) listAppointments(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	in, err := parseListQuery(c)
	if err != nil {
		return err
	}
	res, err := s.svc.ListBookings(c.Request().Context(), caller, in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, res)
}

func parseListQuery(c echo.Context) (appointments.ListBookingsInput, error) {
	in := appointments.ListBookingsInput{
		ProviderID: strings.TrimSpace(c.QueryParam("provider_id")),
		ClientID:   strings.TrimSpace(c.QueryParam("client_id")),
	}

	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := domain.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				return in, err
			}
			if !slices.Contains(in.Statuses, st) {
				in.Statuses = append(in.Statuses, st)
			}
		}
	}

	for name, dst := range map[string]**time.Time{"from": &in.From, "to": &in.To} {
		raw := strings.TrimSpace(c.QueryParam(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return in, domain.ValidationError("%s must be an RFC 3339 timestamp", name)
		}
		*dst = &t
	}

	for name, dst := range map[string]*int{"page": &in.Page, "limit": &in.Limit} {
		raw := strings.TrimSpace(c.QueryParam(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, domain.ValidationError("%s must be an integer", name)
		}
		*dst = n
	}
	return in, nil
}

func (s *Server) getAppointment(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := s.svc.GetBooking(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, appt)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateAppointmentStatus(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	to, err := domain.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return err
	}

	appt, err := s.svc.TransitionStatus(c.Request().Context(), caller, id, to)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, appt)
}

func (s *Server) cancelAppointment(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := s.svc.Cancel(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, appt)
}

type setScheduleRequest struct {
	ProviderID string                      `json:"provider_id"`
	Windows    []domain.AvailabilityWindow `json:"windows"`
	Timezone   string                      `json:"timezone"`
}

func (s *Server) setSchedule(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req setScheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	av, err := s.svc.SetAvailability(c.Request().Context(), caller, appointments.SetAvailabilityInput{
		ProviderID: req.ProviderID,
		Windows:    req.Windows,
		Timezone:   req.Timezone,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, av)
}

func (s *Server) mySchedule(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	providerID := caller.ID
	switch caller.Role {
	case domain.RoleProvider:
	case domain.RoleAdmin:
		if id := strings.TrimSpace(c.QueryParam("providerId")); id != "" {
			providerID = id
		}
	default:
		return domain.AuthorizationError("only providers and admins have a schedule")
	}
	av, err := s.svc.GetAvailability(c.Request().Context(), providerID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, av)
}

func (s *Server) providerSchedule(c echo.Context) error {
	av, err := s.svc.GetAvailability(c.Request().Context(), c.Param("providerId"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, av)
}

type slotsResponse struct {
	ProviderID  string      `json:"provider_id"`
	Date        string      `json:"date"`
	Granularity int         `json:"granularity_minutes"`
	Slots       []time.Time `json:"slots"`
}

func (s *Server) availableSlots(c echo.Context) error {
	providerID := strings.TrimSpace(c.QueryParam("providerId"))
	if providerID == "" {
		return domain.ValidationError("providerId is required")
	}
	rawDate := strings.TrimSpace(c.QueryParam("date"))
	date, err := time.Parse(time.DateOnly, rawDate)
	if err != nil {
		return domain.ValidationError("date must be formatted as YYYY-MM-DD")
	}
	granularity := domain.DefaultSlotGranularity
	if raw := strings.TrimSpace(c.QueryParam("granularity")); raw != "" {
		granularity, err = strconv.Atoi(raw)
		if err != nil {
			return domain.ValidationError("granularity must be an integer")
		}
	}

	seq, err := s.svc.AvailableSlots(c.Request().Context(), providerID, date, granularity)
	if err != nil {
		return err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []time.Time{}
	}
	return ok(c, http.StatusOK, slotsResponse{
		ProviderID:  providerID,
		Date:        rawDate,
		Granularity: granularity,
		Slots:       slots,
	})
}
