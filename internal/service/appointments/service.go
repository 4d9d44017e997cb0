package appointments

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/events"
	"appointly/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

type Service struct {
	availability store.AvailabilityRepository
	ledger       store.AppointmentRepository
	events       events.Publisher
	log          *slog.Logger
	tracer       trace.Tracer
}

func NewService(availability store.AvailabilityRepository, ledger store.AppointmentRepository, pub events.Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		availability: availability,
		ledger:       ledger,
		events:       pub,
		log:          log,
		tracer:       otel.Tracer("appointly/service/appointments"),
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "appointments."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func requireCaller(caller domain.Caller) error {
	if !caller.Valid() {
		return domain.AuthorizationError("caller identity is required")
	}
	return nil
}

func storeError(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.NotFoundError(what)
	case errors.Is(err, store.ErrConflict):
		return domain.ErrSlotTaken
	case errors.Is(err, store.ErrIdempotencyConflict):
		return domain.ErrIdempotencyKeyReused
	}
	return err
}

type SetAvailabilityInput struct {
	// ProviderID defaults to the caller.
	ProviderID string
	Windows    []domain.AvailabilityWindow
	Timezone   string
}

// SetAvailability replaces the provider's weekly windows. Providers may only
// set their own; admins may set anyone's.
func (s *Service) SetAvailability(ctx context.Context, caller domain.Caller, in SetAvailabilityInput) (_ domain.Availability, err error) {
	ctx, span := s.startSpan(ctx, "SetAvailability")
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return domain.Availability{}, err
	}
	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" {
		providerID = caller.ID
	}
	if !caller.IsAdmin() && !(caller.Role == domain.RoleProvider && caller.ID == providerID) {
		return domain.Availability{}, domain.AuthorizationError("only the provider or an admin can set availability")
	}

	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = domain.DefaultTimezone
	}
	windows := make([]domain.AvailabilityWindow, len(in.Windows))
	copy(windows, in.Windows)

	av := domain.Availability{ProviderID: providerID, Windows: windows, Timezone: tz}
	if err := av.Validate(); err != nil {
		return domain.Availability{}, err
	}

	out, err := s.availability.UpsertAvailability(ctx, av)
	if err != nil {
		return domain.Availability{}, err
	}
	s.log.InfoContext(ctx, "availability set", "provider_id", providerID, "windows", len(windows), "timezone", tz)
	return out, nil
}

func (s *Service) GetAvailability(ctx context.Context, providerID string) (domain.Availability, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return domain.Availability{}, domain.ValidationError("provider_id is required")
	}
	av, err := s.availability.GetAvailability(ctx, providerID)
	if err != nil {
		return domain.Availability{}, storeError(err, "availability")
	}
	return av, nil
}

// WindowsFor yields the provider's windows on day; a provider without
// availability yields nothing.
func (s *Service) WindowsFor(ctx context.Context, providerID string, day time.Weekday) (iter.Seq[domain.AvailabilityWindow], error) {
	av, err := s.GetAvailability(ctx, providerID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return func(func(domain.AvailabilityWindow) bool) {}, nil
		}
		return nil, err
	}
	return av.WindowsFor(day), nil
}

type CreateBookingInput struct {
	ProviderID      string
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           string
	// IdempotencyKey makes retries of the same request return the original booking.
	IdempotencyKey string
}

// CreateBooking books the caller as client with the provider. The
// availability check, conflict check and insert run under the provider's lock.
func (s *Service) CreateBooking(ctx context.Context, caller domain.Caller, in CreateBookingInput) (_ domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "CreateBooking", attribute.String("provider_id", in.ProviderID))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return domain.Appointment{}, err
	}
	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" {
		return domain.Appointment{}, domain.ValidationError("provider_id is required")
	}
	if providerID == caller.ID {
		return domain.Appointment{}, domain.ValidationError("cannot book an appointment with yourself")
	}
	if in.ScheduledAt.IsZero() {
		return domain.Appointment{}, domain.ValidationError("scheduled_at is required")
	}

	duration := in.DurationMinutes
	if duration == 0 {
		duration = domain.DefaultDurationMinutes
	}
	if duration < domain.MinDurationMinutes {
		return domain.Appointment{}, domain.ValidationError("duration_minutes must be at least %d", domain.MinDurationMinutes)
	}
	if duration > domain.MaxDurationMinutes {
		return domain.Appointment{}, domain.ValidationError("duration_minutes must not exceed %d", domain.MaxDurationMinutes)
	}

	appt := domain.Appointment{
		ProviderID:      providerID,
		ClientID:        caller.ID,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: duration,
		Status:          domain.StatusPending,
		Notes:           strings.TrimSpace(in.Notes),
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.Appointment{}, domain.ValidationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("appointly:create_booking:"+caller.ID+":"+key))
	}

	var out domain.Appointment
	var replayed bool
	err = s.ledger.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.LedgerTx) error {
		av, err := tx.GetAvailability(ctx, providerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrNoAvailabilityConfigured
			}
			return err
		}

		if appt.ID != uuid.Nil {
			prev, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !sameRequest(prev, appt) {
					return domain.ErrIdempotencyKeyReused
				}
				out, replayed = prev, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		iv := appt.Interval()
		existing, err := tx.ListActive(ctx, providerID, iv.Start, iv.End)
		if err != nil {
			return err
		}
		if err := domain.ResolveBooking(av, iv, existing); err != nil {
			return err
		}

		out, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return domain.Appointment{}, storeError(err, "appointment")
	}

	span.SetAttributes(attribute.String("appointment_id", out.ID.String()), attribute.Bool("replayed", replayed))
	if !replayed {
		s.log.InfoContext(ctx, "booking created",
			"appointment_id", out.ID.String(),
			"provider_id", out.ProviderID,
			"client_id", out.ClientID,
			"scheduled_at", out.ScheduledAt,
		)
		s.events.Publish(ctx, events.BookingCreated(out))
	}
	return out, nil
}

func sameRequest(prev, next domain.Appointment) bool {
	return prev.ProviderID == next.ProviderID &&
		prev.ClientID == next.ClientID &&
		prev.ScheduledAt.Equal(next.ScheduledAt) &&
		prev.DurationMinutes == next.DurationMinutes &&
		prev.Notes == next.Notes
}

func (s *Service) GetBooking(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error) {
	if err := requireCaller(caller); err != nil {
		return domain.Appointment{}, err
	}
	if id == uuid.Nil {
		return domain.Appointment{}, domain.ValidationError("appointment id is required")
	}
	appt, err := s.ledger.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, storeError(err, "appointment")
	}
	if !domain.CanView(appt, caller) {
		return domain.Appointment{}, domain.AuthorizationError("not allowed to view this appointment")
	}
	return appt, nil
}

type ListBookingsInput struct {
	ProviderID string
	ClientID   string
	Statuses   []domain.Status
	From       *time.Time
	To         *time.Time
	// Page is 1-based; 0 means the first page.
	Page  int
	Limit int
}

type ListBookingsResult struct {
	Items       []domain.Appointment `json:"items"`
	Total       int                  `json:"total"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	TotalPages  int                  `json:"total_pages"`
	HasNextPage bool                 `json:"has_next_page"`
	HasPrevPage bool                 `json:"has_prev_page"`
}

func newListBookingsResult(items []domain.Appointment, total, page, limit int) ListBookingsResult {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return ListBookingsResult{
		Items:       items,
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  pages,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
	}
}

// ListBookings scopes the listing to the caller: clients and providers see
// only their own appointments and only admins may filter by participant.
func (s *Service) ListBookings(ctx context.Context, caller domain.Caller, in ListBookingsInput) (_ ListBookingsResult, err error) {
	ctx, span := s.startSpan(ctx, "ListBookings", attribute.String("role", string(caller.Role)))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return ListBookingsResult{}, err
	}
	page := in.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return ListBookingsResult{}, domain.ValidationError("page must be at least 1")
	}

	filter := store.AppointmentFilter{
		Statuses: in.Statuses,
		From:     in.From,
		To:       in.To,
		Limit:    in.Limit,
	}
	switch caller.Role {
	case domain.RoleAdmin:
		filter.ProviderID = strings.TrimSpace(in.ProviderID)
		filter.ClientID = strings.TrimSpace(in.ClientID)
	case domain.RoleProvider:
		filter.ProviderID = caller.ID
	default:
		filter.ClientID = caller.ID
	}

	filter, err = filter.Normalize()
	if err != nil {
		return ListBookingsResult{}, err
	}
	filter.Offset = (page - 1) * filter.Limit

	items, total, err := s.ledger.ListAppointments(ctx, filter)
	if err != nil {
		return ListBookingsResult{}, err
	}
	return newListBookingsResult(items, total, page, filter.Limit), nil
}

// TransitionStatus moves an appointment along the status machine under the
// provider's lock and notifies the other participant.
func (s *Service) TransitionStatus(ctx context.Context, caller domain.Caller, id uuid.UUID, to domain.Status) (_ domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "TransitionStatus",
		attribute.String("appointment_id", id.String()),
		attribute.String("to", string(to)),
	)
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return domain.Appointment{}, err
	}
	if id == uuid.Nil {
		return domain.Appointment{}, domain.ValidationError("appointment id is required")
	}
	if _, err := domain.ParseStatus(string(to)); err != nil {
		return domain.Appointment{}, err
	}

	current, err := s.ledger.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, storeError(err, "appointment")
	}

	var updated domain.Appointment
	var old domain.Status
	err = s.ledger.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.LedgerTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(appt, to, caller); err != nil {
			return err
		}
		old = appt.Status
		updated, err = tx.UpdateStatus(ctx, id, to)
		return err
	})
	if err != nil {
		return domain.Appointment{}, storeError(err, "appointment")
	}

	s.log.InfoContext(ctx, "booking status changed",
		"appointment_id", id.String(),
		"from", string(old),
		"to", string(to),
		"actor_id", caller.ID,
	)
	s.events.Publish(ctx, events.StatusChanged(updated, old, caller))
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error) {
	return s.TransitionStatus(ctx, caller, id, domain.StatusCancelled)
}

// AvailableSlots lists bookable slot starts for the provider on date's
// calendar day. A provider without availability has no slots.
func (s *Service) AvailableSlots(ctx context.Context, providerID string, date time.Time, granularityMinutes int) (_ iter.Seq[time.Time], err error) {
	ctx, span := s.startSpan(ctx, "AvailableSlots", attribute.String("provider_id", providerID))
	defer func() { endSpan(span, err) }()

	if granularityMinutes == 0 {
		granularityMinutes = domain.DefaultSlotGranularity
	}
	if granularityMinutes < domain.MinSlotGranularity || granularityMinutes > domain.MaxSlotGranularity {
		return nil, domain.ValidationError("granularity must be between %d and %d minutes", domain.MinSlotGranularity, domain.MaxSlotGranularity)
	}

	av, err := s.GetAvailability(ctx, providerID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return func(func(time.Time) bool) {}, nil
		}
		return nil, err
	}
	loc, err := av.Location()
	if err != nil {
		return nil, err
	}

	day := domain.DayBounds(date, loc)
	active, err := s.ledger.ListActive(ctx, av.ProviderID, day.Start, day.End)
	if err != nil {
		return nil, err
	}
	busy := make([]domain.Interval, 0, len(active))
	for _, a := range active {
		busy = append(busy, a.Interval())
	}
	return domain.AvailableSlots(av, date, time.Duration(granularityMinutes)*time.Minute, busy)
}
