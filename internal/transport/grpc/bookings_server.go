// Package grpc exposes the booking engine over gRPC alongside the standard
// health service.
package grpc

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/appointments"
)

type bookingService interface {
	CreateBooking(ctx context.Context, caller domain.Caller, in appointments.CreateBookingInput) (domain.Appointment, error)
	GetBooking(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error)
	TransitionStatus(ctx context.Context, caller domain.Caller, id uuid.UUID, to domain.Status) (domain.Appointment, error)
	AvailableSlots(ctx context.Context, providerID string, date time.Time, granularityMinutes int) (iter.Seq[time.Time], error)
}

type BookingsServer struct {
	svc bookingService
	log *slog.Logger
}

func NewBookingsServer(svc bookingService, log *slog.Logger) *BookingsServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingsServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	appt, err := s.svc.CreateBooking(ctx, caller, appointments.CreateBookingInput{
		ProviderID:      req.ProviderID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, toStatus(log, err, slog.String("client_id", caller.ID), slog.String("provider_id", req.ProviderID))
	}

	log.Info("booking created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
		slog.String("client_id", appt.ClientID),
		slog.Time("scheduled_at", appt.ScheduledAt),
	)
	return &BookingResponse{Appointment: appt}, nil
}

func (s *BookingsServer) GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "GetBooking"))

	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(log, req.GetID())
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.GetBooking(ctx, caller, id)
	if err != nil {
		return nil, toStatus(log, err, slog.String("appointment_id", id.String()))
	}
	return &BookingResponse{Appointment: appt}, nil
}

func (s *BookingsServer) TransitionStatus(ctx context.Context, req *TransitionStatusRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "TransitionStatus"))

	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(log, req.ID)
	if err != nil {
		return nil, err
	}
	to, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, toStatus(log, err)
	}

	appt, err := s.svc.TransitionStatus(ctx, caller, id, to)
	if err != nil {
		return nil, toStatus(log, err, slog.String("appointment_id", id.String()), slog.String("to", string(to)))
	}

	log.Info("booking status changed",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
		slog.String("actor_id", caller.ID),
	)
	return &BookingResponse{Appointment: appt}, nil
}

func (s *BookingsServer) AvailableSlots(ctx context.Context, req *AvailableSlotsRequest) (*AvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "AvailableSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", req.Date))
		return nil, status.Error(codes.InvalidArgument, "date must be formatted as YYYY-MM-DD")
	}

	seq, err := s.svc.AvailableSlots(ctx, req.ProviderID, date, req.GranularityMinutes)
	if err != nil {
		return nil, toStatus(log, err, slog.String("provider_id", req.ProviderID))
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []time.Time{}
	}

	log.Debug("slots listed", slog.String("provider_id", req.ProviderID), slog.Int("count", len(slots)))
	return &AvailableSlotsResponse{Slots: slots}, nil
}

func (r *GetBookingRequest) GetID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func callerFrom(ctx context.Context) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return domain.Caller{}, status.Error(codes.Unauthenticated, "authentication required")
	}
	return caller, nil
}

func parseID(log *slog.Logger, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return uuid.Nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	return id, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// ErrorDomain names the ErrorInfo domain that carries domain error codes.
const ErrorDomain = "appointly"

// domainStatus keeps the stable error code as an ErrorInfo reason so clients
// can tell apart errors that share a gRPC code.
func domainStatus(dErr *domain.Error) error {
	st := status.New(codeForKind(dErr.Kind), dErr.Message)
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   dErr.Code,
		Domain:   ErrorDomain,
		Metadata: map[string]string{"kind": string(dErr.Kind)},
	})
	if err != nil {
		return st.Err()
	}
	return withInfo.Err()
}

func codeForKind(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.FailedPrecondition
	case domain.KindAuthorization:
		return codes.PermissionDenied
	}
	return codes.Internal
}

// toStatus maps service errors onto gRPC status codes. Anything that is not a
// domain error is logged and hidden behind codes.Internal.
func toStatus(log *slog.Logger, err error, attrs ...any) error {
	var dErr *domain.Error
	switch {
	case errors.As(err, &dErr):
		args := append([]any{slog.String("code", dErr.Code), slog.Any("err", err)}, attrs...)
		if dErr.Kind == domain.KindValidation {
			log.Warn("invalid request", args...)
		} else {
			log.Info("request rejected", args...)
		}
		return domainStatus(dErr)
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error("request failed", append([]any{slog.Any("err", err)}, attrs...)...)
	return status.Error(codes.Internal, "internal error")
}
