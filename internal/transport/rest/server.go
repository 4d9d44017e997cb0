// Package rest exposes the booking service over HTTP with echo.
package rest

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/appointments"
)

type bookingService interface {
	SetAvailability(ctx context.Context, caller domain.Caller, in appointments.SetAvailabilityInput) (domain.Availability, error)
	GetAvailability(ctx context.Context, providerID string) (domain.Availability, error)
	CreateBooking(ctx context.Context, caller domain.Caller, in appointments.CreateBookingInput) (domain.Appointment, error)
	GetBooking(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error)
	ListBookings(ctx context.Context, caller domain.Caller, in appointments.ListBookingsInput) (appointments.ListBookingsResult, error)
	TransitionStatus(ctx context.Context, caller domain.Caller, id uuid.UUID, to domain.Status) (domain.Appointment, error)
	Cancel(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error)
	AvailableSlots(ctx context.Context, providerID string, date time.Time, granularityMinutes int) (iter.Seq[time.Time], error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Options struct {
	Auth           auth.Config
	RateLimiter    Limiter
	RateFailOpen   bool
	RequestTimeout time.Duration
	ReadyChecks    map[string]ReadyCheck
}

type Server struct {
	svc  bookingService
	log  *slog.Logger
	opts Options
	echo *echo.Echo
}

func NewServer(svc bookingService, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		svc:  svc,
		log:  log.With(slog.String("component", "http")),
		opts: opts,
		echo: echo.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(recovery(s.log))
	e.Use(echomw.RequestID())
	e.Use(accessLog(s.log))
	e.Use(requestTimeout(s.opts.RequestTimeout))

	e.GET("/healthz", s.healthz)
	e.GET("/readyz", s.readyz)

	api := e.Group("", auth.Middleware(s.opts.Auth))
	if s.opts.RateLimiter != nil {
		api.Use(rateLimit(s.opts.RateLimiter, s.log, s.opts.RateFailOpen))
	}

	api.POST("/appointments", s.createAppointment)
	api.GET("/appointments", s.listAppointments)
	api.GET("/appointments/:id", s.getAppointment)
	api.PATCH("/appointments/:id/status", s.updateAppointmentStatus)
	api.PATCH("/appointments/:id/cancel", s.cancelAppointment)

	api.POST("/schedules", s.setSchedule)
	api.GET("/schedules/me", s.mySchedule)
	api.GET("/schedules/provider/:providerId", s.providerSchedule)
	api.GET("/schedules/available-slots", s.availableSlots)
}

// Handler returns the router wrapped with OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.echo, "appointly.http")
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.opts.ReadyChecks {
		if err := check(ctx); err != nil {
			s.log.Warn("readiness check failed", slog.String("check", name), slog.Any("err", err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
