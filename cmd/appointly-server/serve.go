package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"appointly/backend/internal/config"
	"appointly/backend/internal/events"
	"appointly/backend/internal/service/appointments"
	"appointly/backend/internal/store"
	"appointly/backend/internal/store/memory"
	"appointly/backend/internal/store/postgres"
	"appointly/backend/internal/telemetry"
	grpcTransport "appointly/backend/internal/transport/grpc"
	"appointly/backend/internal/transport/rest"
)

type storage struct {
	availability store.AvailabilityRepository
	ledger       store.AppointmentRepository
	ready        rest.ReadyCheck
	close        func() error
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (storage, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; bookings are lost on restart")
		st := memory.New()
		return storage{availability: st, ledger: st, close: func() error { return nil }}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ApplicationName: cfg.ServiceName,
		SlowQuery:       cfg.DBSlowQuery,
		Logger:          log,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return storage{}, err
	}
	return storage{
		availability: postgres.NewAvailabilityRepo(db),
		ledger:       postgres.NewAppointmentRepo(db),
		ready:        func(ctx context.Context) error { return postgres.Ping(ctx, db) },
		close:        func() error { return postgres.Close(db) },
	}, nil
}

func newLimiter(cfg config.Config, log *slog.Logger) (rest.Limiter, rest.ReadyCheck, func() error, error) {
	if cfg.RedisURL == "" {
		log.Info("rate limiting in process", slog.Int("limit", cfg.RateLimitRequests), slog.Duration("window", cfg.RateLimitWindow))
		return rest.NewLocalLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), nil, func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	log.Info("rate limiting via redis", slog.String("redis_addr", opts.Addr), slog.Int("limit", cfg.RateLimitRequests), slog.Duration("window", cfg.RateLimitWindow))

	ready := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return rest.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.ServiceName+":rl"), ready, rdb.Close, nil
}

func newEventSinks(cfg config.Config, log *slog.Logger) ([]events.Sink, func() error) {
	sinks := []events.Sink{events.LogSink{Log: log.With(slog.String("component", "notifications"))}}
	if len(cfg.KafkaBrokers) == 0 {
		return sinks, func() error { return nil }
	}

	log.Info("publishing events to kafka", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
	ks := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	return append(sinks, ks), ks.Close
}

func runServer(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	authCfg := authConfig(cfg)
	if err := authCfg.Validate(); err != nil {
		return fmt.Errorf("auth config: %w (set APPOINTLY_AUTH_JWT_SECRET)", err)
	}

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr()),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("store", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Warn("storage close failed", slog.Any("err", err))
		}
	}()

	limiter, redisReady, closeLimiter, err := newLimiter(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLimiter(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}()

	sinks, closeSinks := newEventSinks(cfg, log)
	defer func() {
		if err := closeSinks(); err != nil {
			log.Warn("event sink close failed", slog.Any("err", err))
		}
	}()
	dispatcher := events.NewDispatcher(log.With(slog.String("component", "events")), cfg.EventsBufferSize, sinks...)
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
		if n := dispatcher.Dropped(); n > 0 {
			log.Warn("events dropped during run", slog.Int64("count", n))
		}
	}()

	svc := appointments.NewService(st.availability, st.ledger, dispatcher, log.With(slog.String("component", "service")))

	readyChecks := map[string]rest.ReadyCheck{}
	if st.ready != nil {
		readyChecks["database"] = st.ready
	}
	if redisReady != nil {
		readyChecks["redis"] = redisReady
	}

	restServer := rest.NewServer(svc, log, rest.Options{
		Auth:           authCfg,
		RateLimiter:    limiter,
		RateFailOpen:   cfg.RateLimitFailOpen,
		RequestTimeout: cfg.HTTPRequestTimeout,
		ReadyChecks:    readyChecks,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           restServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := grpcTransport.NewServer(grpcTransport.NewBookingsServer(svc, log), authCfg, cfg.GRPCRequestTimeout)
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr()), slog.String("grpc_addr", cfg.GRPCAddr()))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
			runErr = err
		}
	}

	healthServer.Shutdown()
	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	shutdownGRPC(log, grpcServer, cfg.ShutdownTimeout)
	return runErr
}

func shutdownHTTP(log *slog.Logger, s *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = s.Close()
		return
	}
	log.Info("http server stopped")
}

func shutdownGRPC(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
