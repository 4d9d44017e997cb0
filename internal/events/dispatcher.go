package events

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const DefaultBufferSize = 256

type envelope struct {
	ev   Event
	span trace.SpanContext
}

// Dispatcher buffers events and fans them out to sinks from a single
// goroutine started with Run. A full buffer drops the event.
type Dispatcher struct {
	queue   chan envelope
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration
	dropped atomic.Int64
}

func NewDispatcher(log *slog.Logger, bufferSize int, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		queue:   make(chan envelope, bufferSize),
		sinks:   sinks,
		log:     log,
		timeout: 5 * time.Second,
	}
}

func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	select {
	case d.queue <- envelope{ev: ev, span: trace.SpanContextFromContext(ctx)}:
	default:
		d.dropped.Add(1)
		d.log.Warn("event dropped, buffer full", "event_type", ev.Type, "event_id", ev.ID)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is cancelled, then drains what is buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case env := <-d.queue:
			d.deliver(context.WithoutCancel(ctx), env)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case env := <-d.queue:
			d.deliver(ctx, env)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env envelope) {
	if env.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, env.span)
	}
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Deliver(sctx, env.ev)
		cancel()
		if err != nil {
			d.log.Error("event delivery failed", "event_type", env.ev.Type, "event_id", env.ev.ID, "err", err)
		}
	}
}
