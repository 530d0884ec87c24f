// Package dispatcher routes inbound transport messages to the handler
// registered for their kind.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/smoothsync/internal/transport"
)

// Event is an inbound message together with its arrival time.
type Event struct {
	Message  transport.Message
	Received time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Handlers run on the
// caller's goroutine, which for the engine is the simulation tick.
type Dispatcher struct {
	handlers map[transport.Kind]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	failed    metric.Int64Counter
	unknown   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[transport.Kind]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"smoothsync.dispatcher.processed",
		metric.WithDescription("Total messages handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"smoothsync.dispatcher.failed",
		metric.WithDescription("Total messages whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.unknown, err = m.Int64Counter(
		"smoothsync.dispatcher.unknown",
		metric.WithDescription("Total messages with no registered handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unknown counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
func (d *Dispatcher) Register(kind transport.Kind, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(kind, h)

	if cfg.logged && d.logger != nil {
		handler = d.withLogging(kind, handler)
	}

	d.handlers[kind] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) error {
	h, ok := d.handlers[e.Message.Kind]
	if !ok {
		d.unknown.Add(context.Background(), 1)
		return fmt.Errorf("%w: no handler for %s", transport.ErrUnknownKind, e.Message.Kind)
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind transport.Kind) bool {
	_, ok := d.handlers[kind]
	return ok
}

func (d *Dispatcher) withMetrics(kind transport.Kind, h HandlerFunc) HandlerFunc {
	kindAttr := metric.WithAttributes(attribute.String("kind", kind.String()))
	return func(e Event) error {
		err := h(e)
		d.processed.Add(context.Background(), 1, kindAttr)
		if err != nil {
			d.failed.Add(context.Background(), 1, kindAttr)
		}
		return err
	}
}

func (d *Dispatcher) withLogging(kind transport.Kind, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling message", "kind", kind, "bytes", len(e.Message.Payload))

		err := h(e)

		if err != nil {
			d.logger.Debug("message rejected", "kind", kind, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("message handled", "kind", kind, "duration", time.Since(start))
		}

		return err
	}
}
