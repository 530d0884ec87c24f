package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/smoothsync/internal/engine"

type instruments struct {
	attrs metric.MeasurementOption

	sent      metric.Int64Counter
	bytesSent metric.Int64Counter
	received  metric.Int64Counter
	stale     metric.Int64Counter
	malformed metric.Int64Counter
	failures  metric.Int64Counter

	depth        atomic.Int64
	registration metric.Registration
}

func newInstruments(objectID string) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	in := &instruments{
		attrs: metric.WithAttributes(attribute.String("object", objectID)),
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&in.sent, "smoothsync.messages.sent", "State updates sent", "{message}"},
		{&in.bytesSent, "smoothsync.bytes.sent", "Encoded state bytes sent", "By"},
		{&in.received, "smoothsync.messages.received", "State updates accepted into history", "{message}"},
		{&in.stale, "smoothsync.messages.stale", "State updates rejected as stale", "{message}"},
		{&in.malformed, "smoothsync.messages.malformed", "Messages that failed to decode", "{message}"},
		{&in.failures, "smoothsync.extrapolation.failures", "Extrapolations stopped by a limit", "{event}"},
	}

	var err error
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	depth, err := m.Int64ObservableGauge(
		"smoothsync.history.depth",
		metric.WithDescription("States held in the receive history"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating history depth gauge: %w", err)
	}
	in.registration, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, in.depth.Load(), in.attrs)
		return nil
	}, depth)
	if err != nil {
		return nil, fmt.Errorf("registering history depth callback: %w", err)
	}
	return in, nil
}

func (in *instruments) add(c metric.Int64Counter, n int64) {
	c.Add(context.Background(), n, in.attrs)
}

func (in *instruments) close() error {
	if in.registration == nil {
		return nil
	}
	err := in.registration.Unregister()
	in.registration = nil
	return err
}
