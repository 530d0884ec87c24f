// Package influxstorage writes trace telemetry points (bytes on the wire,
// history depth, extrapolation time, clock offset) to InfluxDB.
package influxstorage

import (
	"context"
	"fmt"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/influx"
	"github.com/OCAP2/smoothsync/pkg/core"
)

// Measurement names.
const (
	MeasurementSent     = "sent"
	MeasurementReceived = "received"
	MeasurementApplied  = "applied"
)

// ConnectTimeout bounds the ping made on Init.
const ConnectTimeout = 5 * time.Second

// Writer is the part of influx.Manager the backend writes through.
type Writer interface {
	Connect(ctx context.Context) error
	WritePoint(point *influxdb2_write.Point) error
	Close() error
}

// Backend converts trace records into InfluxDB points.
type Backend struct {
	writer Writer
	origin time.Time
}

// New creates a backend writing through a new influx.Manager.
func New(cfg config.InfluxConfig, log zerolog.Logger) *Backend {
	return NewWithWriter(influx.NewManager(cfg, log))
}

// NewWithWriter creates a backend writing through w.
func NewWithWriter(w Writer) *Backend {
	return &Backend{writer: w, origin: time.Now()}
}

// Init connects the writer.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()
	if err := b.writer.Connect(ctx); err != nil {
		return fmt.Errorf("influx: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (b *Backend) Close() error {
	return b.writer.Close()
}

// pointTime maps a local engine time in seconds onto wall time.
func (b *Backend) pointTime(local float64) time.Time {
	return b.origin.Add(time.Duration(local * float64(time.Second)))
}

// RecordSent writes the size and content of an outgoing update.
func (b *Backend) RecordSent(r *core.SentRecord) error {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementSent).
		AddTag("object", r.ObjectID).
		AddField("bytes", r.Bytes).
		AddField("flags", len(r.Flags)).
		AddField("timestamp", r.State.Timestamp).
		SetTime(b.pointTime(r.LocalTime))
	return b.writer.WritePoint(p)
}

// RecordReceived writes how far behind local time an accepted update is.
func (b *Backend) RecordReceived(r *core.ReceivedRecord) error {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementReceived).
		AddTag("object", r.ObjectID).
		AddField("timestamp", r.State.Timestamp).
		AddField("offset", r.LocalTime-r.State.Timestamp).
		AddField("teleport", r.State.Teleport).
		SetTime(b.pointTime(r.LocalTime))
	return b.writer.WritePoint(p)
}

// RecordApplied writes the receiver's clock and buffer health for one tick.
func (b *Backend) RecordApplied(r *core.AppliedRecord) error {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementApplied).
		AddTag("object", r.ObjectID).
		AddTag("mode", r.Mode).
		AddField("history_depth", r.HistoryDepth).
		AddField("extrapolated_for", r.ExtrapolatedFor).
		AddField("clock_offset", r.LocalTime-r.SenderTime).
		AddField("playback_delay", r.SenderTime-r.PlaybackTime).
		AddField("snapped", r.Snapped).
		SetTime(b.pointTime(r.LocalTime))
	return b.writer.WritePoint(p)
}
