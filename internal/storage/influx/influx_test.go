package influxstorage

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/pkg/core"
)

type captureWriter struct {
	connectErr error
	points     []*influxdb2_write.Point
	closed     bool
}

func (w *captureWriter) Connect(context.Context) error { return w.connectErr }

func (w *captureWriter) WritePoint(p *influxdb2_write.Point) error {
	w.points = append(w.points, p)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func fields(p *influxdb2_write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tags(p *influxdb2_write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestInit_ConnectError(t *testing.T) {
	w := &captureWriter{connectErr: errors.New("down")}
	b := NewWithWriter(w)
	assert.ErrorContains(t, b.Init(), "down")
}

func TestRecordApplied(t *testing.T) {
	w := &captureWriter{}
	b := NewWithWriter(w)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordApplied(&core.AppliedRecord{
		ObjectID:        "crate",
		LocalTime:       10,
		SenderTime:      9.5,
		PlaybackTime:    9.4,
		Mode:            "extrapolating",
		HistoryDepth:    4,
		ExtrapolatedFor: 0.25,
	}))
	require.Len(t, w.points, 1)
	p := w.points[0]

	assert.Equal(t, MeasurementApplied, p.Name())
	assert.Equal(t, map[string]string{"object": "crate", "mode": "extrapolating"}, tags(p))
	f := fields(p)
	assert.Equal(t, int64(4), f["history_depth"])
	assert.InDelta(t, 0.25, f["extrapolated_for"], 1e-12)
	assert.InDelta(t, 0.5, f["clock_offset"], 1e-12)
	assert.InDelta(t, 0.1, f["playback_delay"], 1e-9)
	assert.Equal(t, false, f["snapped"])
	assert.Equal(t, b.origin.Add(10e9), p.Time())

	require.NoError(t, b.Close())
	assert.True(t, w.closed)
}

func TestRecordSentAndReceived(t *testing.T) {
	w := &captureWriter{}
	b := NewWithWriter(w)

	require.NoError(t, b.RecordSent(&core.SentRecord{ObjectID: "a", Bytes: 17, Flags: []string{"position"}}))
	require.NoError(t, b.RecordReceived(&core.ReceivedRecord{
		ObjectID:  "a",
		LocalTime: 2,
		State:     core.SyncState{Timestamp: 1.5, Teleport: true},
	}))
	require.Len(t, w.points, 2)

	assert.Equal(t, MeasurementSent, w.points[0].Name())
	assert.Equal(t, int64(17), fields(w.points[0])["bytes"])
	assert.Equal(t, int64(1), fields(w.points[0])["flags"])

	recv := fields(w.points[1])
	assert.Equal(t, MeasurementReceived, w.points[1].Name())
	assert.InDelta(t, 0.5, recv["offset"], 1e-12)
	assert.Equal(t, true, recv["teleport"])
}

func TestBackupFileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")
	b := New(config.InfluxConfig{
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		Org:        "smoothsync",
		Bucket:     "smoothsync_telemetry",
		BackupPath: path,
	}, zerolog.Nop())
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordSent(&core.SentRecord{ObjectID: "crate", Bytes: 9}))
	require.NoError(t, b.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sent,object=crate bytes=9i")
}
