package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/geo"
	"github.com/OCAP2/smoothsync/pkg/core"
)

func sent(id string, ts float64, pos mgl64.Vec3) *core.SentRecord {
	return &core.SentRecord{
		ObjectID:  id,
		LocalTime: ts,
		State:     core.SyncState{Timestamp: ts, Position: pos},
		Flags:     []string{"position"},
		Bytes:     13,
	}
}

func applied(id string, ts float64, pos mgl64.Vec3) *core.AppliedRecord {
	return &core.AppliedRecord{
		ObjectID:  id,
		LocalTime: ts,
		Mode:      "interpolating",
		Position:  pos,
		Rotation:  mgl64.QuatIdent(),
	}
}

func TestNew(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: "/tmp/test", CompressOutput: true})
	require.NotNil(t, b)
	assert.Equal(t, "/tmp/test", b.cfg.OutputDir)
	assert.NotNil(t, b.objects)
}

func TestRecord_GroupsByObject(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordSent(sent("a", 0, mgl64.Vec3{})))
	require.NoError(t, b.RecordSent(sent("a", 0.1, mgl64.Vec3{1, 0, 0})))
	require.NoError(t, b.RecordReceived(&core.ReceivedRecord{ObjectID: "b", LocalTime: 0.2}))
	require.NoError(t, b.RecordApplied(applied("b", 0.3, mgl64.Vec3{})))

	assert.Equal(t, []string{"a", "b"}, b.ObjectIDs())

	a, ok := b.Object("a")
	require.True(t, ok)
	assert.Len(t, a.Sent, 2)
	assert.Empty(t, a.Received)

	bb, ok := b.Object("b")
	require.True(t, ok)
	assert.Len(t, bb.Received, 1)
	assert.Len(t, bb.Applied, 1)

	_, ok = b.Object("missing")
	assert.False(t, ok)
}

func TestRecord_StoresCopies(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	r := sent("a", 0, mgl64.Vec3{1, 2, 3})
	require.NoError(t, b.RecordSent(r))
	r.State.Position = mgl64.Vec3{9, 9, 9}

	a, _ := b.Object("a")
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, a.Sent[0].State.Position)
}

func TestInit_Resets(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.RecordSent(sent("a", 0, mgl64.Vec3{})))
	require.NoError(t, b.Init())
	assert.Empty(t, b.ObjectIDs())
}

func TestTracks(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordSent(sent("a", 0, mgl64.Vec3{0, 0, 0})))
	require.NoError(t, b.RecordSent(sent("a", 1, mgl64.Vec3{3, 0, 0})))
	require.NoError(t, b.RecordSent(sent("a", 2, mgl64.Vec3{3, 4, 0})))
	require.NoError(t, b.RecordApplied(applied("a", 1, mgl64.Vec3{0, 0, 0})))

	track, err := b.SentTrack("a")
	require.NoError(t, err)
	assert.InDelta(t, 7.0, track.Length(), 1e-9)

	_, err = b.AppliedTrack("a")
	assert.ErrorIs(t, err, geo.ErrShortTrack)
}

func TestClose_NoOutputDir(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordSent(sent("a", 0, mgl64.Vec3{})))
	require.NoError(t, b.Close())
	assert.Empty(t, b.ExportedFilePath())
}

func TestClose_ExportsJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordSent(sent("crate", 0, mgl64.Vec3{0, 0, 0})))
	require.NoError(t, b.RecordSent(sent("crate", 1, mgl64.Vec3{0, 5, 0})))
	require.NoError(t, b.RecordApplied(applied("crate", 1, mgl64.Vec3{0, 0, 0})))
	require.NoError(t, b.RecordApplied(applied("crate", 2, mgl64.Vec3{0, 5, 0})))
	require.NoError(t, b.Close())

	path := b.ExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "trace_20240501_123000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export TraceExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Objects, 1)
	obj := export.Objects[0]
	assert.Equal(t, "crate", obj.ObjectID)
	assert.Equal(t, 2, obj.SentCount)
	assert.Equal(t, 26, obj.SentBytes)
	assert.InDelta(t, 5.0, obj.SentLength, 1e-9)
	assert.InDelta(t, 5.0, obj.AppliedLength, 1e-9)
	assert.NotEmpty(t, obj.AppliedPath)
	assert.Len(t, obj.Sent, 2)
}

func TestClose_ExportsGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordSent(sent("a", 0, mgl64.Vec3{})))
	require.NoError(t, b.Close())

	path := b.ExportedFilePath()
	assert.Equal(t, ".gz", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export TraceExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	require.Len(t, export.Objects, 1)
	assert.Equal(t, 0.0, export.Objects[0].SentLength)
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				_ = b.RecordSent(sent("a", float64(i*100+j), mgl64.Vec3{}))
			}
		}(i)
	}
	wg.Wait()

	a, _ := b.Object("a")
	assert.Len(t, a.Sent, 400)
}
