// Package memory keeps trace records in memory and exports them as JSON when
// closed.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/geo"
	"github.com/OCAP2/smoothsync/pkg/core"
)

// ObjectRecord groups everything recorded for one synchronized object
type ObjectRecord struct {
	ObjectID string
	Sent     []core.SentRecord
	Received []core.ReceivedRecord
	Applied  []core.AppliedRecord
}

// Backend stores trace records in memory and exports to JSON
type Backend struct {
	cfg       config.MemoryConfig
	startedAt time.Time
	now       func() time.Time

	objects map[string]*ObjectRecord

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		now:     time.Now,
		objects: make(map[string]*ObjectRecord),
	}
}

// Init resets the store and stamps the trace start time
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects = make(map[string]*ObjectRecord)
	b.startedAt = b.now()
	b.lastExportPath = ""
	return nil
}

// Close exports the trace when an output directory is configured
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

func (b *Backend) object(id string) *ObjectRecord {
	rec, ok := b.objects[id]
	if !ok {
		rec = &ObjectRecord{ObjectID: id}
		b.objects[id] = rec
	}
	return rec
}

// RecordSent stores a copy of a sent record
func (b *Backend) RecordSent(r *core.SentRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.object(r.ObjectID)
	rec.Sent = append(rec.Sent, *r)
	return nil
}

// RecordReceived stores a copy of a received record
func (b *Backend) RecordReceived(r *core.ReceivedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.object(r.ObjectID)
	rec.Received = append(rec.Received, *r)
	return nil
}

// RecordApplied stores a copy of an applied record
func (b *Backend) RecordApplied(r *core.AppliedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.object(r.ObjectID)
	rec.Applied = append(rec.Applied, *r)
	return nil
}

// Object returns a copy of everything recorded for one object.
func (b *Backend) Object(id string) (ObjectRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.objects[id]
	if !ok {
		return ObjectRecord{}, false
	}
	return ObjectRecord{
		ObjectID: rec.ObjectID,
		Sent:     append([]core.SentRecord(nil), rec.Sent...),
		Received: append([]core.ReceivedRecord(nil), rec.Received...),
		Applied:  append([]core.AppliedRecord(nil), rec.Applied...),
	}, true
}

// ObjectIDs lists the recorded objects in sorted order.
func (b *Backend) ObjectIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.objects))
	for id := range b.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SentTrack is the path the owner reported for an object.
func (b *Backend) SentTrack(id string) (geom.LineString, error) {
	rec, _ := b.Object(id)
	points := make([]mgl64.Vec3, 0, len(rec.Sent))
	for _, s := range rec.Sent {
		points = append(points, s.State.Position)
	}
	return geo.Track(points)
}

// AppliedTrack is the path a receiver displayed for an object.
func (b *Backend) AppliedTrack(id string) (geom.LineString, error) {
	rec, _ := b.Object(id)
	points := make([]mgl64.Vec3, 0, len(rec.Applied))
	for _, a := range rec.Applied {
		points = append(points, a.Position)
	}
	return geo.Track(points)
}

// ExportedFilePath returns the path of the last exported file
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
