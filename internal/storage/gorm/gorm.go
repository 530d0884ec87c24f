// Package gormstorage implements a trace store on top of any GORM database,
// buffering rows in internal queues that a background writer drains in
// batches.
package gormstorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/OCAP2/smoothsync/internal/database"
	"github.com/OCAP2/smoothsync/internal/model"
	"github.com/OCAP2/smoothsync/internal/queue"
	"github.com/OCAP2/smoothsync/pkg/core"
)

// DefaultFlushInterval is how often queued rows are written.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Sent     *queue.Queue[model.SentState]
	Received *queue.Queue[model.ReceivedState]
	Applied  *queue.Queue[model.AppliedSample]
}

func newQueues() *queues {
	return &queues{
		Sent:     queue.New[model.SentState](),
		Received: queue.New[model.ReceivedState](),
		Applied:  queue.New[model.AppliedSample](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	stopChan chan struct{}
	done     sync.WaitGroup
	writeMu  sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB is the database rows are written to.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB attaches a database to a backend created without one. Rows queued
// before are kept.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm storage: no database")
	}

	b.deps.Logger.Info().Msg("Migrating schema")
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.startDBWriter()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.done.Wait()
		b.stopChan = nil
	}
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// RecordSent converts and queues a sent state.
func (b *Backend) RecordSent(r *core.SentRecord) error {
	row, err := model.FromSent(r)
	if err != nil {
		return err
	}
	b.queues.Sent.Push(row)
	return nil
}

// RecordReceived converts and queues a received state.
func (b *Backend) RecordReceived(r *core.ReceivedRecord) error {
	row, err := model.FromReceived(r)
	if err != nil {
		return err
	}
	b.queues.Received.Push(row)
	return nil
}

// RecordApplied converts and queues an applied sample.
func (b *Backend) RecordApplied(r *core.AppliedRecord) error {
	b.queues.Applied.Push(model.FromApplied(r))
	return nil
}

// Pending is the number of rows waiting for the next write.
func (b *Backend) Pending() int {
	return b.queues.Sent.Len() + b.queues.Received.Len() + b.queues.Applied.Len()
}

// Flush writes every queued row now.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var firstErr error
	for _, err := range []error{
		writeQueue(b.deps.DB, b.queues.Sent, "sent states", b.deps.Logger),
		writeQueue(b.deps.DB, b.queues.Received, "received states", b.deps.Logger),
		writeQueue(b.deps.DB, b.queues.Applied, "applied samples", b.deps.Logger),
	} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error().Err(err).Str("table", name).Msg("Error writing rows")
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("committing %s: %w", name, err)
	}

	log.Trace().Str("table", name).Int("rows", len(items)).Msg("Rows written")
	return nil
}

// startDBWriter starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriter() {
	stop := b.stopChan
	b.done.Add(1)
	go func() {
		defer b.done.Done()
		ticker := time.NewTicker(b.deps.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = b.Flush()
			}
		}
	}()
}
