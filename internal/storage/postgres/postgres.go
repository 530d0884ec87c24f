// Package postgres records traces into PostgreSQL through the GORM backend.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/database"
	gormstorage "github.com/OCAP2/smoothsync/internal/storage/gorm"
)

// Backend connects to Postgres on Init and delegates recording to the GORM
// backend.
type Backend struct {
	*gormstorage.Backend
	cfg config.PostgresConfig
	log zerolog.Logger
}

// New creates a new Postgres storage backend. No connection is made until
// Init.
func New(cfg config.PostgresConfig, log zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: log}),
		cfg:     cfg,
		log:     log,
	}
}

// Init connects, migrates the schema and starts the DB writer.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg, b.log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	b.Backend.SetDB(db)
	return b.Backend.Init()
}
