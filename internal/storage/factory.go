package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OCAP2/smoothsync/internal/config"
	gormstorage "github.com/OCAP2/smoothsync/internal/storage/gorm"
	influxstorage "github.com/OCAP2/smoothsync/internal/storage/influx"
	"github.com/OCAP2/smoothsync/internal/storage/memory"
	"github.com/OCAP2/smoothsync/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/smoothsync/internal/storage/sqlite"
)

// NewBackend creates the storage backend selected by configuration. Several
// types are combined into a Multi; no type (or "none") gives a Nop.
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	var backends Multi
	for _, typ := range cfg.Types {
		b, err := newSingle(typ, cfg, log)
		if err != nil {
			return nil, err
		}
		if b != nil {
			backends = append(backends, b)
		}
	}

	switch len(backends) {
	case 0:
		return Nop{}, nil
	case 1:
		return backends[0], nil
	default:
		return backends, nil
	}
}

func newSingle(typ string, cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	log = log.With().Str("storage", typ).Logger()
	switch typ {
	case "none":
		return nil, nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, log)
	case "postgres":
		return postgres.New(cfg.Postgres, log), nil
	case "influx":
		return influxstorage.New(cfg.Influx, log), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", typ)
	}
}

// compile-time checks
var (
	_ Backend    = (*memory.Backend)(nil)
	_ Exportable = (*memory.Backend)(nil)
	_ Backend    = (*gormstorage.Backend)(nil)
	_ Backend    = (*sqlitestorage.Backend)(nil)
	_ Backend    = (*postgres.Backend)(nil)
	_ Backend    = (*influxstorage.Backend)(nil)
)
