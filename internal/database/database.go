// Package database opens the GORM connections the trace stores write to and
// manages the trace schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/model"
)

// SlowQuery is the duration above which a query is logged as slow.
const SlowQuery = 200 * time.Millisecond

var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
}

var memorySeq atomic.Uint64

// MemoryDSN names a fresh shared-cache in-memory SQLite database. Every call
// returns a distinct database so independent stores never see each other's
// rows.
func MemoryDSN() string {
	return fmt.Sprintf("file:smoothsync_%d?mode=memory&cache=shared", memorySeq.Add(1))
}

// OpenPostgres connects to Postgres and pings it.
func OpenPostgres(cfg config.PostgresConfig, log zerolog.Logger) (*gorm.DB, error) {
	log.Debug().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connecting to Postgres")

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 NewLogger(log),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	log.Info().Str("host", cfg.Host).Msg("Connected to Postgres")
	return db, nil
}

// OpenSQLite opens the SQLite database at path, or a new in-memory one when
// path is empty.
func OpenSQLite(path string, log zerolog.Logger) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN()
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 NewLogger(log),
	})
	if err != nil {
		return nil, err
	}

	// an in-memory database lives as long as its single connection
	if path == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("accessing sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Migrate creates or updates the trace tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating trace schema: %w", err)
	}
	return nil
}

// DumpSQLite vacuums a SQLite database into path, replacing any existing
// file.
func DumpSQLite(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("sqlite dump path not set")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing previous dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("dumping to %s: %w", path, err)
	}
	return nil
}

// Logger reports failed and slow GORM queries through zerolog. Missing
// records are not failures.
type Logger struct {
	log   zerolog.Logger
	level logger.LogLevel
	slow  time.Duration
}

// NewLogger logs at warn level: errors and queries slower than SlowQuery.
func NewLogger(log zerolog.Logger) Logger {
	return Logger{log: log, level: logger.Warn, slow: SlowQuery}
}

func (l Logger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l Logger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.log.Info().Msgf(msg, args...)
	}
}

func (l Logger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.log.Warn().Msgf(msg, args...)
	}
}

func (l Logger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.log.Error().Msgf(msg, args...)
	}
}

func (l Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Query failed")
	case l.slow > 0 && elapsed > l.slow && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Query")
	}
}
