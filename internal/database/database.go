// Package database provides the SQLite local store for nutrinest
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/migrations"
)

// ErrNotInitialized is returned when the database has been closed or never opened
var ErrNotInitialized = errors.New("database not initialized")

// DB is the local store. Reads may run concurrently; writes are serialized
// through WithTransaction and announced on the Hub once committed.
type DB struct {
	sql     *sql.DB
	writeMu sync.Mutex
	hub     *Hub
	logger  *loggy.Logger
}

// Open connects to the SQLite database described by cfg
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *loggy.Logger) (*DB, error) {
	logger.Info("Opening database", "path", cfg.Path)

	sqlDB, err := sql.Open("sqlite3", buildSQLiteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// every connection to an in-memory database is a separate database
	if isMemory(cfg.Path) {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(sqlDB, logger), nil
}

// New wraps an existing connection pool
func New(sqlDB *sql.DB, logger *loggy.Logger) *DB {
	return &DB{
		sql:    sqlDB,
		hub:    NewHub(),
		logger: logger,
	}
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// buildSQLiteDSN builds a go-sqlite3 DSN with pragmas from cfg
func buildSQLiteDSN(cfg *config.DatabaseConfig) string {
	if isMemory(cfg.Path) {
		return cfg.Path
	}

	params := url.Values{}
	params.Add("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	if cfg.JournalMode != "" {
		params.Add("_journal_mode", cfg.JournalMode)
	}
	if cfg.SynchronousMode != "" {
		params.Add("_synchronous", cfg.SynchronousMode)
	}
	if cfg.CacheSize != 0 {
		params.Add("_cache_size", strconv.Itoa(cfg.CacheSize))
	}
	params.Add("_foreign_keys", strconv.FormatBool(cfg.ForeignKeys))
	params.Add("_txlock", "immediate")

	return fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode())
}

// SQL returns the underlying connection pool for reads
func (d *DB) SQL() *sql.DB {
	return d.sql
}

// Hub returns the change notification hub
func (d *DB) Hub() *Hub {
	return d.hub
}

// Close closes the connection pool
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// WithTransaction runs fn in a single write transaction. Writers are
// serialized; on success the named tables are published on the Hub. A
// cancelled ctx, an error or a panic rolls the whole transaction back.
func (d *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error, tables ...string) error {
	if d == nil || d.sql == nil {
		return ErrNotInitialized
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.logger.Error("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if len(tables) > 0 {
		d.hub.Publish(tables...)
	}
	return nil
}

// Migrate applies all pending embedded migrations
func (d *DB) Migrate() error {
	m, src, err := d.migrator()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	d.logger.Info("Database migration complete", "version", version, "dirty", dirty)
	return nil
}

// Rollback reverts the given number of migration steps
func (d *DB) Rollback(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}

	m, src, err := d.migrator()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	d.logger.Info("Database rollback complete", "version", version, "dirty", dirty)
	return nil
}

// Version reports the applied schema version. A zero version with a nil
// error means no migration has been applied.
func (d *DB) Version() (uint, bool, error) {
	m, src, err := d.migrator()
	if err != nil {
		return 0, false, err
	}
	defer src.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrator builds a migrate instance over the embedded source. Closing the
// instance would close d.sql, so callers close only the returned source.
func (d *DB) migrator() (*migrate.Migrate, interface{ Close() error }, error) {
	if d == nil || d.sql == nil {
		return nil, nil, ErrNotInitialized
	}

	src, err := migrations.Source()
	if err != nil {
		return nil, nil, err
	}

	driver, err := sqlite3.WithInstance(d.sql, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, src, nil
}
