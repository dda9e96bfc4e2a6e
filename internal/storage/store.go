// Package storage is the relational persistence layer: credential keys,
// session audit rows, user blocks, the suspicious-activity log and the listen
// counters. It is the only strong consistency boundary in the system.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// Store wraps the relational database. SQLite (embedded, default) and
// Postgres are supported.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database selected by driver ("sqlite" or "postgres").
// For sqlite an empty dsn means in-memory; a non-empty dsn is treated as a
// data directory. SQLite schemas are migrated in place; Postgres schemas are
// provisioned externally.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", driverSQLite:
		return openSQLite(dsn)
	case driverPostgres:
		db, err := sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Store{db: db, driver: driverPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func openSQLite(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "tonbeats.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db, driver: driverSQLite}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive; used by the readiness probe.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// rebind converts ?-style placeholders to the driver's bindvar form.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}
