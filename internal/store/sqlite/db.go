// Package sqlite persists alerts, symbols and settings in a single SQLite
// database. Records are stored as JSON text keyed by their natural id, so the
// on-disk layout mirrors the JSON field names of the model package.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DB wraps the SQLite connection shared by the alert, symbol and settings tables.
type DB struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open opens (or creates) the database at path with WAL journaling and
// ensures the schema exists. The parent directory is created if missing.
func Open(path string, log *logrus.Entry) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection; every mutation is synchronous.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.WithField("path", path).Info("sqlite opened")
	return &DB{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT    PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS symbols (
			symbol     TEXT    PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS settings (
			name       TEXT    PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// SQL returns the underlying sql.DB for health checks.
func (d *DB) SQL() *sql.DB { return d.db }

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
