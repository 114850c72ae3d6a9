package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists FastCab data in a single SQLite file, the default
// for the demo.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens the file given by WithSQLiteDSN, creating its
// directory for plain paths, and applies the schema.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := buildOpts(opts)
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}
	slog.Debug("NewSQLiteStore: opening", "dsn", cfg.DSN)

	if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// SQLite serialises writers; one connection avoids "database is locked" under concurrent webhooks.
	db, err := openMigrated(DriverSQLite, cfg.DSN, sqliteMigrations, "SQLiteStore", func(db *sql.DB) {
		db.SetMaxOpenConns(1)
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: newSQLStore(db, "SQLiteStore", false)}, nil
}
