package store

import (
	"database/sql"
	_ "embed"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Connection pool limits for PostgreSQL.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists FastCab data in PostgreSQL, for deployments that
// run more than the demo on one host.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects with WithPostgresDSN and applies the schema.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := buildOpts(opts)
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}
	slog.Debug("NewPostgresStore: connecting", "dsn_set", true)

	db, err := openMigrated(DriverPostgres, cfg.DSN, postgresMigrations, "PostgresStore", func(db *sql.DB) {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore: newSQLStore(db, "PostgresStore", true)}, nil
}
