package store

import (
	"errors"
	"strings"
)

// Database driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrMissingDSN is returned by SQL backends constructed without a DSN.
var ErrMissingDSN = errors.New("database DSN not set")

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN    string // database connection string or SQLite file path
	Driver string // DriverSQLite or DriverPostgres
}

// Option defines a function for configuring store implementations.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = DriverSQLite
	}
}

// WithPostgresDSN selects the PostgreSQL backend with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = DriverPostgres
	}
}

func buildOpts(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and keyword DSNs,
// and "sqlite3" for everything else (file paths, file: URIs).
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return DriverPostgres
	}
	return DriverSQLite
}
