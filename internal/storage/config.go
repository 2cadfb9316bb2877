package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
)

const connMaxIdleTime = 5 * time.Minute

// Open connects to the database described by cfg with pooling applied.
// dbname overrides cfg.DBName for Postgres; DuckDB ignores it.
func Open(ctx context.Context, cfg config.DatabaseConfig, dbname string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case config.DriverDuckDB:
		db, err = openDuckDB(cfg.DSN(dbname))
	case config.DriverPostgres:
		db, err = sql.Open(config.DriverPostgres, cfg.DSN(dbname))
	default:
		return nil, errors.NewConfigError("unsupported database driver "+cfg.Driver, "driver")
	}

	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Lifetime())
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping database").
			WithSuggestion("check the host, port and credentials in pipeline_config.toml")
	}

	return db, nil
}

// withTimeout bounds ctx by the configured query timeout, if any
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
