package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options selects and locates the entitlement database.
type Options struct {
	Driver      string // "postgres" or "sqlite"
	DatabaseURL string
	SQLitePath  string
}

// Open connects to the configured database and ensures the schema exists.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	switch opts.Driver {
	case "sqlite":
		return OpenSQLite(opts.SQLitePath)
	case "postgres", "":
		pool, err := OpenPostgresPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo := NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// OpenPostgresPool establishes the PostgreSQL connection pool.
func OpenPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	config.MaxConns = 100
	config.MinConns = 20
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	// Prepared statements break behind PgBouncer transaction pooling.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return pool, nil
}
