package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"praman/internal/platform/retry"
)

const pingTimeout = 5 * time.Second

// Config sizes the registration and revocation pool.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Pool is the Postgres connection pool shared by the resolver and
// revocation stores.
type Pool struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens a pgx-backed pool and retries the first ping until Postgres
// accepts connections or the retry budget runs out.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := retry.Connect(ctx, logger, "postgres", retry.DefaultMaxElapsed, func(ctx context.Context) (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db, logger: logger}, nil
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate applies pending migrations from fsys.
func (p *Pool) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	return Migrate(ctx, p.db, fsys, p.logger)
}

// Health is the readiness check for the postgres backend.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
