package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cidledger/internal/platform/config"
)

// Pool wraps the primary *sql.DB and an optional read replica.
type Pool struct {
	db      *sql.DB
	replica *sql.DB
}

// New opens the primary (and replica, when configured) through the pgx
// stdlib driver. Returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := open(ctx, cfg.URL, cfg)
	if err != nil {
		return nil, err
	}
	p := &Pool{db: db}

	if cfg.ReadURL != "" {
		replica, err := open(ctx, cfg.ReadURL, cfg)
		if err != nil {
			db.Close() //nolint:errcheck // best-effort cleanup on init failure
			return nil, fmt.Errorf("replica: %w", err)
		}
		p.replica = replica
	}
	return p, nil
}

func open(ctx context.Context, url string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// DB returns the primary handle used for writes and consistent reads.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// ReadDB returns the replica when configured, otherwise the primary.
func (p *Pool) ReadDB() *sql.DB {
	if p.replica != nil {
		return p.replica
	}
	return p.db
}

// Health checks the primary connection.
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
	if p.replica != nil {
		_ = p.replica.Close()
	}
	return p.db.Close()
}

// Stats returns primary pool statistics.
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}
