package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

var ErrMissingDSN = errors.New("postgres: DSN is required")

// Open connects with lib/pq and pings within the connect timeout.
func Open(ctx context.Context, opts ...Option) (*sql.DB, error) {
	return open(ctx, applyOptions(opts))
}

// OpenStore connects, optionally migrates, and returns a Store that owns the
// connection; Close releases it.
func OpenStore(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := applyOptions(opts)
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := Migrate(ctx, db, cfg.Table); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	store := newStore(db, cfg)
	store.owned = true
	return store, nil
}

func open(ctx context.Context, cfg Options) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Pool.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}
