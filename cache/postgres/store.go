package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adeilh/go-rakh-session/cache"
)

// Store implements cache.Store on a single PostgreSQL table. Expiry is lazy:
// expired rows are reported missing on read and removed at that point.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
	owned bool
}

// NewStore wraps an existing *sql.DB connection. Run Migrate first.
func NewStore(db *sql.DB, opts ...Option) *Store {
	return newStore(db, applyOptions(opts))
}

func newStore(db *sql.DB, cfg Options) *Store {
	return &Store{db: db, table: pq.QuoteIdentifier(cfg.Table), now: time.Now}
}

// Close closes the connection if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// SetNowFunc allows injecting a deterministic clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	s.now = fn
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value, expires_at FROM ` + s.table + ` WHERE key = $1`

	var (
		value     []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}

	if expiresAt.Valid && s.now().After(expiresAt.Time) {
		_ = s.deleteExpired(ctx, key, expiresAt.Time)
		return nil, cache.ErrNotFound
	}
	return value, nil
}

// Set upserts value; ttl <= 0 stores a row that never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `INSERT INTO ` + s.table + ` (key, value, expires_at) VALUES ($1, $2, $3)
	          ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(ttl).UTC(), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return cache.ErrNotFound
	}
	return nil
}

// Purge removes every expired row and reports how many were dropped.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE expires_at IS NOT NULL AND expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	return res.RowsAffected()
}

// deleteExpired only removes the row if nobody rewrote it since it was read.
func (s *Store) deleteExpired(ctx context.Context, key string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE key = $1 AND expires_at = $2`, key, expiresAt)
	return err
}
