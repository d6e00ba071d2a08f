package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// DefaultTable is the table used when no WithTable option is given.
const DefaultTable = "rakh_cache"

// Migrate creates the cache table and its expiry index if missing.
func Migrate(ctx context.Context, db *sql.DB, table string) error {
	if table == "" {
		table = DefaultTable
	}
	ident := pq.QuoteIdentifier(table)
	index := pq.QuoteIdentifier(table + "_expires_at_idx")
	return ApplyMigrations(ctx, db,
		`CREATE TABLE IF NOT EXISTS `+ident+` (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS `+index+` ON `+ident+` (expires_at)`,
	)
}

// ApplyMigrations executes the provided SQL statements in order.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
