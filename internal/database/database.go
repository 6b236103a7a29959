package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}
	return pool, nil
}

// Schema is the audit log table. Workers append rows; the gateway reads,
// protects and deletes them.
const Schema = `
CREATE TABLE IF NOT EXISTS log_items (
	correlation_id TEXT NOT NULL,
	log_item_type TEXT NOT NULL,
	blob_sequence INTEGER NOT NULL DEFAULT 0,
	standard_identifiers TEXT[] NOT NULL DEFAULT '{}',
	database_id TEXT,
	source_ids TEXT[] NOT NULL DEFAULT '{}',
	cataloger TEXT,
	protected BOOLEAN NOT NULL DEFAULT FALSE,
	content JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (correlation_id, log_item_type, blob_sequence)
);
CREATE INDEX IF NOT EXISTS idx_log_items_type_created ON log_items(log_item_type, created_at);
CREATE INDEX IF NOT EXISTS idx_log_items_cataloger ON log_items(cataloger);`

// EnsureSchema creates the log_items table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "ensure schema")
	}
	return nil
}
