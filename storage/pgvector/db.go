package pgvector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the database connection pool shared by the repositories.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		pool:   pool,
		logger: slog.Default().With("component", "pgvector"),
	}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS ragchat_manifests (
	namespace  TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	manifest   JSONB NOT NULL
);

CREATE SEQUENCE IF NOT EXISTS ragchat_generation_seq;

CREATE TABLE IF NOT EXISTS ragchat_entries (
	seq        BIGSERIAL PRIMARY KEY,
	namespace  TEXT NOT NULL,
	generation BIGINT NOT NULL,
	chunk_id   BIGINT NOT NULL,
	chunk      JSONB NOT NULL,
	embedding  vector NOT NULL
);

CREATE INDEX IF NOT EXISTS ragchat_entries_generation_idx
	ON ragchat_entries (namespace, generation, seq);

CREATE INDEX IF NOT EXISTS ragchat_entries_chunk_idx
	ON ragchat_entries (namespace, generation, chunk_id);

CREATE TABLE IF NOT EXISTS ragchat_turns (
	session    TEXT NOT NULL,
	turn_order INTEGER NOT NULL,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session, turn_order)
);
`

// EnsureSchema creates the extension, tables and indexes if missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
