// Package pgstore keeps the state in PostgreSQL, so runs on several hosts
// can share it. Rows hold the JSON document of a record next to its keys.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/job-seeker/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 5 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS postings (
		id   TEXT PRIMARY KEY,
		data JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS resumes (
		id   TEXT PRIMARY KEY,
		data JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_records (
		job_id    TEXT NOT NULL,
		resume_id TEXT NOT NULL,
		data      JSONB NOT NULL,
		PRIMARY KEY (job_id, resume_id)
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		query_key TEXT PRIMARY KEY,
		data      JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		data       JSONB NOT NULL
	)`,
}

type Options struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

type DB struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*DB)(nil)

// Open connects to the database and creates the tables that are missing.
func Open(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &DB{pool: pool}, nil
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

func (d *DB) Update(ctx context.Context, fn func(store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(ptx pgx.Tx) error {
		return fn(&tx{ctx: ctx, q: ptx})
	})
}

func (d *DB) View(ctx context.Context, fn func(store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ptx pgx.Tx) error {
		return fn(&tx{ctx: ctx, q: ptx})
	})
}
