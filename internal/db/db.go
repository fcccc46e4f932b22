// Package db persists users, memories, portfolio snapshots, counterparties,
// screened transactions and cached prices in PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoDatabaseURL is returned by New when no connection string is known.
var ErrNoDatabaseURL = errors.New("DATABASE_URL is not set")

// Querier is the subset of pgxpool.Pool used by the store. pgxmock pools
// satisfy it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB wraps the PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool. An empty url falls back to
// the DATABASE_URL environment variable.
func New(ctx context.Context, url string) (*DB, error) {
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return nil, ErrNoDatabaseURL
	}

	// Configure connection pool
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		metrics.RecordError("connect", "database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Database connection pool created successfully")

	return &DB{pool: pool}, nil
}

// SetPool replaces the pool; used by test helpers.
func (db *DB) SetPool(pool *pgxpool.Pool) {
	db.pool = pool
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Pool returns the underlying connection pool
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	if db == nil || db.pool == nil {
		return errors.New("database not connected")
	}
	return db.pool.Ping(ctx)
}

// Store returns a Store over the pool.
func (db *DB) Store() *Store {
	return NewStore(db.pool)
}

// PriceCache returns a PriceCache over the pool.
func (db *DB) PriceCache(ttl time.Duration) *PriceCache {
	return NewPriceCache(db.pool, ttl)
}
