// Package store implements the repository layer of §4.2: typed,
// idempotent access to the Postgres schema backing every document,
// entity, relationship, workflow, and embedding row in the pipeline.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the typed repository methods
// used by every stage of the pipeline. A lightweight alternative to an
// ORM: callers get direct SQL control and pgxpool's connection pooling
// without reflection-based mapping.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgx connection pool against connString and verifies
// connectivity with a ping before returning.
//
//	postgresql://[user[:password]@][host][:port][/dbname][?sslmode=disable]
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool returns the underlying pool for callers that need transactions
// or batch operations the typed methods don't expose.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
