// Package platform wires the infrastructure clients (Postgres, Redis,
// migrations) shared by the api and worker processes.
package platform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool opens a connection pool against databaseURL and verifies
// connectivity with a ping.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return pool, nil
}

// DBTX is the subset of *pgxpool.Pool / pgx.Tx every store depends on.
// Stores accept DBTX instead of *pgxpool.Pool directly so that operations
// needing a `SELECT ... FOR UPDATE` transaction (IP allocation, PD sizing)
// can run the same queries against an explicit pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
