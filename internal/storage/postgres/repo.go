// Package postgres implements the PostGIS-backed side of the ingestion
// pipeline: schema provisioning, lazy partition creation, and the NULL-gated
// provenance annotator.
//
// All SQL is produced by pure builder functions so correctness (identifier
// quoting, literal escaping, NULL gating) is unit-testable without a
// database.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is the minimal statement-execution surface the provisioner and
// annotator need. *pgxpool.Pool satisfies it; tests use fakes.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier adds read access for the reporting layer.
type Querier interface {
	Execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo wraps a pgx pool for the single destination database.
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool and verifies connectivity. A failed ping is the pipeline's
// fatal "connectivity" precondition; callers abort the whole run on error.
func New(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close releases the pool. Call once at process shutdown.
func (r *Repo) Close() {
	r.pool.Close()
}

// Exec runs a single statement.
func (r *Repo) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return r.pool.Exec(ctx, sql, args...)
}

// QueryRow runs a single-row query.
func (r *Repo) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return r.pool.QueryRow(ctx, sql, args...)
}

// Pool exposes the underlying pool for components that need richer access
// (the native loader's batched inserts).
func (r *Repo) Pool() *pgxpool.Pool {
	return r.pool
}

// pgIdent quotes an identifier for Postgres.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgLiteral quotes a string literal for Postgres. Used only where a value
// must appear in DDL (partition bounds), which cannot be parameterized.
func pgLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
