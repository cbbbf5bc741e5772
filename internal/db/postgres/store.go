// Package postgres implements db.Store on PostgreSQL with the pgvector
// extension. Vector similarity uses the cosine distance operator,
// keyword relevance uses ts_rank_cd over title and abstract.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const defaultDimensions = 1536

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// Config holds connection parameters for a postgres store.
type Config struct {
	DSN        string
	Dimensions int
}

// querier is the subset of pgxpool.Pool the store uses. Tests swap in
// a fake.
type querier interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements db.Store via a pgx connection pool.
type Store struct {
	pool       *pgxpool.Pool
	q          querier
	dimensions int
}

// NewStore creates a postgres store. The pool connects lazily; call
// WaitForReady before first use.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultDimensions
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Store{pool: pool, q: pool, dimensions: dims}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.q.Ping(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// EnsureSchema creates the papers table and its indexes. Safe to run
// repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS papers (
			id        BIGSERIAL PRIMARY KEY,
			note_id   TEXT NOT NULL DEFAULT '',
			title     TEXT NOT NULL,
			abstract  TEXT NOT NULL,
			link      TEXT NOT NULL UNIQUE,
			embedding vector(%d)
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS papers_note_id_idx ON papers (note_id)`,
		`CREATE INDEX IF NOT EXISTS papers_fts_idx ON papers
			USING GIN (to_tsvector('english', title || ' ' || abstract))`,
		`CREATE INDEX IF NOT EXISTS papers_embedding_idx ON papers
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range stmts {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpSchema, Err: err}
		}
	}
	return nil
}

// mapError wraps driver errors with the operation name, translating
// unique violations into the store conflict sentinel.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &db.Error{Op: op, Err: fmt.Errorf("%v: %w", pgErr.ConstraintName, domain.ErrStoreConflict)}
	}
	return &db.Error{Op: op, Err: err}
}
