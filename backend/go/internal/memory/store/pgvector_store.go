package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Conn is the part of a pooled connection the store uses.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Release()
}

// Pool hands out connections. Acquire blocks until a connection is free or
// ctx is done.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// PgxPool adapts *pgxpool.Pool to Pool.
type PgxPool struct {
	*pgxpool.Pool
}

// Acquire implements Pool.
func (p PgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PgVectorStore writes memory records to a Postgres table with a pgvector
// column. Every Insert runs in its own transaction on its own pooled
// connection, so concurrent inserts never share a transaction.
type PgVectorStore struct {
	pool       Pool
	collection string
	dimension  int
	insertSQL  string
}

// NewPgVectorStore creates a store writing to table collection. dimension
// is checked on every insert when positive.
func NewPgVectorStore(pool Pool, collection string, dimension int) (*PgVectorStore, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	table := pgx.Identifier{collection}.Sanitize()
	return &PgVectorStore{
		pool:       pool,
		collection: collection,
		dimension:  dimension,
		insertSQL:  fmt.Sprintf("INSERT INTO %s (id, vector, payload) VALUES ($1, $2, $3)", table),
	}, nil
}

// Insert writes one record and commits. On any failure after Begin the
// transaction is rolled back; the connection goes back to the pool on
// every path.
func (s *PgVectorStore) Insert(ctx context.Context, vector []float32, id uuid.UUID, payload map[string]any) error {
	if err := checkDimension(vector, s.dimension); err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err := tx.Exec(ctx, s.insertSQL, id, pgvector.NewVector(vector), payload); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", s.collection, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit insert into %s: %w", s.collection, err)
	}
	committed = true
	return nil
}

// EnsureSchema creates the memory table if it does not exist.
func (s *PgVectorStore) EnsureSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrDimensionMismatch)
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id uuid PRIMARY KEY, vector vector(%d), payload jsonb)",
		pgx.Identifier{s.collection}.Sanitize(), s.dimension,
	)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.collection, err)
	}
	return nil
}

// HealthCheck pings the database through a pooled connection.
func (s *PgVectorStore) HealthCheck(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()
	return conn.Ping(ctx)
}
