package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	execErr    error
	commitErr  error
	sql        string
	args       []any
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.sql, t.args = sql, args
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeConn struct {
	pool     *fakePool
	tx       *fakeTx
	beginErr error
	execSQL  []string
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execSQL = append(c.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Release() {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	c.pool.released++
}

type fakePool struct {
	mu         sync.Mutex
	conn       *fakeConn
	acquireErr error
	acquired   int
	released   int
}

func (p *fakePool) Acquire(context.Context) (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired++
	return p.conn, nil
}

func newFakePool(tx *fakeTx) *fakePool {
	p := &fakePool{}
	p.conn = &fakeConn{pool: p, tx: tx}
	return p
}

func TestPgVectorStore_InsertCommits(t *testing.T) {
	tx := &fakeTx{}
	pool := newFakePool(tx)
	s, err := NewPgVectorStore(pool, "temp_memory", 3)
	require.NoError(t, err)

	id := uuid.New()
	payload := map[string]any{"fact": "Likes tea"}
	require.NoError(t, s.Insert(context.Background(), []float32{1, 2, 3}, id, payload))

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Equal(t, `INSERT INTO "temp_memory" (id, vector, payload) VALUES ($1, $2, $3)`, tx.sql)
	require.Len(t, tx.args, 3)
	assert.Equal(t, id, tx.args[0])
	assert.Equal(t, pgvector.NewVector([]float32{1, 2, 3}), tx.args[1])
	assert.Equal(t, payload, tx.args[2])
	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
}

func TestPgVectorStore_FailuresRollBackAndRelease(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name         string
		tx           *fakeTx
		beginErr     error
		wantRollback bool
	}{
		{name: "exec fails", tx: &fakeTx{execErr: boom}, wantRollback: true},
		{name: "commit fails", tx: &fakeTx{commitErr: boom}, wantRollback: true},
		{name: "begin fails", tx: &fakeTx{}, beginErr: boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newFakePool(tt.tx)
			pool.conn.beginErr = tt.beginErr
			s, err := NewPgVectorStore(pool, "temp_memory", 0)
			require.NoError(t, err)

			err = s.Insert(context.Background(), []float32{1}, uuid.New(), map[string]any{})
			assert.ErrorIs(t, err, boom)
			assert.False(t, tt.tx.committed)
			assert.Equal(t, tt.wantRollback, tt.tx.rolledBack)
			assert.Equal(t, pool.acquired, pool.released)
		})
	}
}

func TestPgVectorStore_PoolExhausted(t *testing.T) {
	pool := newFakePool(&fakeTx{})
	pool.acquireErr = context.DeadlineExceeded
	s, err := NewPgVectorStore(pool, "temp_memory", 0)
	require.NoError(t, err)

	err = s.Insert(context.Background(), []float32{1}, uuid.New(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, pool.released)
}

func TestPgVectorStore_DimensionMismatch(t *testing.T) {
	pool := newFakePool(&fakeTx{})
	s, err := NewPgVectorStore(pool, "temp_memory", 4)
	require.NoError(t, err)

	err = s.Insert(context.Background(), []float32{1, 2}, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, pool.acquired)
}

func TestPgVectorStore_EnsureSchema(t *testing.T) {
	pool := newFakePool(&fakeTx{})
	s, err := NewPgVectorStore(pool, "temp_memory", 3072)
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Equal(t,
		[]string{`CREATE TABLE IF NOT EXISTS "temp_memory" (id uuid PRIMARY KEY, vector vector(3072), payload jsonb)`},
		pool.conn.execSQL)
	assert.Equal(t, 1, pool.released)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestValidateCollection(t *testing.T) {
	for _, ok := range []string{"temp_memory", "_m", "Memories2"} {
		assert.NoError(t, ValidateCollection(ok), ok)
	}
	for _, bad := range []string{"", "1abc", "temp memory", "x;DROP TABLE y", `a"b`} {
		assert.ErrorIs(t, ValidateCollection(bad), ErrInvalidCollection, bad)
	}

	_, err := NewPgVectorStore(newFakePool(&fakeTx{}), "bad name", 1)
	assert.ErrorIs(t, err, ErrInvalidCollection)
}
