package ormkit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fernandezvara/ormkit/convert"
	"github.com/fernandezvara/ormkit/dialect"
	"github.com/fernandezvara/ormkit/hooks"
)

// hookCounter counts hook calls.
type hookCounter struct {
	before, after, failed atomic.Int32
	mu                    sync.Mutex
	events                []hooks.CommandEvent
}

func (h *hookCounter) hook() hooks.Hook {
	return hooks.Funcs{
		Before: func(ctx context.Context, _ *hooks.CommandEvent) context.Context {
			h.before.Add(1)
			return ctx
		},
		After: func(_ context.Context, e *hooks.CommandEvent) {
			h.after.Add(1)
			h.record(e)
		},
		Error: func(_ context.Context, e *hooks.CommandEvent) {
			h.failed.Add(1)
			h.record(e)
		},
	}
}

func (h *hookCounter) record(e *hooks.CommandEvent) {
	h.mu.Lock()
	h.events = append(h.events, *e)
	h.mu.Unlock()
}

func (h *hookCounter) last() hooks.CommandEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

// countDisposals counts disposed commands for the duration of the test.
func countDisposals(t *testing.T) *atomic.Int32 {
	t.Helper()
	var n atomic.Int32
	testHookDispose = func(*Command) { n.Add(1) }
	t.Cleanup(func() { testHookDispose = nil })
	return &n
}

func newMockConn(t *testing.T, h ...hooks.Hook) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewConn(sqlDB, dialect.Postgres(), nil, h...), mock
}

func TestExec_ErrorDisposesOnceAndFiresErrorHook(t *testing.T) {
	disposed := countDisposals(t)
	var counter hookCounter
	conn, mock := newMockConn(t, counter.hook())

	errBoom := errors.New("boom")
	mock.ExpectQuery("SELECT name FROM users").WillReturnError(errBoom)

	_, err := List[string](context.Background(), conn, "SELECT name FROM users")
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected the driver error, got %v", err)
	}
	if _, ok := GetErrorCode(err); ok {
		t.Error("Driver error should not be wrapped")
	}

	assert.Equal(t, int32(1), disposed.Load())
	assert.Equal(t, int32(1), counter.before.Load())
	assert.Equal(t, int32(1), counter.failed.Load())
	assert.Equal(t, int32(0), counter.after.Load())
	assert.ErrorIs(t, counter.last().Err, errBoom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExec_RowsClosedAfterSingle(t *testing.T) {
	disposed := countDisposals(t)
	var counter hookCounter
	conn, mock := newMockConn(t, counter.hook())

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Alice").AddRow(2, "Bob")).
		RowsWillBeClosed()

	user, err := Single[TestUser](context.Background(), conn, "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "Alice", user.Name)

	assert.Equal(t, int32(1), disposed.Load())
	assert.Equal(t, int32(1), counter.after.Load())
	assert.Equal(t, int32(0), counter.failed.Load())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExec_SingleNoRows(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectQuery("SELECT id FROM users").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := Single[int64](context.Background(), conn, "SELECT id FROM users")
	if !IsNotFound(err) {
		t.Fatalf("Expected NotFound error, got %v", err)
	}
}

func TestExec_ScalarNoRowsIsZero(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectQuery("SELECT max(age) FROM users").WillReturnRows(sqlmock.NewRows([]string{"max"}))

	v, err := Scalar[int](context.Background(), conn, "SELECT max(age) FROM users")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestExec_ExecRowsAffected(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectExec("UPDATE users SET active = $1").
		WithArgs(true).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := conn.Exec(context.Background(), "UPDATE users SET active = $1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "UPDATE users SET active = $1", conn.LastCommandText())
}

func TestExec_ParamsBinding(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectQuery("SELECT name FROM users WHERE age > $1 AND active = $2").
		WithArgs(int64(20), true).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))

	names, err := Column[string](context.Background(), conn,
		"SELECT name FROM users WHERE age > @age AND active = @active",
		Params{"age": 20, "active": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names)
	assert.Equal(t, "SELECT name FROM users WHERE age > $1 AND active = $2", conn.LastCommandText())

	_, err = Column[string](context.Background(), conn, "SELECT @missing", Params{})
	assert.ErrorIs(t, err, ErrMapping)
}

func TestExec_QueryShapes(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	total, err := Scalar[int64](ctx, db, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	rows, err := List[map[string]any](ctx, db, "SELECT name, age FROM users ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Alice", rows[0]["name"])

	ptrs, err := List[*TestUser](ctx, db, "SELECT * FROM users ORDER BY id")
	require.NoError(t, err)
	require.Len(t, ptrs, 3)
	assert.Equal(t, "Carol", ptrs[2].Name)

	ages, err := Dictionary[string, int](ctx, db, "SELECT name, age FROM users")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Alice": 30, "Bob": 25, "Carol": 35}, ages)

	byActive, err := Lookup[bool, string](ctx, db, "SELECT active, name FROM users ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Carol"}, byActive[true])
	assert.Equal(t, []string{"Bob"}, byActive[false])

	var seen []string
	err = db.Conn().Rows(ctx, "SELECT name FROM users ORDER BY id", nil, func(row convert.RowReader) error {
		v, err := row.Value(0)
		if err != nil {
			return err
		}
		seen = append(seen, v.(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, seen)
}

func TestExec_LazyEarlyBreakDisposes(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()
	disposed := countDisposals(t)

	var first string
	for name, err := range Lazy[string](ctx, db, "SELECT name FROM users ORDER BY id") {
		require.NoError(t, err)
		first = name
		break
	}
	assert.Equal(t, "Alice", first)
	assert.Equal(t, int32(1), disposed.Load())

	// The single pooled connection is free again.
	total, err := Scalar[int64](ctx, db, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestExec_LazyStreamsAll(t *testing.T) {
	db := getUsersDB(t)

	var names []string
	for u, err := range Lazy[TestUser](context.Background(), db, "SELECT * FROM users ORDER BY id") {
		require.NoError(t, err)
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names)
}

func TestExec_CommandTimeout(t *testing.T) {
	db := getUsersDB(t)

	conn := db.Conn().WithTimeout(time.Nanosecond)
	_, err := Scalar[int64](context.Background(), conn, "SELECT COUNT(*) FROM users")
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout, got %v", err)

	// The override does not leak into the original connection.
	_, err = Scalar[int64](context.Background(), db, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
}

// slowExecutor records how many ExecContext calls overlap.
type slowExecutor struct {
	active, peak atomic.Int32
}

func (e *slowExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return driver.RowsAffected(1), nil
}

func (e *slowExecutor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func TestExec_WriteLockSerializesExec(t *testing.T) {
	exec := &slowExecutor{}
	base := NewConn(exec, dialect.SQLite(), nil)
	lock := NewWriteLock()

	g, ctx := errgroup.WithContext(context.Background())
	for range 8 {
		conn := base.WithWriteLock(lock)
		g.Go(func() error {
			_, err := conn.Exec(ctx, "UPDATE t SET x = 1")
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), exec.peak.Load())
}

func TestExec_BeginWithoutTxSupport(t *testing.T) {
	conn := NewConn(&slowExecutor{}, dialect.SQLite(), nil)

	_, _, err := conn.BeginTx(context.Background(), DefaultTxOptions())
	if !IsStateMisuse(err) {
		t.Fatalf("Expected state misuse, got %v", err)
	}
}

func TestCommandState_String(t *testing.T) {
	assert.Equal(t, "created", CommandCreated.String())
	assert.Equal(t, "disposed", CommandDisposed.String())
	assert.Equal(t, "unknown", CommandState(42).String())
}
