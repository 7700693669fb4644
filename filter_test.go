package ormkit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandezvara/ormkit/dialect"
)

func TestResultsFilter_CannedList(t *testing.T) {
	var counter hookCounter
	conn, mock := newMockConn(t, counter.hook())
	ctx, scope := UseResultsFilter(context.Background(), &CannedResults{
		List: []TestUser{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}},
	})
	defer scope.Close()

	users, err := List[TestUser](ctx, conn, "SELECT * FROM users")
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "C", users[2].Name)

	// Hooks run, the database is never reached.
	assert.Equal(t, int32(1), counter.after.Load())
	assert.True(t, counter.last().Intercepted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultsFilter_NestedScopesRestore(t *testing.T) {
	conn, _ := newMockConn(t)
	a := &CannedResults{Scalar: "A"}
	b := &CannedResults{Scalar: "B"}

	ctx, scopeA := UseResultsFilter(context.Background(), a)
	ctxB, scopeB := UseResultsFilter(ctx, b)

	v, err := Scalar[string](ctxB, conn, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "B", v)

	scopeB.Close()
	scopeB.Close()
	v, err = Scalar[string](ctxB, conn, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "A", v)

	scopeA.Close()
	assert.Nil(t, StateFrom(ctx).Filter())
	assert.Len(t, a.Statements(), 1)
	assert.Len(t, b.Statements(), 1)
}

func TestResultsFilter_PassThroughAfterClose(t *testing.T) {
	db := getUsersDB(t)

	ctx, scope := UseResultsFilter(context.Background(), &CannedResults{Scalar: int64(99)})
	v, err := Scalar[int64](ctx, db, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)

	scope.Close()
	v, err = Scalar[int64](ctx, db, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestResultsFilter_IsolatedPerChain(t *testing.T) {
	db := getUsersDB(t)

	_, scope := UseResultsFilter(context.Background(), &CannedResults{Scalar: int64(99)})
	defer scope.Close()

	v, err := Scalar[int64](context.Background(), db, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestResultsFilter_Functions(t *testing.T) {
	conn, _ := newMockConn(t)
	var buf bytes.Buffer
	errDenied := errors.New("denied")

	canned := &CannedResults{
		ExecFn: func(cmd *Command) (int64, error) { return int64(len(cmd.Args())), nil },
		SingleFn: func(cmd *Command) (any, error) {
			if cmd.Args()[0] == int64(0) {
				return nil, nil
			}
			return map[string]any{"id": cmd.Args()[0]}, nil
		},
		Dictionary: map[string]any{"a": 1, "b": 2},
		Column:     []any{"x", "y"},
		PrintSQL:   true,
		Output:     &buf,
	}
	ctx, scope := UseResultsFilter(context.Background(), canned)
	defer scope.Close()

	n, err := conn.Exec(ctx, "DELETE FROM t WHERE a = $1 AND b = $2", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	row, err := Single[map[string]any](ctx, conn, "SELECT * FROM t WHERE id = $1", int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), row["id"])

	_, err = Single[map[string]any](ctx, conn, "SELECT * FROM t WHERE id = $1", int64(0))
	assert.True(t, IsNotFound(err))

	dict, err := Dictionary[string, int](ctx, conn, "SELECT k, v FROM t")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, dict)

	col, err := Column[string](ctx, conn, "SELECT k FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, col)

	assert.Contains(t, buf.String(), "DELETE FROM t WHERE a = $1 AND b = $2\n")
	assert.Len(t, canned.Statements(), 5)

	canned.Err = errDenied
	_, err = conn.Exec(ctx, "DELETE FROM t")
	assert.ErrorIs(t, err, errDenied)
}

func TestResultsFilter_SingleFallsBackToList(t *testing.T) {
	conn, _ := newMockConn(t)
	ctx, scope := UseResultsFilter(context.Background(), &CannedResults{
		List: []TestUser{{ID: 1, Name: "first"}, {ID: 2, Name: "second"}},
	})
	defer scope.Close()

	u, err := Single[*TestUser](ctx, conn, "SELECT * FROM users")
	require.NoError(t, err)
	assert.Equal(t, "first", u.Name)
}

func TestResultsFilter_CannedRowsAndLazy(t *testing.T) {
	conn, _ := newMockConn(t)
	ctx, scope := UseResultsFilter(context.Background(), &CannedResults{
		List: []map[string]any{{"name": "a"}, {"name": "b"}},
	})
	defer scope.Close()

	var items []map[string]any
	for item, err := range Lazy[map[string]any](ctx, conn, "SELECT name FROM t") {
		require.NoError(t, err)
		items = append(items, item)
	}
	assert.Len(t, items, 2)
}

func TestResultsFilter_VirtualTransaction(t *testing.T) {
	exec := &slowExecutor{}
	conn := NewConn(exec, dialect.SQLite(), nil)
	canned := &CannedResults{Exec: 1}
	ctx, scope := UseResultsFilter(context.Background(), canned)
	defer scope.Close()

	txCtx, tx, err := conn.BeginTx(ctx, DefaultTxOptions())
	require.NoError(t, err)
	assert.True(t, tx.Virtual())

	_, err = conn.Exec(txCtx, "UPDATE t SET x = 1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int32(0), exec.peak.Load(), "executor must not be reached")
}

func TestResultsFilter_ChildChainDoesNotLeak(t *testing.T) {
	conn, _ := newMockConn(t)
	parent, scopeA := UseResultsFilter(context.Background(), &CannedResults{Scalar: "A"})
	defer scopeA.Close()

	installed := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		child, scopeB := UseResultsFilter(parent, &CannedResults{Scalar: "B"})
		defer scopeB.Close()
		close(installed)
		<-release
		v, _ := Scalar[string](child, conn, "SELECT 1")
		done <- v
	}()
	<-installed

	v, err := Scalar[string](parent, conn, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "A", v, "child filter must not leak into the parent chain")
	close(release)
	assert.Equal(t, "B", <-done)
}

func TestResultsFilter_ParallelBranchesIsolated(t *testing.T) {
	conn, _ := newMockConn(t)
	ctx, scope := UseResultsFilter(context.Background(), &CannedResults{Scalar: "outer"})
	defer scope.Close()

	installed := make(chan struct{})
	a, b, err := Parallel2(ctx,
		func(ctx context.Context) (string, error) {
			ctx, inner := UseResultsFilter(ctx, &CannedResults{Scalar: "inner"})
			defer inner.Close()
			close(installed)
			return Scalar[string](ctx, conn, "SELECT 1")
		},
		func(ctx context.Context) (string, error) {
			<-installed
			return Scalar[string](ctx, conn, "SELECT 1")
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "inner", a)
	assert.Equal(t, "outer", b)
}
