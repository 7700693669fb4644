package ormkit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandezvara/ormkit/hooks"
)

func countUsers(t *testing.T, ctx context.Context, src Source) int64 {
	t.Helper()
	n, err := Count[TestUser](ctx, src, "")
	require.NoError(t, err)
	return n
}

func TestTransaction_Commit(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	model := &TestUser{Name: "Transaction Test", Email: "tx@example.com", Age: 25}
	err := db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		// db joins the ambient transaction carried by ctx
		return Insert(ctx, db, model)
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	found, err := FindByID[TestUser](ctx, db, model.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Name != "Transaction Test" {
		t.Errorf("Expected name Transaction Test, got %s", found.Name)
	}
}

func TestTransaction_Rollback(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	model := &TestUser{Name: "Rollback Test", Email: "rollback@example.com", Age: 25}
	err := db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		if err := Insert(ctx, tx, model); err != nil {
			return err
		}
		return errors.New("intentional error to trigger rollback")
	})
	if err == nil {
		t.Fatal("Expected error from transaction")
	}
	if err.Error() != "intentional error to trigger rollback" {
		t.Errorf("Expected intentional error, got %v", err)
	}

	_, err = FindByID[TestUser](ctx, db, model.ID)
	if !IsNotFound(err) {
		t.Errorf("Expected NotFound error, got %v", err)
	}
}

func TestTransaction_PanicRollsBack(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
			_, _ = tx.Exec(ctx, "DELETE FROM users")
			panic("boom")
		})
	})
	assert.Equal(t, int64(3), countUsers(t, ctx, db))
}

func TestTransaction_ManualCommit(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	txCtx, tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = db.Exec(txCtx, "DELETE FROM users WHERE name = ?", "Bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), countUsers(t, txCtx, db))
	require.NoError(t, tx.Commit())
	assert.True(t, tx.Finished())

	assert.Equal(t, int64(2), countUsers(t, ctx, db))
}

func TestTransaction_MisuseAfterFinish(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	txCtx, tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	if err := tx.Commit(); !IsStateMisuse(err) {
		t.Errorf("Expected state misuse on second commit, got %v", err)
	}
	assert.NoError(t, tx.Rollback(), "rollback after finish is a no-op")

	_, err = db.Exec(txCtx, "DELETE FROM users")
	assert.True(t, IsStateMisuse(err), "command on finished transaction: %v", err)
	_, err = tx.Savepoint(txCtx, "")
	assert.True(t, IsStateMisuse(err))
}

func TestTransaction_NestedBeginIsMisuse(t *testing.T) {
	db := getUsersDB(t)

	txCtx, tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, _, err = db.Begin(txCtx)
	assert.True(t, IsStateMisuse(err))
	_, _, err = tx.Conn().BeginTx(txCtx, DefaultTxOptions())
	assert.True(t, IsStateMisuse(err))
}

func TestTransaction_Savepoints(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		sp, err := tx.Savepoint(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "sp_1", sp.Name())

		_, err = tx.Exec(ctx, "DELETE FROM users WHERE name = ?", "Alice")
		require.NoError(t, err)
		require.NoError(t, sp.Rollback(ctx))
		assert.Equal(t, int64(3), countUsers(t, ctx, tx))

		if err := sp.Release(ctx); !IsStateMisuse(err) {
			t.Errorf("Expected state misuse on released savepoint, got %v", err)
		}

		kept, err := tx.Savepoint(ctx, "keep")
		require.NoError(t, err)
		_, err = tx.Exec(ctx, "DELETE FROM users WHERE name = ?", "Bob")
		require.NoError(t, err)
		return kept.Release(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), countUsers(t, ctx, db))
}

func TestTransaction_NestedTransactionUsesSavepoint(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.Exec(ctx, "DELETE FROM users WHERE name = ?", "Alice")
		require.NoError(t, err)

		inner := db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.Exec(ctx, "DELETE FROM users")
			require.NoError(t, err)
			return errors.New("fail")
		})
		assert.EqualError(t, inner, "fail")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), countUsers(t, ctx, db))
}

func TestTransaction_CommitFiresHooks(t *testing.T) {
	var kinds []hooks.EventKind
	db, err := New(DefaultConfig("sqlite", ":memory:").WithHooks(hooks.Funcs{
		After: func(_ context.Context, e *hooks.CommandEvent) { kinds = append(kinds, e.Kind) },
	}))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.Exec(ctx, "CREATE TABLE t (x INTEGER)")
		return err
	}))
	_ = db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		return errors.New("rollback")
	})

	assert.Equal(t, []hooks.EventKind{hooks.EventCommand, hooks.EventCommit, hooks.EventRollback}, kinds)
}

func TestTransaction_ReadOnly(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := Open(sqlDB, DefaultConfig("postgres", ""))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = db.ReadOnlyTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		assert.Same(t, tx, StateFrom(ctx).Tx())
		assert.Same(t, db, tx.DB())
		assert.False(t, tx.Virtual())
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultTxOptions(t *testing.T) {
	opts := DefaultTxOptions()
	if opts.ReadOnly {
		t.Error("Default should not be read-only")
	}
}

func TestReadOnlyTxOptions(t *testing.T) {
	opts := ReadOnlyTxOptions()
	if !opts.ReadOnly {
		t.Error("Should be read-only")
	}
}
