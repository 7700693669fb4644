package ormkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fernandezvara/ormkit/hooks"
)

// Tx is a database transaction. It is also the ambient transaction of the
// context returned by Begin: commands issued with that context on the same
// DB run inside it.
type Tx struct {
	db     *DB
	sqlTx  *sql.Tx // nil when started under a results filter
	origin *Conn
	conn   *Conn
	ctx    context.Context

	done         atomic.Bool
	savepointSeq *atomic.Int64
}

// TxOptions configures transaction behavior
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// DefaultTxOptions returns default transaction options
func DefaultTxOptions() TxOptions {
	return TxOptions{
		Isolation: sql.LevelDefault,
		ReadOnly:  false,
	}
}

// ReadOnlyTxOptions returns options for read-only transactions
func ReadOnlyTxOptions() TxOptions {
	return TxOptions{
		Isolation: sql.LevelDefault,
		ReadOnly:  true,
	}
}

// SerializableTxOptions returns options for serializable transactions
func SerializableTxOptions() TxOptions {
	return TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  false,
	}
}

// TxFunc is a function executed within a transaction. ctx carries the
// transaction as ambient state.
type TxFunc func(ctx context.Context, tx *Tx) error

// beginOn starts a transaction on c. Under a results filter no real
// transaction is opened.
func beginOn(ctx context.Context, c *Conn, opts TxOptions) (context.Context, *Tx, error) {
	active, filter := ambient(ctx)
	if active != nil && !active.Finished() && active.origin == c.root {
		return ctx, nil, misuse("Begin", "transaction already active; use Tx.Transaction or Tx.Savepoint to nest")
	}

	tx := &Tx{db: c.owner, origin: c.root, savepointSeq: new(atomic.Int64)}
	if filter == nil {
		sqlTx, err := c.exec.(txBeginner).BeginTx(ctx, &sql.TxOptions{
			Isolation: opts.Isolation,
			ReadOnly:  opts.ReadOnly,
		})
		if err != nil {
			return ctx, nil, err
		}
		tx.sqlTx = sqlTx
	}
	tx.conn = c.bind(tx)
	tx.ctx = withTx(ctx, tx)
	return tx.ctx, tx, nil
}

// Begin starts a new transaction (manual control). Use the returned context
// for the statements of the transaction.
func (db *DB) Begin(ctx context.Context) (context.Context, *Tx, error) {
	return db.BeginWithOptions(ctx, DefaultTxOptions())
}

// BeginWithOptions starts a new transaction with custom options
func (db *DB) BeginWithOptions(ctx context.Context, opts TxOptions) (context.Context, *Tx, error) {
	return db.base.BeginTx(ctx, opts)
}

// Transaction executes fn within a transaction with automatic commit/rollback.
// Inside an ambient transaction of the same DB it nests with a savepoint.
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.TransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// TransactionWithOptions executes fn within a transaction with custom options
func (db *DB) TransactionWithOptions(ctx context.Context, opts TxOptions, fn TxFunc) error {
	if active, _ := ambient(ctx); active != nil && !active.Finished() && active.origin == db.base.root {
		return active.Transaction(ctx, fn)
	}

	txCtx, tx, err := db.BeginWithOptions(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("ormkit: rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// ReadOnlyTransaction executes fn within a read-only transaction
func (db *DB) ReadOnlyTransaction(ctx context.Context, fn TxFunc) error {
	return db.TransactionWithOptions(ctx, ReadOnlyTxOptions(), fn)
}

// Conn returns the connection bound to the transaction.
func (tx *Tx) Conn() *Conn { return tx.conn }

// Context returns the context carrying the transaction.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Finished reports whether the transaction was committed or rolled back.
func (tx *Tx) Finished() bool { return tx.done.Load() }

// Virtual reports whether the transaction was started under a results
// filter and has no database transaction behind it.
func (tx *Tx) Virtual() bool { return tx.sqlTx == nil }

// Commit commits the transaction. Committing a finished transaction is a
// state-misuse error.
func (tx *Tx) Commit() error {
	if tx.done.Swap(true) {
		return misuse("Commit", "transaction already finished")
	}
	return tx.end(hooks.EventCommit, "COMMIT", func() error { return tx.sqlTx.Commit() })
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op so it can be deferred.
func (tx *Tx) Rollback() error {
	if tx.done.Swap(true) {
		return nil
	}
	return tx.end(hooks.EventRollback, "ROLLBACK", func() error {
		err := tx.sqlTx.Rollback()
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return err
	})
}

func (tx *Tx) end(kind hooks.EventKind, text string, fn func() error) error {
	c := tx.conn
	event := &hooks.CommandEvent{
		Kind:        kind,
		Dialect:     c.provider.Name(),
		Query:       text,
		StartTime:   time.Now(),
		Intercepted: tx.sqlTx == nil,
	}
	ctx := c.hooks.BeforeCommand(tx.ctx, event)
	var err error
	if tx.sqlTx != nil {
		err = fn()
	}
	event.Duration = time.Since(event.StartTime)
	if err != nil {
		event.Err = err
		c.hooks.CommandError(ctx, event)
		return err
	}
	c.hooks.AfterCommand(ctx, event)
	return nil
}

// Savepoint is a named point inside a transaction that can be released or
// rolled back to once.
type Savepoint struct {
	tx   *Tx
	name string
	done atomic.Bool
}

// Name returns the savepoint name.
func (sp *Savepoint) Name() string { return sp.name }

// Savepoint creates a savepoint. An empty name generates sp_N.
func (tx *Tx) Savepoint(ctx context.Context, name string) (*Savepoint, error) {
	if tx.Finished() {
		return nil, misuse("Savepoint", "transaction already finished")
	}
	if name == "" {
		name = fmt.Sprintf("sp_%d", tx.savepointSeq.Add(1))
	}
	sp := &Savepoint{tx: tx, name: name}
	if _, err := tx.conn.Exec(ctx, "SAVEPOINT "+sp.quoted()); err != nil {
		return nil, err
	}
	return sp, nil
}

func (sp *Savepoint) quoted() string { return sp.tx.conn.provider.QuoteName(sp.name) }

func (sp *Savepoint) finish(op string) error {
	if sp.tx.Finished() {
		return misuse(op, "transaction already finished")
	}
	if sp.done.Swap(true) {
		return misuse(op, "savepoint %s already released", sp.name)
	}
	return nil
}

// Release keeps the work done since the savepoint.
func (sp *Savepoint) Release(ctx context.Context) error {
	if err := sp.finish("Release"); err != nil {
		return err
	}
	_, err := sp.tx.conn.Exec(ctx, "RELEASE SAVEPOINT "+sp.quoted())
	return err
}

// Rollback discards the work done since the savepoint.
func (sp *Savepoint) Rollback(ctx context.Context) error {
	if err := sp.finish("Rollback"); err != nil {
		return err
	}
	_, err := sp.tx.conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp.quoted())
	return err
}

// Transaction creates a savepoint for nested transaction support
func (tx *Tx) Transaction(ctx context.Context, fn TxFunc) error {
	sp, err := tx.Savepoint(ctx, "")
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("ormkit: savepoint rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return sp.Release(ctx)
}

// DB returns the parent database
func (tx *Tx) DB() *DB {
	return tx.db
}
