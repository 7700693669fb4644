package ormkit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fernandezvara/ormkit/dialect"
	"github.com/fernandezvara/ormkit/hooks"
	"github.com/fernandezvara/ormkit/meta"
)

// Executor is the low-level handle commands run on: *sql.DB, *sql.Conn or
// *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Source is anything commands can be issued against: *DB, *Tx or *Conn.
type Source interface {
	Conn() *Conn
}

// Params binds named parameters. A Params passed as the only argument is
// expanded with the dialect's BindNamed.
type Params map[string]any

// WriteLock is an exclusion token shared by connections that must not run
// mutating statements concurrently. Queries are never serialized.
type WriteLock struct {
	mu sync.Mutex
}

// NewWriteLock returns an unlocked token.
func NewWriteLock() *WriteLock { return &WriteLock{} }

// Conn is a logical connection: an executor plus the dialect, model registry
// and hooks its commands use. Copies made by the With methods share the
// executor and the last-command record.
type Conn struct {
	owner    *DB
	exec     Executor
	provider dialect.Provider
	models   *meta.Registry
	hooks    hooks.Chain

	defaultTimeout time.Duration
	timeout        time.Duration
	lock           *WriteLock

	root  *Conn
	bound bool
	tx    *Tx
	last  *atomic.Pointer[string]
}

// NewConn builds a standalone connection over exec. A nil models registry is
// replaced by one using the provider's naming strategy.
func NewConn(exec Executor, provider dialect.Provider, models *meta.Registry, h ...hooks.Hook) *Conn {
	if models == nil {
		models = meta.NewRegistry(meta.WithNaming(provider.Naming()))
	}
	c := &Conn{
		exec:     exec,
		provider: provider,
		models:   models,
		hooks:    hooks.Chain(h),
		last:     new(atomic.Pointer[string]),
	}
	c.root = c
	return c
}

// Conn implements Source.
func (c *Conn) Conn() *Conn { return c }

func (c *Conn) Provider() dialect.Provider { return c.provider }

func (c *Conn) Models() *meta.Registry { return c.models }

// WithTimeout returns a copy whose commands use d instead of the configured
// command timeout.
func (c *Conn) WithTimeout(d time.Duration) *Conn {
	cp := *c
	cp.timeout = d
	return &cp
}

// WithWriteLock returns a copy whose non-query commands hold lock.
func (c *Conn) WithWriteLock(lock *WriteLock) *Conn {
	cp := *c
	cp.lock = lock
	return &cp
}

// LastCommandText returns the text of the most recent command.
func (c *Conn) LastCommandText() string {
	if p := c.last.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Conn) recordCommand(text string) { c.last.Store(&text) }

func (c *Conn) effectiveTimeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return c.defaultTimeout
}

// bind returns a copy running on a transaction.
func (c *Conn) bind(tx *Tx) *Conn {
	cp := *c
	cp.bound = true
	cp.tx = tx
	if tx.sqlTx != nil {
		cp.exec = tx.sqlTx
	}
	return &cp
}

// BeginTx starts a transaction on the executor. Executors that are already
// transactions, or that cannot start one, are a usage error.
func (c *Conn) BeginTx(ctx context.Context, opts TxOptions) (context.Context, *Tx, error) {
	if c.bound {
		return ctx, nil, misuse("BeginTx", "connection is already in a transaction")
	}
	if _, ok := c.exec.(txBeginner); !ok {
		if _, filter := ambient(ctx); filter == nil {
			return ctx, nil, misuse("BeginTx", "connection does not support transactions")
		}
	}
	return beginOn(ctx, c, opts)
}

// prepare creates and configures a command.
func (c *Conn) prepare(ctx context.Context, query string, args []any) (*Command, error) {
	cmd := &Command{conn: c, text: query, state: CommandCreated}
	if len(args) == 1 {
		if named, ok := args[0].(Params); ok {
			q, bound, err := c.provider.BindNamed(query, named)
			if err != nil {
				return nil, &Error{Code: CodeMapping, Op: "Bind", Message: err.Error(), Cause: err}
			}
			cmd.text, args = q, bound
		}
	}
	bound, err := c.bindArgs(args)
	if err != nil {
		return nil, err
	}
	cmd.args = bound
	if err := cmd.configure(ctx); err != nil {
		cmd.dispose()
		return nil, err
	}
	return cmd, nil
}

// bindArgs converts arguments through the dialect's converters. Values the
// driver understands natively are passed through.
func (c *Conn) bindArgs(args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		switch a.(type) {
		case nil, driver.Valuer, sql.NamedArg, []byte, string, int64, float64, bool, time.Time:
			out[i] = a
			continue
		}
		v, err := c.provider.Converters().ToDB(reflect.TypeOf(a), a)
		if err != nil {
			return nil, &Error{Code: CodeMapping, Op: "Bind", Message: err.Error(), Cause: err}
		}
		out[i] = v
	}
	return out, nil
}

// writeLocked runs fn holding the write lock, if any.
func (c *Conn) writeLocked(fn func() error) error {
	if c.lock != nil {
		c.lock.mu.Lock()
		defer c.lock.mu.Unlock()
	}
	return fn()
}
