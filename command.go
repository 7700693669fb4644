package ormkit

import (
	"context"
	"database/sql"
	"time"

	"github.com/fernandezvara/ormkit/hooks"
)

// CommandState is the life-cycle position of a Command.
type CommandState int

const (
	CommandCreated CommandState = iota
	CommandConfigured
	CommandExecuting
	CommandSucceeded
	CommandFailed
	CommandDisposed
)

func (s CommandState) String() string {
	switch s {
	case CommandCreated:
		return "created"
	case CommandConfigured:
		return "configured"
	case CommandExecuting:
		return "executing"
	case CommandSucceeded:
		return "succeeded"
	case CommandFailed:
		return "failed"
	case CommandDisposed:
		return "disposed"
	}
	return "unknown"
}

// Command is one statement travelling through the execution pipeline.
// Filters and hooks receive it; it is not reusable.
type Command struct {
	conn  *Conn
	text  string
	args  []any
	state CommandState
	async bool

	exec   Executor
	tx     *Tx
	filter ResultsFilter

	ctx    context.Context
	cancel context.CancelFunc
	rows   *sql.Rows
	event  *hooks.CommandEvent
}

// testHookDispose is called after a command is disposed.
var testHookDispose func(*Command)

// Text returns the statement text with dialect placeholders.
func (c *Command) Text() string { return c.text }

// Args returns the bound arguments.
func (c *Command) Args() []any { return c.args }

func (c *Command) State() CommandState { return c.state }

// Tx returns the transaction the command runs in, or nil.
func (c *Command) Tx() *Tx { return c.tx }

// Conn returns the connection the command was created on.
func (c *Command) Conn() *Conn { return c.conn }

// configure attaches the ambient transaction and filter, applies the
// effective timeout and records the command on its connection.
func (c *Command) configure(ctx context.Context) error {
	tx, filter := ambient(ctx)
	c.filter = filter
	c.exec = c.conn.exec
	if tx != nil && !c.conn.bound && tx.origin == c.conn.root {
		if tx.Finished() {
			return misuse("Command", "transaction already finished")
		}
		c.tx = tx
		if tx.sqlTx != nil {
			c.exec = tx.sqlTx
		}
	}
	if c.conn.bound {
		c.tx = c.conn.tx
		if c.tx != nil && c.tx.Finished() {
			return misuse("Command", "transaction already finished")
		}
	}

	if d := c.conn.effectiveTimeout(); d > 0 {
		ctx, c.cancel = context.WithTimeout(ctx, d)
	}
	c.ctx = ctx
	c.conn.recordCommand(c.text)
	c.state = CommandConfigured
	return nil
}

// begin fires the before hooks and returns the context to execute with.
func (c *Command) begin() context.Context {
	c.event = &hooks.CommandEvent{
		Kind:        hooks.EventCommand,
		Dialect:     c.conn.provider.Name(),
		Query:       c.text,
		Args:        c.args,
		StartTime:   time.Now(),
		Intercepted: c.filter != nil,
	}
	c.state = CommandExecuting
	c.ctx = c.conn.hooks.BeforeCommand(c.ctx, c.event)
	return c.ctx
}

// finish fires exactly one of the after or error hooks and returns err,
// with a single joined error unwrapped for async commands.
func (c *Command) finish(err error) error {
	if c.async {
		err = unwrapSingle(err)
	}
	c.event.Duration = time.Since(c.event.StartTime)
	if err != nil {
		c.state = CommandFailed
		c.event.Err = err
		c.conn.hooks.CommandError(c.ctx, c.event)
		return err
	}
	c.state = CommandSucceeded
	c.conn.hooks.AfterCommand(c.ctx, c.event)
	return nil
}

// dispose releases the command. It runs once on every exit path.
func (c *Command) dispose() {
	if c.state == CommandDisposed {
		return
	}
	if c.rows != nil {
		_ = c.rows.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.conn.recordCommand(c.text)
	c.state = CommandDisposed
	if testHookDispose != nil {
		testHookDispose(c)
	}
}

// unwrapSingle removes a joined-error wrapper holding exactly one error.
func unwrapSingle(err error) error {
	for {
		multi, ok := err.(interface{ Unwrap() []error })
		if !ok {
			return err
		}
		errs := multi.Unwrap()
		if len(errs) != 1 {
			return err
		}
		err = errs[0]
	}
}
