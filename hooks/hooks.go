// Package hooks provides diagnostics hooks for ormkit commands.
//
// Every hook implements Hook, which the execution pipeline calls around each
// command and each transaction commit or rollback, and bun.QueryHook, so
// queries built through DB.Bun() are observed the same way.
package hooks

import (
	"context"
	"strings"
	"time"
)

// EventKind tells what a CommandEvent describes.
type EventKind int

const (
	EventCommand EventKind = iota
	EventCommit
	EventRollback
)

func (k EventKind) String() string {
	switch k {
	case EventCommit:
		return "commit"
	case EventRollback:
		return "rollback"
	default:
		return "command"
	}
}

// CommandEvent carries the diagnostics of one command or transaction end.
type CommandEvent struct {
	Kind      EventKind
	Dialect   string
	Query     string
	Args      []any
	StartTime time.Time
	// Duration is set before AfterCommand and CommandError.
	Duration time.Duration
	Err      error
	// Intercepted reports that a results filter supplied the result.
	Intercepted bool
}

// Operation returns the statement kind used for labels and span names.
func (e *CommandEvent) Operation() string {
	if e.Kind != EventCommand {
		return e.Kind.String()
	}
	return OperationType(e.Query)
}

// Hook observes commands. BeforeCommand may return a derived context which
// is then passed to exactly one of AfterCommand or CommandError.
type Hook interface {
	BeforeCommand(ctx context.Context, event *CommandEvent) context.Context
	AfterCommand(ctx context.Context, event *CommandEvent)
	CommandError(ctx context.Context, event *CommandEvent)
}

// Chain runs hooks in order.
type Chain []Hook

func (c Chain) BeforeCommand(ctx context.Context, event *CommandEvent) context.Context {
	for _, h := range c {
		ctx = h.BeforeCommand(ctx, event)
	}
	return ctx
}

func (c Chain) AfterCommand(ctx context.Context, event *CommandEvent) {
	for _, h := range c {
		h.AfterCommand(ctx, event)
	}
}

func (c Chain) CommandError(ctx context.Context, event *CommandEvent) {
	for _, h := range c {
		h.CommandError(ctx, event)
	}
}

// Funcs adapts plain functions to Hook. Nil functions are skipped.
type Funcs struct {
	Before func(ctx context.Context, event *CommandEvent) context.Context
	After  func(ctx context.Context, event *CommandEvent)
	Error  func(ctx context.Context, event *CommandEvent)
}

func (f Funcs) BeforeCommand(ctx context.Context, event *CommandEvent) context.Context {
	if f.Before == nil {
		return ctx
	}
	return f.Before(ctx, event)
}

func (f Funcs) AfterCommand(ctx context.Context, event *CommandEvent) {
	if f.After != nil {
		f.After(ctx, event)
	}
}

func (f Funcs) CommandError(ctx context.Context, event *CommandEvent) {
	if f.Error != nil {
		f.Error(ctx, event)
	}
}

func truncate(query string) string {
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}

// OperationType extracts the operation type from a query
func OperationType(query string) string {
	query = strings.TrimSpace(strings.ToUpper(query))
	switch {
	case strings.HasPrefix(query, "SELECT"), strings.HasPrefix(query, "WITH"):
		return "select"
	case strings.HasPrefix(query, "INSERT"), strings.HasPrefix(query, "REPLACE"):
		return "insert"
	case strings.HasPrefix(query, "UPDATE"):
		return "update"
	case strings.HasPrefix(query, "DELETE"):
		return "delete"
	case strings.HasPrefix(query, "CREATE"):
		return "create"
	case strings.HasPrefix(query, "DROP"):
		return "drop"
	case strings.HasPrefix(query, "ALTER"):
		return "alter"
	case strings.HasPrefix(query, "BEGIN"):
		return "begin"
	case strings.HasPrefix(query, "COMMIT"):
		return "commit"
	case strings.HasPrefix(query, "ROLLBACK"):
		return "rollback"
	case strings.HasPrefix(query, "SAVEPOINT"):
		return "savepoint"
	case strings.HasPrefix(query, "RELEASE"):
		return "release"
	default:
		return "other"
	}
}
