package ormkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// ResultsFilter substitutes the results of every command executed while it
// is installed. Hooks still run; the connection is never touched.
//
// ListResults and ColumnResults return a slice, DictionaryResult a map.
// Elements are converted to the type requested by the operation.
type ResultsFilter interface {
	ExecResult(cmd *Command) (int64, error)
	ScalarResult(cmd *Command) (any, error)
	ListResults(cmd *Command) (any, error)
	SingleResult(cmd *Command) (any, error)
	DictionaryResult(cmd *Command) (any, error)
	ColumnResults(cmd *Command) (any, error)
}

type filterEntry struct {
	filter ResultsFilter
	closed atomic.Bool
}

// FilterScope is the handle of an installed filter.
type FilterScope struct {
	entry *filterEntry
}

// UseResultsFilter installs f for the call chain of the returned context
// only; ctx and contexts derived from it elsewhere are unaffected. Closing
// the scope restores the filter that was active before.
func UseResultsFilter(ctx context.Context, f ResultsFilter) (context.Context, *FilterScope) {
	e := &filterEntry{filter: f}
	return withFilter(ctx, e), &FilterScope{entry: e}
}

// Close uninstalls the filter. It is safe to call more than once.
func (fs *FilterScope) Close() {
	fs.entry.closed.Store(true)
}

// CannedResults is a ResultsFilter returning fixed values. A non-nil *Fn
// field takes precedence over the matching value field.
type CannedResults struct {
	Exec       int64
	Scalar     any
	List       any
	Single     any
	Dictionary any
	Column     any

	ExecFn       func(cmd *Command) (int64, error)
	ScalarFn     func(cmd *Command) (any, error)
	ListFn       func(cmd *Command) (any, error)
	SingleFn     func(cmd *Command) (any, error)
	DictionaryFn func(cmd *Command) (any, error)
	ColumnFn     func(cmd *Command) (any, error)

	// Err is returned by every command when set.
	Err error

	// PrintSQL writes each command text to Output, stdout when nil.
	PrintSQL bool
	Output   io.Writer
	// OnCommand is called for each command before the result is produced.
	OnCommand func(cmd *Command)

	mu         sync.Mutex
	statements []string
}

var _ ResultsFilter = (*CannedResults)(nil)

// Statements returns the command texts seen so far.
func (r *CannedResults) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

func (r *CannedResults) observe(cmd *Command) error {
	r.mu.Lock()
	r.statements = append(r.statements, cmd.Text())
	r.mu.Unlock()
	if r.PrintSQL {
		w := r.Output
		if w == nil {
			w = os.Stdout
		}
		fmt.Fprintln(w, cmd.Text())
	}
	if r.OnCommand != nil {
		r.OnCommand(cmd)
	}
	return r.Err
}

func (r *CannedResults) ExecResult(cmd *Command) (int64, error) {
	if err := r.observe(cmd); err != nil {
		return 0, err
	}
	if r.ExecFn != nil {
		return r.ExecFn(cmd)
	}
	return r.Exec, nil
}

func (r *CannedResults) ScalarResult(cmd *Command) (any, error) {
	return r.value(cmd, r.ScalarFn, r.Scalar)
}

func (r *CannedResults) ListResults(cmd *Command) (any, error) {
	return r.value(cmd, r.ListFn, r.List)
}

// SingleResult falls back to the first element of List when Single is unset.
func (r *CannedResults) SingleResult(cmd *Command) (any, error) {
	if r.SingleFn != nil || r.Single != nil {
		return r.value(cmd, r.SingleFn, r.Single)
	}
	list, err := r.value(cmd, r.ListFn, r.List)
	if err != nil || list == nil {
		return nil, err
	}
	return firstElement(list), nil
}

func (r *CannedResults) DictionaryResult(cmd *Command) (any, error) {
	return r.value(cmd, r.DictionaryFn, r.Dictionary)
}

func (r *CannedResults) ColumnResults(cmd *Command) (any, error) {
	return r.value(cmd, r.ColumnFn, r.Column)
}

func (r *CannedResults) value(cmd *Command, fn func(*Command) (any, error), v any) (any, error) {
	if err := r.observe(cmd); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(cmd)
	}
	return v, nil
}
