package convert

import (
	"database/sql"
	"fmt"
)

// RowReader gives positional access to the values of the current row.
type RowReader interface {
	Columns() []string
	Value(column int) (any, error)
}

// BufferedRow is a row whose values were materialized ahead of time.
type BufferedRow struct {
	columns []string
	values  []any
}

// NewBufferedRow wraps pre-materialized values.
func NewBufferedRow(columns []string, values []any) *BufferedRow {
	return &BufferedRow{columns: columns, values: values}
}

func (r *BufferedRow) Columns() []string { return r.columns }

// Values returns the underlying slice.
func (r *BufferedRow) Values() []any { return r.values }

func (r *BufferedRow) Value(column int) (any, error) {
	if column < 0 || column >= len(r.values) {
		return nil, fmt.Errorf("convert: column %d out of range [0,%d)", column, len(r.values))
	}
	return r.values[column], nil
}

// CursorRow reads the current row of an open *sql.Rows. The row is scanned
// once, on first access, and reused until Reset is called.
type CursorRow struct {
	rows    *sql.Rows
	columns []string
	values  []any
	scanned bool
}

// NewCursorRow binds a reader to rows. The caller still drives rows.Next.
func NewCursorRow(rows *sql.Rows) (*CursorRow, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return &CursorRow{rows: rows, columns: cols, values: make([]any, len(cols))}, nil
}

func (r *CursorRow) Columns() []string { return r.columns }

// Reset marks the current row as unread. Call it after every rows.Next.
func (r *CursorRow) Reset() { r.scanned = false }

func (r *CursorRow) Value(column int) (any, error) {
	if column < 0 || column >= len(r.columns) {
		return nil, fmt.Errorf("convert: column %d out of range [0,%d)", column, len(r.columns))
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	return r.values[column], nil
}

// Buffer copies the current row into a BufferedRow.
func (r *CursorRow) Buffer() (*BufferedRow, error) {
	if err := r.scan(); err != nil {
		return nil, err
	}
	values := make([]any, len(r.values))
	copy(values, r.values)
	return NewBufferedRow(r.columns, values), nil
}

func (r *CursorRow) scan() error {
	if r.scanned {
		return nil
	}
	dest := make([]any, len(r.values))
	for i := range r.values {
		r.values[i] = nil
		dest[i] = &r.values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return err
	}
	r.scanned = true
	return nil
}
