package ormkit

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"github.com/fernandezvara/ormkit/convert"
)

type call struct {
	query string
	args  []any
	async bool
}

// run drives one command through the pipeline: configure, before hook,
// execute or filter, exactly one of after or error hook, dispose.
func run[R any](ctx context.Context, src Source, c call,
	filtered func(ResultsFilter, *Command) (R, error),
	execute func(context.Context, *Command) (R, error),
) (res R, err error) {
	cmd, err := src.Conn().prepare(ctx, c.query, c.args)
	if err != nil {
		return res, err
	}
	cmd.async = c.async
	defer cmd.dispose()

	execCtx := cmd.begin()
	if cmd.filter != nil {
		res, err = filtered(cmd.filter, cmd)
	} else {
		res, err = execute(execCtx, cmd)
	}
	if err = cmd.finish(err); err != nil {
		var zero R
		return zero, err
	}
	return res, nil
}

// query opens the command's rows and keeps them for dispose.
func (cmd *Command) query(ctx context.Context) (*sql.Rows, error) {
	rows, err := cmd.exec.QueryContext(ctx, cmd.text, cmd.args...)
	if err != nil {
		return nil, err
	}
	cmd.rows = rows
	return rows, nil
}

// errStop ends iteration in each without failing the command.
var errStop = errors.New("stop")

// each calls fn for every row. The row reader is only valid during fn.
func (cmd *Command) each(ctx context.Context, fn func(convert.RowReader) error) error {
	rows, err := cmd.query(ctx)
	if err != nil {
		return err
	}
	row, err := convert.NewCursorRow(rows)
	if err != nil {
		return err
	}
	for rows.Next() {
		row.Reset()
		if err := fn(row); err != nil {
			if err == errStop {
				return nil
			}
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return rows.Close()
}

func execCall(ctx context.Context, src Source, c call) (sql.Result, error) {
	return run(ctx, src, c,
		func(f ResultsFilter, cmd *Command) (sql.Result, error) {
			n, err := f.ExecResult(cmd)
			if err != nil {
				return nil, err
			}
			return cannedResult(n), nil
		},
		func(ctx context.Context, cmd *Command) (res sql.Result, err error) {
			err = cmd.conn.writeLocked(func() error {
				res, err = cmd.exec.ExecContext(ctx, cmd.text, cmd.args...)
				return err
			})
			return res, err
		})
}

// ExecResult runs a non-query statement and returns the driver result.
func (c *Conn) ExecResult(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return execCall(ctx, c, call{query: query, args: args})
}

// Exec runs a non-query statement and returns the number of affected rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return affected(execCall(ctx, c, call{query: query, args: args}))
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type cannedResult int64

func (r cannedResult) LastInsertId() (int64, error) { return 0, nil }
func (r cannedResult) RowsAffected() (int64, error) { return int64(r), nil }

// Rows runs a query and calls fn for every row.
func (c *Conn) Rows(ctx context.Context, query string, args []any, fn func(convert.RowReader) error) error {
	_, err := run(ctx, c, call{query: query, args: args},
		func(f ResultsFilter, cmd *Command) (struct{}, error) {
			v, err := f.ListResults(cmd)
			if err != nil {
				return struct{}{}, err
			}
			rows, err := cannedRows(v)
			if err != nil {
				return struct{}{}, err
			}
			for _, r := range rows {
				if err := fn(r); err != nil {
					return struct{}{}, err
				}
			}
			return struct{}{}, nil
		},
		func(ctx context.Context, cmd *Command) (struct{}, error) {
			return struct{}{}, cmd.each(ctx, fn)
		})
	return err
}

func scalarCall[T any](ctx context.Context, src Source, c call) (T, error) {
	return run(ctx, src, c,
		func(f ResultsFilter, cmd *Command) (T, error) {
			v, err := f.ScalarResult(cmd)
			if err != nil {
				var zero T
				return zero, err
			}
			return castValue[T](v)
		},
		func(ctx context.Context, cmd *Command) (T, error) {
			var out T
			err := cmd.each(ctx, func(row convert.RowReader) error {
				v, err := scanScalar[T](cmd.conn, row, 0)
				if err != nil {
					return err
				}
				out = v
				return errStop
			})
			return out, err
		})
}

// Scalar returns the first column of the first row, or the zero value when
// there are no rows.
func Scalar[T any](ctx context.Context, src Source, query string, args ...any) (T, error) {
	return scalarCall[T](ctx, src, call{query: query, args: args})
}

func listCall[T any](ctx context.Context, src Source, c call) ([]T, error) {
	return run(ctx, src, c,
		func(f ResultsFilter, cmd *Command) ([]T, error) {
			v, err := f.ListResults(cmd)
			if err != nil {
				return nil, err
			}
			return castSlice[T](v)
		},
		func(ctx context.Context, cmd *Command) ([]T, error) {
			scan := rowScanner[T](cmd.conn)
			var out []T
			err := cmd.each(ctx, func(row convert.RowReader) error {
				v, err := scan(row)
				if err != nil {
					return err
				}
				out = append(out, v)
				return nil
			})
			return out, err
		})
}

// List maps every row to T. T may be a mapped struct, a pointer to one,
// map[string]any or a scalar read from the first column.
func List[T any](ctx context.Context, src Source, query string, args ...any) ([]T, error) {
	return listCall[T](ctx, src, call{query: query, args: args})
}

func singleCall[T any](ctx context.Context, src Source, c call) (T, error) {
	return run(ctx, src, c,
		func(f ResultsFilter, cmd *Command) (T, error) {
			v, err := f.SingleResult(cmd)
			if err != nil {
				var zero T
				return zero, err
			}
			if v == nil {
				var zero T
				return zero, notFound("Single", "")
			}
			return castValue[T](v)
		},
		func(ctx context.Context, cmd *Command) (T, error) {
			scan := rowScanner[T](cmd.conn)
			var (
				out   T
				found bool
			)
			err := cmd.each(ctx, func(row convert.RowReader) error {
				v, err := scan(row)
				if err != nil {
					return err
				}
				out, found = v, true
				return errStop
			})
			if err == nil && !found {
				err = notFound("Single", "")
			}
			return out, err
		})
}

// Single maps the first row to T. No rows is a not-found error.
func Single[T any](ctx context.Context, src Source, query string, args ...any) (T, error) {
	return singleCall[T](ctx, src, call{query: query, args: args})
}

// Column returns the first column of every row.
func Column[T any](ctx context.Context, src Source, query string, args ...any) ([]T, error) {
	return run(ctx, src, call{query: query, args: args},
		func(f ResultsFilter, cmd *Command) ([]T, error) {
			v, err := f.ColumnResults(cmd)
			if err != nil {
				return nil, err
			}
			return castSlice[T](v)
		},
		func(ctx context.Context, cmd *Command) ([]T, error) {
			var out []T
			err := cmd.each(ctx, func(row convert.RowReader) error {
				v, err := scanScalar[T](cmd.conn, row, 0)
				if err != nil {
					return err
				}
				out = append(out, v)
				return nil
			})
			return out, err
		})
}

// Dictionary maps the first column to the second. Later rows overwrite
// earlier ones with the same key.
func Dictionary[K comparable, V any](ctx context.Context, src Source, query string, args ...any) (map[K]V, error) {
	return run(ctx, src, call{query: query, args: args},
		func(f ResultsFilter, cmd *Command) (map[K]V, error) {
			v, err := f.DictionaryResult(cmd)
			if err != nil {
				return nil, err
			}
			return castMap[K, V](v)
		},
		func(ctx context.Context, cmd *Command) (map[K]V, error) {
			out := make(map[K]V)
			err := cmd.each(ctx, func(row convert.RowReader) error {
				k, v, err := scanPair[K, V](cmd.conn, row)
				if err != nil {
					return err
				}
				out[k] = v
				return nil
			})
			return out, err
		})
}

// Lookup groups the second column by the first.
func Lookup[K comparable, V any](ctx context.Context, src Source, query string, args ...any) (map[K][]V, error) {
	return run(ctx, src, call{query: query, args: args},
		func(f ResultsFilter, cmd *Command) (map[K][]V, error) {
			v, err := f.DictionaryResult(cmd)
			if err != nil {
				return nil, err
			}
			return castMap[K, []V](v)
		},
		func(ctx context.Context, cmd *Command) (map[K][]V, error) {
			out := make(map[K][]V)
			err := cmd.each(ctx, func(row convert.RowReader) error {
				k, v, err := scanPair[K, V](cmd.conn, row)
				if err != nil {
					return err
				}
				out[k] = append(out[k], v)
				return nil
			})
			return out, err
		})
}

// Lazy streams rows as they are read. The command stays open until the loop
// ends; breaking out early still disposes it. Errors are yielded once and end
// the sequence.
func Lazy[T any](ctx context.Context, src Source, query string, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		cmd, err := src.Conn().prepare(ctx, query, args)
		if err != nil {
			yield(zero, err)
			return
		}
		defer cmd.dispose()

		execCtx := cmd.begin()
		if cmd.filter != nil {
			v, err := cmd.filter.ListResults(cmd)
			var items []T
			if err == nil {
				items, err = castSlice[T](v)
			}
			if err = cmd.finish(err); err != nil {
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			return
		}

		var failed error
		finished := false
		defer func() {
			if !finished {
				_ = cmd.finish(failed)
			}
		}()
		fail := func(err error) {
			failed = err
			finished = true
			yield(zero, cmd.finish(err))
		}

		rows, err := cmd.query(execCtx)
		if err != nil {
			fail(err)
			return
		}
		row, err := convert.NewCursorRow(rows)
		if err != nil {
			fail(err)
			return
		}
		scan := rowScanner[T](cmd.conn)
		for rows.Next() {
			row.Reset()
			v, err := scan(row)
			if err != nil {
				fail(err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			fail(err)
		}
	}
}
