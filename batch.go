package ormkit

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fernandezvara/ormkit/meta"
)

// BatchSize is the default batch size for batch operations.
const BatchSize = 100

// BatchInsert inserts records with one multi-row INSERT per batch.
// Auto-increment keys are not read back. Returns the total number of rows
// affected. Run it inside a transaction to make the whole batch atomic.
//
// Usage:
//
//	users := []User{{Name: "A"}, {Name: "B"}, ...}
//	count, err := ormkit.BatchInsert(ctx, db, users, 100)
func BatchInsert[T any](ctx context.Context, src Source, items []T, batchSize int) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	if batchSize <= 0 {
		batchSize = BatchSize
	}

	c, def, err := definitionOf[T](src)
	if err != nil {
		return 0, err
	}

	var totalRows int64

	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))

		batch := items[i:end]
		query, args, err := batchInsertSQL(c, def, batch)
		if err != nil {
			return totalRows, err
		}
		rows, err := c.Exec(ctx, query, args...)
		if err != nil {
			return totalRows, err
		}
		totalRows += rows
	}

	return totalRows, nil
}

func batchInsertSQL[T any](c *Conn, def *meta.ModelDefinition, batch []T) (string, []any, error) {
	p := c.provider
	var fields []*meta.FieldDefinition
	var cols []string
	for _, f := range def.Fields {
		if f.AutoIncrement {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, p.QuoteColumn(f))
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("INSERT INTO " + p.QuoteTable(def) + " (" + strings.Join(cols, ", ") + ") VALUES ")
	for i := range batch {
		if err := assignAutoIDs(def, &batch[i]); err != nil {
			return "", nil, err
		}
		touchModel(&batch[i], true)
		rowArgs, err := fieldArgs(p, fields, &batch[i])
		if err != nil {
			return "", nil, err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, f := range fields {
			if j > 0 {
				sb.WriteString(", ")
			}
			ph := p.Placeholder(len(args) + j + 1)
			if f.CustomInsert != "" {
				ph = strings.ReplaceAll(p.ExpandVariables(f.CustomInsert), "{0}", ph)
			}
			sb.WriteString(ph)
		}
		sb.WriteByte(')')
		args = append(args, rowArgs...)
	}
	return sb.String(), args, nil
}

// BatchDelete deletes records in batches by their primary keys.
// Returns the total number of rows affected.
//
// Usage:
//
//	ids := []any{1, 2, 3}
//	count, err := ormkit.BatchDelete[User](ctx, db, ids, 100)
func BatchDelete[T any](ctx context.Context, src Source, ids []any, batchSize int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	if batchSize <= 0 {
		batchSize = BatchSize
	}

	c, def, err := definitionOf[T](src)
	if err != nil {
		return 0, err
	}
	pk := def.PrimaryKey()

	var totalRows int64

	for i := 0; i < len(ids); i += batchSize {
		end := min(i+batchSize, len(ids))

		batch := ids[i:end]
		phs := make([]string, len(batch))
		args := make([]any, len(batch))
		for j, id := range batch {
			key, err := c.provider.ToDB(pk, id)
			if err != nil {
				return totalRows, &Error{Code: CodeMapping, Op: "BatchDelete", Table: def.TableName, Message: err.Error(), Cause: err}
			}
			phs[j] = c.provider.Placeholder(j + 1)
			args[j] = key
		}
		query := "DELETE FROM " + c.provider.QuoteTable(def) +
			" WHERE " + c.provider.QuoteColumn(pk) + " IN (" + strings.Join(phs, ", ") + ")"
		rows, err := c.Exec(ctx, query, args...)
		if err != nil {
			return totalRows, err
		}
		totalRows += rows
	}

	return totalRows, nil
}

// ExecBatch runs query once per argument set and returns the total number
// of rows affected. It stops at the first error.
func ExecBatch(ctx context.Context, src Source, query string, argSets [][]any) (int64, error) {
	var totalRows int64
	for _, args := range argSets {
		rows, err := src.Conn().Exec(ctx, query, args...)
		if err != nil {
			return totalRows, err
		}
		totalRows += rows
	}
	return totalRows, nil
}

// Parallel2 runs two functions concurrently and returns their results in
// order. The first error cancels the context given to the others and is
// returned.
//
// Usage:
//
//	users, total, err := ormkit.Parallel2(ctx,
//	    func(ctx context.Context) ([]User, error) { return ormkit.FindAll[User](ctx, db, "") },
//	    func(ctx context.Context) (int64, error) { return ormkit.Count[User](ctx, db, "") },
//	)
func Parallel2[A, B any](ctx context.Context,
	fa func(context.Context) (A, error),
	fb func(context.Context) (B, error),
) (A, B, error) {
	var (
		a A
		b B
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { a, err = fa(gctx); return err })
	g.Go(func() (err error) { b, err = fb(gctx); return err })
	if err := g.Wait(); err != nil {
		var (
			za A
			zb B
		)
		return za, zb, err
	}
	return a, b, nil
}

// Parallel3 is Parallel2 for three functions.
func Parallel3[A, B, C any](ctx context.Context,
	fa func(context.Context) (A, error),
	fb func(context.Context) (B, error),
	fc func(context.Context) (C, error),
) (A, B, C, error) {
	var (
		a A
		b B
		c C
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { a, err = fa(gctx); return err })
	g.Go(func() (err error) { b, err = fb(gctx); return err })
	g.Go(func() (err error) { c, err = fc(gctx); return err })
	if err := g.Wait(); err != nil {
		var (
			za A
			zb B
			zc C
		)
		return za, zb, zc, err
	}
	return a, b, c, nil
}

// Parallel4 is Parallel2 for four functions.
func Parallel4[A, B, C, D any](ctx context.Context,
	fa func(context.Context) (A, error),
	fb func(context.Context) (B, error),
	fc func(context.Context) (C, error),
	fd func(context.Context) (D, error),
) (A, B, C, D, error) {
	var (
		a A
		b B
		c C
		d D
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { a, err = fa(gctx); return err })
	g.Go(func() (err error) { b, err = fb(gctx); return err })
	g.Go(func() (err error) { c, err = fc(gctx); return err })
	g.Go(func() (err error) { d, err = fd(gctx); return err })
	if err := g.Wait(); err != nil {
		var (
			za A
			zb B
			zc C
			zd D
		)
		return za, zb, zc, zd, err
	}
	return a, b, c, d, nil
}
