package ormkit

import (
	"context"
	"errors"
	"strings"
)

// UpdateWithVersion performs an optimistic locking update. The model must
// have a Version field (embed VersionedModel or FullModel). The row is only
// written when its stored version still equals the model's; on success the
// model's Version is incremented. Returns ErrConflict otherwise.
//
// Usage:
//
//	account.Balance += 100
//	err := ormkit.UpdateWithVersion(ctx, db, &account)
//	if errors.Is(err, ormkit.ErrConflict) {
//	    // Handle conflict - reload and retry
//	}
func UpdateWithVersion[T any](ctx context.Context, src Source, model *T) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	vf, err := def.Field("Version")
	if err != nil {
		return &Error{Code: CodeConfiguration, Op: "UpdateWithVersion", Table: def.TableName, Message: "model has no Version field", Cause: err}
	}
	current, err := castValue[int64](vf.GetValue(model))
	if err != nil {
		return err
	}
	touchModel(model, false)

	p := c.provider
	pk := def.PrimaryKey()
	var (
		sets []string
		args []any
	)
	for _, f := range def.Fields {
		if f == pk || f == vf || f.AutoIncrement {
			continue
		}
		v, err := p.ToDB(f, f.GetValue(model))
		if err != nil {
			return &Error{Code: CodeMapping, Op: "UpdateWithVersion", Table: def.TableName, Column: f.ColumnName, Message: err.Error(), Cause: err}
		}
		args = append(args, v)
		sets = append(sets, p.QuoteColumn(f)+" = "+p.Placeholder(len(args)))
	}
	version := p.QuoteColumn(vf)
	sets = append(sets, version+" = "+version+" + 1")

	key, err := p.ToDB(pk, pk.GetValue(model))
	if err != nil {
		return &Error{Code: CodeMapping, Op: "UpdateWithVersion", Table: def.TableName, Message: err.Error(), Cause: err}
	}
	args = append(args, key, current)
	query := "UPDATE " + p.QuoteTable(def) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + p.QuoteColumn(pk) + " = " + p.Placeholder(len(args)-1) +
		" AND " + version + " = " + p.Placeholder(len(args))

	n, err := c.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return &Error{
			Code:    CodeConflict,
			Message: "optimistic locking conflict - record was modified",
			Op:      "UpdateWithVersion",
			Table:   def.TableName,
			Cause:   ErrConflict,
		}
	}
	return vf.SetValue(model, current+1)
}

// CheckVersion verifies that a record's version matches the expected version.
// Returns ErrConflict if versions don't match.
//
// Usage:
//
//	if err := ormkit.CheckVersion[Account](ctx, db, accountID, expectedVersion); err != nil {
//	    // Version mismatch - reload required
//	}
func CheckVersion[T any](ctx context.Context, src Source, id any, expectedVersion int64) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	vf, err := def.Field("Version")
	if err != nil {
		return &Error{Code: CodeConfiguration, Op: "CheckVersion", Table: def.TableName, Message: "model has no Version field", Cause: err}
	}
	pk := def.PrimaryKey()
	key, err := c.provider.ToDB(pk, id)
	if err != nil {
		return &Error{Code: CodeMapping, Op: "CheckVersion", Table: def.TableName, Message: err.Error(), Cause: err}
	}
	query := "SELECT " + c.provider.QuoteColumn(vf) + " FROM " + c.provider.QuoteTable(def) +
		" WHERE " + c.provider.QuoteColumn(pk) + " = " + c.provider.Placeholder(1)
	currentVersion, err := Single[int64](ctx, c, query, key)
	if IsNotFound(err) {
		return notFound("CheckVersion", def.TableName)
	}
	if err != nil {
		return err
	}

	if currentVersion != expectedVersion {
		return &Error{
			Code:    CodeConflict,
			Message: "version mismatch - record was modified",
			Op:      "CheckVersion",
			Table:   def.TableName,
			Cause:   ErrConflict,
		}
	}

	return nil
}

// IsConflict checks if the error is an optimistic locking conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// RetryOnConflict executes a function and retries on optimistic locking conflicts.
// The function should reload the model and retry the operation.
//
// Usage:
//
//	err := ormkit.RetryOnConflict(ctx, 3, func() error {
//	    account, err := ormkit.FindByID[Account](ctx, db, id)
//	    if err != nil {
//	        return err
//	    }
//	    account.Balance += 100
//	    return ormkit.UpdateWithVersion(ctx, db, account)
//	})
func RetryOnConflict(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
