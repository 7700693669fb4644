package ormkit

import (
	"context"
	"time"
)

// Where conditions for models embedding SoftDeletableModel or FullModel.
//
// Usage:
//
//	users, err := ormkit.FindAll[User](ctx, db, ormkit.NotDeleted)
const (
	NotDeleted  = "deleted_at IS NULL"
	OnlyDeleted = "deleted_at IS NOT NULL"
)

// SoftDelete marks a model as deleted by setting its DeletedAt field.
// The model must embed SoftDeletableModel or have a DeletedAt field.
//
// Usage:
//
//	err := ormkit.SoftDelete(ctx, db, &user)
func SoftDelete[T any](ctx context.Context, src Source, model *T) error {
	now := time.Now().UTC()
	return setDeletedAt(ctx, src, model, &now, "SoftDelete")
}

// Restore removes the soft delete mark from a model.
//
// Usage:
//
//	err := ormkit.Restore(ctx, db, &user)
func Restore[T any](ctx context.Context, src Source, model *T) error {
	return setDeletedAt(ctx, src, model, nil, "Restore")
}

func setDeletedAt[T any](ctx context.Context, src Source, model *T, at *time.Time, op string) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	deleted, err := def.Field("DeletedAt")
	if err != nil {
		return &Error{Code: CodeConfiguration, Op: op, Table: def.TableName, Message: "model has no DeletedAt field", Cause: err}
	}
	if err := deleted.SetValue(model, at); err != nil {
		return &Error{Code: CodeMapping, Op: op, Table: def.TableName, Message: err.Error(), Cause: err}
	}
	touchModel(model, false)

	p := c.provider
	fields := []string{"DeletedAt"}
	if _, err := def.Field("UpdatedAt"); err == nil {
		fields = append(fields, "UpdatedAt")
	}
	query := "UPDATE " + p.QuoteTable(def) + " SET "
	var args []any
	for i, name := range fields {
		f, _ := def.Field(name)
		v, err := p.ToDB(f, f.GetValue(model))
		if err != nil {
			return &Error{Code: CodeMapping, Op: op, Table: def.TableName, Column: f.ColumnName, Message: err.Error(), Cause: err}
		}
		if i > 0 {
			query += ", "
		}
		args = append(args, v)
		query += p.QuoteColumn(f) + " = " + p.Placeholder(len(args))
	}
	pk := def.PrimaryKey()
	key, err := p.ToDB(pk, pk.GetValue(model))
	if err != nil {
		return &Error{Code: CodeMapping, Op: op, Table: def.TableName, Message: err.Error(), Cause: err}
	}
	args = append(args, key)
	query += " WHERE " + p.QuoteColumn(pk) + " = " + p.Placeholder(len(args))

	n, err := c.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(op, def.TableName)
	}
	return nil
}
