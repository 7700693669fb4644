package ormkit

import (
	"context"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/fernandezvara/ormkit/dialect"
	"github.com/fernandezvara/ormkit/meta"
)

// definitionOf resolves the model definition of T on src.
func definitionOf[T any](src Source) (*Conn, *meta.ModelDefinition, error) {
	c := src.Conn()
	def, err := meta.For[T](c.models)
	if err != nil {
		return nil, nil, err
	}
	return c, def, nil
}

// fieldArgs converts the values of fields of model into bind arguments.
func fieldArgs(p dialect.Provider, fields []*meta.FieldDefinition, model any) ([]any, error) {
	args := make([]any, len(fields))
	for i, f := range fields {
		v, err := p.ToDB(f, f.GetValue(model))
		if err != nil {
			return nil, &Error{Code: CodeMapping, Op: "Bind", Table: f.Model.TableName, Column: f.ColumnName, Message: err.Error(), Cause: err}
		}
		args[i] = v
	}
	return args, nil
}

// touchModel lets a Timestamper model update its own timestamps.
func touchModel(model any, inserting bool) {
	if ts, ok := model.(Timestamper); ok {
		ts.Touch(inserting)
	}
}

// assignAutoIDs fills empty autoid fields with a new UUID.
func assignAutoIDs(def *meta.ModelDefinition, model any) error {
	for _, f := range def.AutoIDFields {
		v := reflect.ValueOf(f.GetValue(model))
		if v.IsValid() && !v.IsZero() {
			continue
		}
		id := uuid.New()
		t := f.FieldType
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		var value any = id
		if t.Kind() == reflect.String {
			value = id.String()
		} else if t != reflect.TypeFor[uuid.UUID]() {
			value = [16]byte(id)
		}
		if err := f.SetValue(model, value); err != nil {
			return &Error{Code: CodeMapping, Op: "Insert", Table: def.TableName, Column: f.ColumnName, Message: err.Error(), Cause: err}
		}
	}
	return nil
}

// Insert inserts a new record. Auto-increment keys are read back into
// model; empty autoid keys are generated first.
func Insert[T any](ctx context.Context, src Source, model *T) error {
	_, err := insert(ctx, src, model, dialect.ConflictNone)
	return err
}

// InsertOrIgnore inserts a record unless it conflicts with an existing one.
// It reports whether a row was written; auto-increment keys of written rows
// are read back into model.
func InsertOrIgnore[T any](ctx context.Context, src Source, model *T) (bool, error) {
	return insert(ctx, src, model, dialect.ConflictIgnore)
}

// InsertOrReplace inserts a record, replacing any conflicting row. Dialects
// that need an explicit conflict target report a configuration error.
func InsertOrReplace[T any](ctx context.Context, src Source, model *T) error {
	_, err := insert(ctx, src, model, dialect.ConflictReplace)
	return err
}

func insert[T any](ctx context.Context, src Source, model *T, conflict dialect.Conflict) (bool, error) {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return false, err
	}
	if err := assignAutoIDs(def, model); err != nil {
		return false, err
	}
	touchModel(model, true)
	query, fields := c.provider.InsertSQL(def)
	if query, err = c.provider.SQLConflict(query, conflict); err != nil {
		return false, &Error{Code: CodeConfiguration, Op: "Insert", Table: def.TableName, Message: err.Error(), Cause: err}
	}
	args, err := fieldArgs(c.provider, fields, model)
	if err != nil {
		return false, err
	}

	pk := def.PrimaryKey()
	// With RETURNING the returned keys, not rows affected, tell whether the
	// row was written.
	if strings.Contains(query, " RETURNING ") {
		ids, err := Column[int64](ctx, c, query, args...)
		if err != nil || len(ids) == 0 {
			return false, err
		}
		if pk.AutoIncrement {
			return true, pk.SetValue(model, ids[0])
		}
		return true, nil
	}

	res, err := c.ExecResult(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	if !pk.AutoIncrement {
		return true, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return true, err
	}
	return true, pk.SetValue(model, id)
}

// Update updates an existing record (by primary key)
func Update[T any](ctx context.Context, src Source, model *T) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	touchModel(model, false)
	query, fields := c.provider.UpdateByPKSQL(def)
	args, err := fieldArgs(c.provider, fields, model)
	if err != nil {
		return err
	}
	n, err := c.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("Update", def.TableName)
	}
	return nil
}

// Delete deletes a record by primary key
func Delete[T any](ctx context.Context, src Source, model *T) error {
	_, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	return DeleteByID[T](ctx, src, def.PrimaryKey().GetValue(model))
}

// DeleteByID deletes a record by its primary key value
func DeleteByID[T any](ctx context.Context, src Source, id any) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	key, err := c.provider.ToDB(def.PrimaryKey(), id)
	if err != nil {
		return &Error{Code: CodeMapping, Op: "DeleteByID", Table: def.TableName, Message: err.Error(), Cause: err}
	}
	n, err := c.Exec(ctx, c.provider.DeleteByPKSQL(def), key)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("DeleteByID", def.TableName)
	}
	return nil
}

// FindByID finds a record by its primary key
func FindByID[T any](ctx context.Context, src Source, id any) (*T, error) {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return nil, err
	}
	key, err := c.provider.ToDB(def.PrimaryKey(), id)
	if err != nil {
		return nil, &Error{Code: CodeMapping, Op: "FindByID", Table: def.TableName, Message: err.Error(), Cause: err}
	}
	item, err := Single[*T](ctx, c, c.provider.SelectByPKSQL(def), key)
	if IsNotFound(err) {
		return nil, notFound("FindByID", def.TableName)
	}
	return item, err
}

// ExistsByID checks if a record with the given ID exists
func ExistsByID[T any](ctx context.Context, src Source, id any) (bool, error) {
	_, err := FindByID[T](ctx, src, id)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func selectSQL(p dialect.Provider, def *meta.ModelDefinition, where string) string {
	query := "SELECT " + p.SelectColumns(def) + " FROM " + p.QuoteTable(def)
	if where != "" {
		query += " WHERE " + where
	}
	return query
}

// FindAll returns the records matching where, or all records when where is
// empty. where is raw SQL using the dialect's placeholders or Params names.
func FindAll[T any](ctx context.Context, src Source, where string, args ...any) ([]T, error) {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return nil, err
	}
	return List[T](ctx, c, selectSQL(c.provider, def, where), args...)
}

// Count counts the records matching where, or all records when where is empty.
func Count[T any](ctx context.Context, src Source, where string, args ...any) (int64, error) {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + c.provider.QuoteTable(def)
	if where != "" {
		query += " WHERE " + where
	}
	return Scalar[int64](ctx, c, query, args...)
}

// Pluck extracts a single field from the records matching where.
func Pluck[T any, V any](ctx context.Context, src Source, field, where string, args ...any) ([]V, error) {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return nil, err
	}
	f, err := def.Field(field)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + c.provider.QuoteColumn(f) + " FROM " + c.provider.QuoteTable(def)
	if where != "" {
		query += " WHERE " + where
	}
	return Column[V](ctx, c, query, args...)
}

// CreateTable creates the table of T and its indexes.
func CreateTable[T any](ctx context.Context, src Source, ifNotExists bool) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	ddl, err := c.provider.CreateTableSQL(def, ifNotExists)
	if err != nil {
		return err
	}
	if _, err := c.Exec(ctx, ddl); err != nil {
		return err
	}
	for _, stmt := range c.provider.CreateIndexSQL(def) {
		if ifNotExists && c.provider.Name() != "mysql" {
			stmt = strings.Replace(stmt, " INDEX ", " INDEX IF NOT EXISTS ", 1)
		}
		if _, err := c.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DropTable drops the table of T if it exists.
func DropTable[T any](ctx context.Context, src Source) error {
	c, def, err := definitionOf[T](src)
	if err != nil {
		return err
	}
	_, err = c.Exec(ctx, c.provider.DropTableSQL(def))
	return err
}
