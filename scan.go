package ormkit

import (
	"database/sql"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/fernandezvara/ormkit/convert"
)

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
	rowMapType  = reflect.TypeFor[map[string]any]()
)

// isModel reports whether t is read as a mapped struct rather than a value.
func isModel(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != timeType && !reflect.PointerTo(t).Implements(scannerType)
}

// rowScanner returns the function mapping one row to T.
func rowScanner[T any](c *Conn) func(convert.RowReader) (T, error) {
	t := reflect.TypeFor[T]()
	switch {
	case t == rowMapType:
		return func(row convert.RowReader) (T, error) {
			m, err := scanMap(row)
			var out T
			if err == nil {
				out = any(m).(T)
			}
			return out, err
		}
	case isModel(t):
		return func(row convert.RowReader) (T, error) {
			var out T
			err := c.scanModel(row, &out)
			return out, err
		}
	case t.Kind() == reflect.Pointer && isModel(t.Elem()):
		return func(row convert.RowReader) (T, error) {
			ptr := reflect.New(t.Elem())
			var out T
			if err := c.scanModel(row, ptr.Interface()); err != nil {
				return out, err
			}
			return ptr.Interface().(T), nil
		}
	}
	return func(row convert.RowReader) (T, error) {
		return scanScalar[T](c, row, 0)
	}
}

// scanModel fills the struct behind ptr from row. Columns without a mapped
// field are skipped.
func (c *Conn) scanModel(row convert.RowReader, ptr any) error {
	def, err := c.models.Get(reflect.TypeOf(ptr).Elem())
	if err != nil {
		return err
	}
	for i, col := range row.Columns() {
		f, ok := def.FieldByColumn(col)
		if !ok {
			continue
		}
		raw, err := row.Value(i)
		if err != nil {
			return err
		}
		v, err := c.provider.FromDB(f, raw)
		if err != nil {
			return &Error{Code: CodeMapping, Op: "Scan", Table: def.TableName, Column: col, Message: err.Error(), Cause: err}
		}
		if err := f.SetValue(ptr, v); err != nil {
			return &Error{Code: CodeMapping, Op: "Scan", Table: def.TableName, Column: col, Message: err.Error(), Cause: err}
		}
	}
	return nil
}

func scanMap(row convert.RowReader) (map[string]any, error) {
	cols := row.Columns()
	m := make(map[string]any, len(cols))
	for i, col := range cols {
		v, err := row.Value(i)
		if err != nil {
			return nil, err
		}
		m[col] = v
	}
	return m, nil
}

// scanScalar converts one column of row to T.
func scanScalar[T any](c *Conn, row convert.RowReader, column int) (T, error) {
	var zero T
	raw, err := row.Value(column)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	v, err := c.provider.Converters().FromDB(reflect.TypeFor[T](), raw)
	if err != nil {
		return zero, &Error{Code: CodeMapping, Op: "Scan", Message: err.Error(), Cause: err}
	}
	return castValue[T](v)
}

func scanPair[K comparable, V any](c *Conn, row convert.RowReader) (K, V, error) {
	var v V
	k, err := scanScalar[K](c, row, 0)
	if err != nil {
		return k, v, err
	}
	v, err = scanScalar[V](c, row, 1)
	return k, v, err
}

func castFailed(v any, t reflect.Type) error {
	return &Error{Code: CodeMapping, Op: "Result", Message: fmt.Sprintf("cannot use %T as %s", v, t)}
}

// castValue converts a filter-supplied or converted value to T.
func castValue[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if out, ok := v.(T); ok {
		return out, nil
	}
	t := reflect.TypeFor[T]()
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(t) {
		return rv.Elem().Interface().(T), nil
	}
	if t.Kind() == reflect.Pointer && rv.Type().AssignableTo(t.Elem()) {
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p.Interface().(T), nil
	}
	if rv.Type().ConvertibleTo(t) && (rv.Kind() == reflect.String) == (t.Kind() == reflect.String) {
		return rv.Convert(t).Interface().(T), nil
	}
	return zero, castFailed(v, t)
}

func castSlice[T any](v any) ([]T, error) {
	if v == nil {
		return nil, nil
	}
	if out, ok := v.([]T); ok {
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, castFailed(v, reflect.TypeFor[[]T]())
	}
	out := make([]T, rv.Len())
	for i := range out {
		item, err := castValue[T](rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func castMap[K comparable, V any](v any) (map[K]V, error) {
	if v == nil {
		return map[K]V{}, nil
	}
	if out, ok := v.(map[K]V); ok {
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, castFailed(v, reflect.TypeFor[map[K]V]())
	}
	out := make(map[K]V, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		k, err := castValue[K](it.Key().Interface())
		if err != nil {
			return nil, err
		}
		val, err := castValue[V](it.Value().Interface())
		if err != nil && reflect.TypeFor[V]().Kind() == reflect.Slice {
			val, err = castSliceAs[V](it.Value().Interface())
		}
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

// castSliceAs converts any slice to the slice type S element by element.
func castSliceAs[S any](v any) (S, error) {
	var zero S
	if out, ok := v.(S); ok {
		return out, nil
	}
	st := reflect.TypeFor[S]()
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return zero, castFailed(v, st)
	}
	out := reflect.MakeSlice(st, rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := reflect.ValueOf(rv.Index(i).Interface())
		switch {
		case !item.IsValid():
		case item.Type().AssignableTo(st.Elem()):
			out.Index(i).Set(item)
		case item.Type().ConvertibleTo(st.Elem()):
			out.Index(i).Set(item.Convert(st.Elem()))
		default:
			return zero, castFailed(item.Interface(), st.Elem())
		}
	}
	return out.Interface().(S), nil
}

// cannedRows turns filter list results into row readers. Elements may be
// readers already or map[string]any, whose columns are read in sorted order.
func cannedRows(v any) ([]convert.RowReader, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, castFailed(v, reflect.TypeFor[[]convert.RowReader]())
	}
	out := make([]convert.RowReader, rv.Len())
	for i := range out {
		switch item := rv.Index(i).Interface().(type) {
		case convert.RowReader:
			out[i] = item
		case map[string]any:
			cols := slices.Sorted(maps.Keys(item))
			values := make([]any, len(cols))
			for j, col := range cols {
				values[j] = item[col]
			}
			out[i] = convert.NewBufferedRow(cols, values)
		default:
			return nil, castFailed(item, reflect.TypeFor[convert.RowReader]())
		}
	}
	return out, nil
}

func firstElement(v any) any {
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() > 0 {
		return rv.Index(0).Interface()
	}
	return nil
}
