package convert

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnType renders a column definition from a type name and default size.
type ColumnType struct {
	Name      string
	Length    int
	Precision int
	Scale     int
	// Fixed ignores size hints.
	Fixed bool
}

// Render applies spec over the defaults.
func (c ColumnType) Render(spec ColumnSpec) string {
	if c.Fixed {
		return c.Name
	}
	if spec.Precision > 0 || c.Precision > 0 {
		p, s := c.Precision, c.Scale
		if spec.Precision > 0 {
			p, s = spec.Precision, spec.Scale
		}
		return fmt.Sprintf("%s(%d,%d)", c.Name, p, s)
	}
	if spec.Length > 0 {
		return fmt.Sprintf("%s(%d)", c.Name, spec.Length)
	}
	if c.Length > 0 {
		return fmt.Sprintf("%s(%d)", c.Name, c.Length)
	}
	return c.Name
}

// Literal renders a driver-level value as a SQL literal using env.
func Literal(env *Env, value any) string {
	if env == nil {
		env = defaultEnv
	}
	switch v := value.(type) {
	case nil:
		return env.Null
	case bool:
		if v {
			return env.True
		}
		return env.False
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case decimal.Decimal:
		return v.String()
	case string:
		return string(env.Literals.AppendString(nil, v))
	case []byte:
		return string(env.Literals.AppendBytes(nil, v))
	case time.Time:
		if env.UTC {
			v = v.UTC()
		}
		return string(env.Literals.AppendTime(nil, v))
	}
	rv := reflect.ValueOf(value)
	switch KindOf(rv.Type()) {
	case NumericSigned:
		return strconv.FormatInt(rv.Int(), 10)
	case NumericUnsigned:
		return strconv.FormatUint(rv.Uint(), 10)
	case NumericFloat:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	}
	if rv.Kind() == reflect.String {
		return string(env.Literals.AppendString(nil, rv.String()))
	}
	return string(env.Literals.AppendString(nil, fmt.Sprint(value)))
}

// quoteVia renders value through the converter's own ToDBValue.
func quoteVia(c Converter, env *Env, value any, fieldType reflect.Type) string {
	if isNil(value) {
		return env.Null
	}
	v, err := c.ToDBValue(fieldType, value)
	if err != nil {
		return string(env.Literals.AppendString(nil, fmt.Sprint(value)))
	}
	return Literal(env, v)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// castTo converts v to t when the types differ but are convertible.
func castTo(v any, t reflect.Type) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return v, nil
	}
	if !rv.Type().ConvertibleTo(t) {
		return nil, fmt.Errorf("%w: %T to %s", ErrUnsupported, v, t)
	}
	return rv.Convert(t).Interface(), nil
}

func asText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}
