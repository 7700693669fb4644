package dialect

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/fernandezvara/ormkit/convert"
)

// Postgres returns the PostgreSQL provider.
func Postgres() *Base {
	b := New(Options{
		Name: "postgres",
		Bun:  pgdialect.New(),
		Placeholder: func(n int) string {
			return "$" + strconv.Itoa(n)
		},
		Conflict: func(insertSQL string, c Conflict) (string, error) {
			if c != ConflictIgnore {
				return "", fmt.Errorf("%w: postgres needs a conflict target to replace", ErrUnsupported)
			}
			if i := strings.LastIndex(strings.ToUpper(insertSQL), " RETURNING "); i >= 0 {
				return insertSQL[:i] + " ON CONFLICT DO NOTHING" + insertSQL[i:], nil
			}
			return insertSQL + " ON CONFLICT DO NOTHING", nil
		},
		AutoIncrement: func(columnType string) string {
			if strings.EqualFold(columnType, "INTEGER") || strings.EqualFold(columnType, "SMALLINT") {
				return "SERIAL PRIMARY KEY"
			}
			return "BIGSERIAL PRIMARY KEY"
		},
		Computed: func(expr string, _ bool) string {
			return "GENERATED ALWAYS AS (" + expr + ") STORED"
		},
		Variables: map[string]string{
			"{SYSTEM_UTC}":  "(now() at time zone 'utc')",
			"{SYSTEM_DATE}": "CURRENT_DATE",
			"{NOW}":         "now()",
			"{UUID}":        "gen_random_uuid()",
			"{MAX_TEXT}":    "TEXT",
		},
		UTC: true,
	})

	reg := b.Converters()
	reg.RegisterKind(reflect.String, &convert.StringConverter{Column: convert.ColumnType{Name: "VARCHAR", Length: 255}})
	reg.RegisterKind(reflect.Float32, &convert.FloatConverter{Column: convert.ColumnType{Name: "REAL"}})
	reg.RegisterKind(reflect.Float64, &convert.FloatConverter{Column: convert.ColumnType{Name: "DOUBLE PRECISION"}})
	reg.Register(reflect.TypeFor[[]byte](), &convert.BytesConverter{Column: convert.ColumnType{Name: "BYTEA"}})
	reg.Register(reflect.TypeFor[time.Time](), &convert.TimeConverter{Column: convert.ColumnType{Name: "TIMESTAMPTZ"}})
	reg.Register(reflect.TypeFor[uuid.UUID](), &convert.UUIDConverter{Column: convert.ColumnType{Name: "UUID"}})
	reg.Register(reflect.TypeFor[decimal.Decimal](), &convert.DecimalConverter{Column: convert.ColumnType{Name: "NUMERIC", Precision: 38, Scale: 8}})
	reg.SetFallback(&convert.SerializedConverter{Column: convert.ColumnType{Name: "JSONB"}})

	convert.Register[[]string](reg, &ArrayConverter{Column: convert.ColumnType{Name: "TEXT[]", Fixed: true}})
	convert.Register[[]int64](reg, &ArrayConverter{Column: convert.ColumnType{Name: "BIGINT[]", Fixed: true}})
	convert.Register[[]float64](reg, &ArrayConverter{Column: convert.ColumnType{Name: "DOUBLE PRECISION[]", Fixed: true}})
	convert.Register[[]bool](reg, &ArrayConverter{Column: convert.ColumnType{Name: "BOOLEAN[]", Fixed: true}})
	return b
}

// ArrayConverter maps Go slices to PostgreSQL arrays through lib/pq.
type ArrayConverter struct {
	convert.Base
	Column convert.ColumnType
}

func (c *ArrayConverter) ColumnDefinition(spec convert.ColumnSpec) string { return c.Column.Render(spec) }

func (c *ArrayConverter) QuoteValue(value any, t reflect.Type) string {
	v, err := c.ToDBValue(t, value)
	if err != nil || v == nil {
		return c.Env().Null
	}
	return convert.Literal(c.Env(), v)
}

func (c *ArrayConverter) InitParameter(p *convert.Parameter, _ reflect.Type) {
	p.DbType = convert.DbTypeObject
}

func (c *ArrayConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	return pq.Array(value).Value()
}

func (c *ArrayConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	ptr := reflect.New(t)
	if err := pq.Array(ptr.Interface()).Scan(value); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", convert.ErrUnsupported, t, err)
	}
	return ptr.Elem().Interface(), nil
}

func (c *ArrayConverter) GetValue(row convert.RowReader, column int, t reflect.Type) (any, error) {
	v, err := row.Value(column)
	if err != nil {
		return nil, err
	}
	return c.FromDBValue(t, v)
}
