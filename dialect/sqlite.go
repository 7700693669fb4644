package dialect

import (
	"reflect"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/fernandezvara/ormkit/convert"
)

// SQLite returns the SQLite provider. Booleans are stored as 0/1 and
// decimals as text to keep their precision.
func SQLite() *Base {
	b := New(Options{
		Name:  "sqlite",
		Bun:   sqlitedialect.New(),
		True:  "1",
		False: "0",
		Limit: func(offset, rows *int) string {
			switch {
			case rows != nil && offset != nil:
				return "LIMIT " + strconv.Itoa(*rows) + " OFFSET " + strconv.Itoa(*offset)
			case rows != nil:
				return "LIMIT " + strconv.Itoa(*rows)
			case offset != nil:
				return "LIMIT -1 OFFSET " + strconv.Itoa(*offset)
			}
			return ""
		},
		Conflict: func(insertSQL string, c Conflict) (string, error) {
			if c == ConflictReplace {
				return replaceInsertKeyword(insertSQL, "INSERT OR REPLACE")
			}
			return replaceInsertKeyword(insertSQL, "INSERT OR IGNORE")
		},
		AutoIncrement: func(string) string {
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		},
		Variables: map[string]string{
			"{SYSTEM_UTC}":  "CURRENT_TIMESTAMP",
			"{SYSTEM_DATE}": "CURRENT_DATE",
			"{NOW}":         "datetime('now', 'localtime')",
			"{UUID}":        "lower(hex(randomblob(16)))",
			"{MAX_TEXT}":    "TEXT",
		},
		UTC: true,
	})

	reg := b.Converters()
	reg.RegisterKind(reflect.String, &convert.StringConverter{Column: convert.ColumnType{Name: "TEXT", Fixed: true}})
	reg.RegisterKind(reflect.Bool, &convert.BoolConverter{AsInt: true, Column: convert.ColumnType{Name: "INTEGER"}})
	for _, k := range []reflect.Kind{reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64} {
		reg.RegisterKind(k, &convert.IntConverter{Column: convert.ColumnType{Name: "INTEGER"}})
	}
	for _, k := range []reflect.Kind{reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64} {
		reg.RegisterKind(k, &convert.UintConverter{Column: convert.ColumnType{Name: "INTEGER"}})
	}
	reg.RegisterKind(reflect.Float32, &convert.FloatConverter{Column: convert.ColumnType{Name: "REAL"}})
	reg.RegisterKind(reflect.Float64, &convert.FloatConverter{Column: convert.ColumnType{Name: "REAL"}})
	reg.Register(reflect.TypeFor[decimal.Decimal](), &convert.DecimalConverter{Column: convert.ColumnType{Name: "TEXT", Fixed: true}})
	reg.Register(reflect.TypeFor[time.Time](), &convert.TimeConverter{Column: convert.ColumnType{Name: "DATETIME"}})
	reg.Register(reflect.TypeFor[time.Duration](), &convert.DurationConverter{Column: convert.ColumnType{Name: "INTEGER"}})
	reg.Register(reflect.TypeFor[[]byte](), &convert.BytesConverter{Column: convert.ColumnType{Name: "BLOB"}})
	reg.SetEnum(convert.EnumInt, &convert.EnumConverter{Storage: convert.EnumInt, Column: convert.ColumnType{Name: "INTEGER"}})
	reg.SetEnum(convert.EnumString, &convert.EnumConverter{Storage: convert.EnumString, Column: convert.ColumnType{Name: "TEXT", Fixed: true}})
	return b
}
