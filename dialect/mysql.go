package dialect

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun/dialect/mysqldialect"

	"github.com/fernandezvara/ormkit/convert"
)

// mysqlMaxRows is the documented way to express an unbounded LIMIT.
const mysqlMaxRows = "18446744073709551615"

// MySQL returns the MySQL provider.
func MySQL() *Base {
	b := New(Options{
		Name:  "mysql",
		Bun:   mysqldialect.New(),
		True:  "1",
		False: "0",
		Concat: func(args []string) string {
			return "CONCAT(" + strings.Join(args, ", ") + ")"
		},
		Limit: func(offset, rows *int) string {
			switch {
			case rows != nil && offset != nil:
				return "LIMIT " + strconv.Itoa(*offset) + ", " + strconv.Itoa(*rows)
			case rows != nil:
				return "LIMIT " + strconv.Itoa(*rows)
			case offset != nil:
				return "LIMIT " + strconv.Itoa(*offset) + ", " + mysqlMaxRows
			}
			return ""
		},
		Conflict: func(insertSQL string, c Conflict) (string, error) {
			if c == ConflictReplace {
				return replaceInsertKeyword(insertSQL, "REPLACE")
			}
			return replaceInsertKeyword(insertSQL, "INSERT IGNORE")
		},
		AutoIncrement: func(columnType string) string {
			return columnType + " AUTO_INCREMENT PRIMARY KEY"
		},
		Variables: map[string]string{
			"{SYSTEM_UTC}":  "UTC_TIMESTAMP()",
			"{SYSTEM_DATE}": "CURRENT_DATE()",
			"{NOW}":         "NOW()",
			"{UUID}":        "UUID()",
			"{MAX_TEXT}":    "LONGTEXT",
		},
		UTC: true,
	})

	reg := b.Converters()
	reg.RegisterKind(reflect.Bool, &convert.BoolConverter{AsInt: true, Column: convert.ColumnType{Name: "TINYINT", Length: 1}})
	reg.RegisterKind(reflect.Float64, &convert.FloatConverter{Column: convert.ColumnType{Name: "DOUBLE"}})
	reg.RegisterKind(reflect.Float32, &convert.FloatConverter{Column: convert.ColumnType{Name: "FLOAT"}})
	reg.Register(reflect.TypeFor[time.Time](), &convert.TimeConverter{Column: convert.ColumnType{Name: "DATETIME", Length: 6}})
	reg.Register(reflect.TypeFor[[]byte](), &convert.BytesConverter{Column: convert.ColumnType{Name: "LONGBLOB"}})
	reg.SetFallback(&convert.SerializedConverter{Column: convert.ColumnType{Name: "JSON"}})
	return b
}
