// Package convert maps Go values to and from their database representation.
//
// Every dialect owns a Registry holding one Converter per Go type. A converter
// knows the column definition used for table creation, how to render a value
// as a SQL literal, how to tag a bind parameter and how to move a value across
// the driver boundary in both directions.
package convert

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrUnsupported is returned when a value cannot be converted to the requested type.
var ErrUnsupported = errors.New("convert: unsupported conversion")

// DbType is the database type tag carried by a bind parameter.
type DbType int

const (
	DbTypeUnknown DbType = iota
	DbTypeString
	DbTypeFixedString
	DbTypeBoolean
	DbTypeByte
	DbTypeInt16
	DbTypeInt32
	DbTypeInt64
	DbTypeUInt16
	DbTypeUInt32
	DbTypeUInt64
	DbTypeSingle
	DbTypeDouble
	DbTypeDecimal
	DbTypeDateTime
	DbTypeTime
	DbTypeGuid
	DbTypeBinary
	DbTypeObject
)

var dbTypeNames = map[DbType]string{
	DbTypeUnknown:     "unknown",
	DbTypeString:      "string",
	DbTypeFixedString: "fixed_string",
	DbTypeBoolean:     "boolean",
	DbTypeByte:        "byte",
	DbTypeInt16:       "int16",
	DbTypeInt32:       "int32",
	DbTypeInt64:       "int64",
	DbTypeUInt16:      "uint16",
	DbTypeUInt32:      "uint32",
	DbTypeUInt64:      "uint64",
	DbTypeSingle:      "single",
	DbTypeDouble:      "double",
	DbTypeDecimal:     "decimal",
	DbTypeDateTime:    "datetime",
	DbTypeTime:        "time",
	DbTypeGuid:        "guid",
	DbTypeBinary:      "binary",
	DbTypeObject:      "object",
}

func (t DbType) String() string {
	if s, ok := dbTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DbType(%d)", int(t))
}

// Parameter is a bind parameter prepared for a command.
type Parameter struct {
	Name   string
	Value  any
	DbType DbType
	Size   int
}

// Arg returns the parameter in the form database/sql expects. Named
// parameters are only produced for dialects binding by name.
func (p Parameter) Arg(named bool) any {
	if !named || p.Name == "" {
		return p.Value
	}
	return sql.Named(p.Name, p.Value)
}

// ColumnSpec carries the size hints of a column definition.
type ColumnSpec struct {
	Length    int
	Precision int
	Scale     int
}

// LiteralAppender renders SQL literals. bun's schema.Dialect satisfies it.
type LiteralAppender interface {
	AppendString(b []byte, s string) []byte
	AppendBytes(b []byte, bs []byte) []byte
	AppendTime(b []byte, tm time.Time) []byte
}

// Env is the dialect environment shared by every converter of a registry.
type Env struct {
	Literals   LiteralAppender
	True       string
	False      string
	Null       string
	Serializer Serializer
	// UTC stores time values in UTC.
	UTC bool
}

// Converter translates between one Go type and its database representation.
type Converter interface {
	// ColumnDefinition returns the column type used in CREATE TABLE.
	ColumnDefinition(spec ColumnSpec) string
	// QuoteValue renders value as a SQL literal.
	QuoteValue(value any, fieldType reflect.Type) string
	// InitParameter sets the database type tag of p.
	InitParameter(p *Parameter, fieldType reflect.Type)
	// ToDBValue converts a Go value into a bindable value.
	ToDBValue(fieldType reflect.Type, value any) (any, error)
	// FromDBValue converts a value scanned from the driver into fieldType.
	FromDBValue(fieldType reflect.Type, value any) (any, error)
	// GetValue reads column from row and converts it into fieldType.
	GetValue(row RowReader, column int, fieldType reflect.Type) (any, error)
}

// EnvSetter is implemented by converters that need the registry environment.
type EnvSetter interface {
	SetEnv(env *Env)
}

// Base carries the environment for converters embedding it.
type Base struct {
	env *Env
}

// SetEnv implements EnvSetter.
func (b *Base) SetEnv(env *Env) { b.env = env }

// Env returns the bound environment, falling back to ANSI defaults.
func (b *Base) Env() *Env {
	if b.env == nil {
		return defaultEnv
	}
	return b.env
}

func (b *Base) quoteString(s string) string {
	return string(b.Env().Literals.AppendString(nil, s))
}

var defaultEnv = &Env{
	Literals:   ansiLiterals{},
	True:       "TRUE",
	False:      "FALSE",
	Null:       "NULL",
	Serializer: JSONSerializer{},
}

// ansiLiterals renders literals without any vendor extension.
type ansiLiterals struct{}

func (ansiLiterals) AppendString(b []byte, s string) []byte {
	b = append(b, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b = append(b, '\'', '\'')
			continue
		}
		b = append(b, s[i])
	}
	return append(b, '\'')
}

func (ansiLiterals) AppendBytes(b []byte, bs []byte) []byte {
	const hex = "0123456789abcdef"
	b = append(b, "X'"...)
	for _, c := range bs {
		b = append(b, hex[c>>4], hex[c&0x0f])
	}
	return append(b, '\'')
}

func (ansiLiterals) AppendTime(b []byte, tm time.Time) []byte {
	b = append(b, '\'')
	b = tm.AppendFormat(b, "2006-01-02 15:04:05.999999-07:00")
	return append(b, '\'')
}

// readValue is the shared GetValue implementation.
func readValue(c Converter, row RowReader, column int, fieldType reflect.Type) (any, error) {
	v, err := row.Value(column)
	if err != nil {
		return nil, err
	}
	return c.FromDBValue(fieldType, v)
}

var (
	valuerType  = reflect.TypeFor[driver.Valuer]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

// unwrapValuer resolves driver.Valuer inputs such as sql.NullString.
func unwrapValuer(value any) (any, error) {
	v, ok := value.(driver.Valuer)
	if !ok {
		return value, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	return v.Value()
}
