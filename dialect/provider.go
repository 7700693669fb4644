// Package dialect renders dialect-correct SQL fragments for mapped models.
//
// A Provider bundles a naming strategy, a type converter registry and the
// fragment generators of one database engine. Base implements the whole
// contract from a table of Options; Postgres, SQLite and MySQL are the
// reference configurations, each backed by the matching bun dialect for
// literal rendering and feature flags.
package dialect

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/fernandezvara/ormkit/convert"
	"github.com/fernandezvara/ormkit/meta"
	"github.com/fernandezvara/ormkit/naming"
)

// ErrUnsupported is returned for features the dialect cannot express.
var ErrUnsupported = errors.New("dialect: unsupported feature")

// Conflict selects the INSERT conflict behaviour.
type Conflict int

const (
	ConflictNone Conflict = iota
	ConflictIgnore
	ConflictReplace
)

// Provider is the per-engine SQL fragment contract.
type Provider interface {
	Name() string
	Bun() schema.Dialect
	HasFeature(f feature.Feature) bool

	Naming() naming.Strategy
	SetNaming(s naming.Strategy)
	Converters() *convert.Registry
	Converter(t reflect.Type) convert.Converter
	FieldConverter(f *meta.FieldDefinition) convert.Converter
	ToDB(f *meta.FieldDefinition, value any) (any, error)
	FromDB(f *meta.FieldDefinition, value any) (any, error)

	QuoteName(name string) string
	QuoteTable(def *meta.ModelDefinition) string
	QuoteColumn(f *meta.FieldDefinition) string
	QuoteValue(value any, t reflect.Type) string
	ParamName(name string) string
	Placeholder(n int) string
	BindNamed(query string, args map[string]any) (string, []any, error)

	BoolLiteral(v bool) string
	SQLCurrency(expr, symbol string) string
	SQLCast(expr string, t reflect.Type) string
	SQLLimit(offset, rows *int) string
	SQLConcat(args ...string) string
	ResolveVariable(name string) (string, bool)
	ExpandVariables(fragment string) string
	SQLConflict(insertSQL string, c Conflict) (string, error)

	ColumnDefinition(f *meta.FieldDefinition) string
	CreateTableSQL(def *meta.ModelDefinition, ifNotExists bool) (string, error)
	DropTableSQL(def *meta.ModelDefinition) string
	CreateIndexSQL(def *meta.ModelDefinition) []string
	SelectColumns(def *meta.ModelDefinition) string
	InsertSQL(def *meta.ModelDefinition) (string, []*meta.FieldDefinition)
	UpdateByPKSQL(def *meta.ModelDefinition) (string, []*meta.FieldDefinition)
	DeleteByPKSQL(def *meta.ModelDefinition) string
	SelectByPKSQL(def *meta.ModelDefinition) string
}

// Options configures a Base provider.
type Options struct {
	Name string
	Bun  schema.Dialect

	// Placeholder renders the n-th (1-based) positional parameter.
	Placeholder func(n int) string
	// ParamPrefix marks named parameters in query text, "@" when empty.
	ParamPrefix string

	True, False string
	// Concat joins expressions; "||" joining is used when nil.
	Concat func(args []string) string
	// Limit renders the paging clause; LIMIT/OFFSET is used when nil.
	Limit func(offset, rows *int) string
	// Conflict rewrites an INSERT for the given conflict behaviour.
	Conflict func(insertSQL string, c Conflict) (string, error)

	// AutoIncrement renders the column definition of an auto-increment key
	// from the converter column type.
	AutoIncrement func(columnType string) string
	// Computed renders a generated column clause.
	Computed func(expr string, persisted bool) string

	Variables  map[string]string
	Naming     naming.Strategy
	UTC        bool
	Serializer convert.Serializer
}

type strategyBox struct{ s naming.Strategy }

// Base implements Provider from Options.
type Base struct {
	opts       Options
	naming     atomic.Pointer[strategyBox]
	converters *convert.Registry
}

// New builds a provider. Converter registrations are done by the caller
// through Converters before the provider is shared.
func New(opts Options) *Base {
	if opts.ParamPrefix == "" {
		opts.ParamPrefix = "@"
	}
	if opts.Placeholder == nil {
		opts.Placeholder = func(int) string { return "?" }
	}
	if opts.True == "" {
		opts.True, opts.False = "TRUE", "FALSE"
	}
	if opts.Computed == nil {
		opts.Computed = func(expr string, persisted bool) string {
			if persisted {
				return "GENERATED ALWAYS AS (" + expr + ") STORED"
			}
			return "GENERATED ALWAYS AS (" + expr + ") VIRTUAL"
		}
	}
	b := &Base{opts: opts}
	env := &convert.Env{
		True:       opts.True,
		False:      opts.False,
		Null:       "NULL",
		UTC:        opts.UTC,
		Serializer: opts.Serializer,
	}
	if opts.Bun != nil {
		env.Literals = opts.Bun
	}
	b.converters = convert.NewRegistry(env)
	b.SetNaming(opts.Naming)
	return b
}

func (b *Base) Name() string { return b.opts.Name }

// Bun returns the bun dialect backing literal rendering, nil for none.
func (b *Base) Bun() schema.Dialect { return b.opts.Bun }

func (b *Base) HasFeature(f feature.Feature) bool {
	return b.opts.Bun != nil && b.opts.Bun.Features().Has(f)
}

func (b *Base) Naming() naming.Strategy { return b.naming.Load().s }

// SetNaming swaps the naming strategy; nil restores the identity strategy.
func (b *Base) SetNaming(s naming.Strategy) {
	if s == nil {
		s = naming.Base{}
	}
	b.naming.Store(&strategyBox{s: s})
}

func (b *Base) Converters() *convert.Registry { return b.converters }

func (b *Base) Converter(t reflect.Type) convert.Converter { return b.converters.Lookup(t) }

// FieldConverter resolves the converter for a field, honouring enum storage.
func (b *Base) FieldConverter(f *meta.FieldDefinition) convert.Converter {
	switch f.EnumKind {
	case meta.EnumAsInt:
		return b.converters.Enum(convert.EnumInt)
	case meta.EnumAsChar:
		return b.converters.Enum(convert.EnumChar)
	case meta.EnumAsString:
		return b.converters.Enum(convert.EnumString)
	}
	return b.converters.Lookup(f.FieldType)
}

// ToDB converts a field value into a bindable value.
func (b *Base) ToDB(f *meta.FieldDefinition, value any) (any, error) {
	return b.converters.ToDBWith(b.FieldConverter(f), f.FieldType, value)
}

// FromDB converts a scanned value into the field type.
func (b *Base) FromDB(f *meta.FieldDefinition, value any) (any, error) {
	return b.converters.FromDBWith(b.FieldConverter(f), f.FieldType, value)
}

func (b *Base) quoteChar() byte {
	if b.opts.Bun != nil {
		return b.opts.Bun.IdentQuote()
	}
	return '"'
}

// QuoteName quotes one identifier, doubling embedded quote characters.
func (b *Base) QuoteName(name string) string {
	q := string(b.quoteChar())
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// QuoteTable returns the schema-qualified quoted table name.
func (b *Base) QuoteTable(def *meta.ModelDefinition) string {
	if def.Schema != "" {
		return b.QuoteName(def.Schema) + "." + b.QuoteName(def.TableName)
	}
	return b.QuoteName(def.TableName)
}

func (b *Base) QuoteColumn(f *meta.FieldDefinition) string { return b.QuoteName(f.ColumnName) }

func (b *Base) QuoteValue(value any, t reflect.Type) string {
	if t == nil {
		if value == nil {
			return "NULL"
		}
		t = reflect.TypeOf(value)
	}
	return b.converters.Quote(value, t)
}

var paramUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ParamName returns the named-parameter token for name as understood by
// BindNamed.
func (b *Base) ParamName(name string) string {
	return b.opts.ParamPrefix + paramUnsafe.ReplaceAllString(name, "_")
}

func (b *Base) Placeholder(n int) string { return b.opts.Placeholder(n) }

func (b *Base) BoolLiteral(v bool) string {
	if v {
		return b.opts.True
	}
	return b.opts.False
}

func (b *Base) SQLConcat(args ...string) string {
	if b.opts.Concat != nil {
		return b.opts.Concat(args)
	}
	return strings.Join(args, " || ")
}

func (b *Base) SQLCurrency(expr, symbol string) string {
	return b.SQLConcat(b.QuoteValue(symbol, nil), "CAST("+expr+" AS DECIMAL(38,2))")
}

// SQLCast casts expr to the column type registered for t.
func (b *Base) SQLCast(expr string, t reflect.Type) string {
	return "CAST(" + expr + " AS " + b.Converter(t).ColumnDefinition(convert.ColumnSpec{}) + ")"
}

// SQLLimit renders the paging clause, or "" when both are nil.
func (b *Base) SQLLimit(offset, rows *int) string {
	if b.opts.Limit != nil {
		return b.opts.Limit(offset, rows)
	}
	switch {
	case rows != nil && offset != nil:
		return "LIMIT " + strconv.Itoa(*rows) + " OFFSET " + strconv.Itoa(*offset)
	case rows != nil:
		return "LIMIT " + strconv.Itoa(*rows)
	case offset != nil:
		return "OFFSET " + strconv.Itoa(*offset)
	}
	return ""
}

// ResolveVariable maps a magic variable such as {SYSTEM_UTC} to SQL. The
// braces are optional.
func (b *Base) ResolveVariable(name string) (string, bool) {
	key := strings.ToUpper(strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}"))
	v, ok := b.opts.Variables["{"+key+"}"]
	return v, ok
}

var variablePattern = regexp.MustCompile(`\{[A-Za-z_]+\}`)

// ExpandVariables replaces every known magic variable in fragment.
func (b *Base) ExpandVariables(fragment string) string {
	return variablePattern.ReplaceAllStringFunc(fragment, func(m string) string {
		if v, ok := b.ResolveVariable(m); ok {
			return v
		}
		return m
	})
}

// SQLConflict rewrites the INSERT keyword of insertSQL.
func (b *Base) SQLConflict(insertSQL string, c Conflict) (string, error) {
	if c == ConflictNone {
		return insertSQL, nil
	}
	if b.opts.Conflict == nil {
		return "", fmt.Errorf("%w: %s conflict rewriting", ErrUnsupported, b.opts.Name)
	}
	return b.opts.Conflict(insertSQL, c)
}

// replaceInsertKeyword swaps the leading INSERT token, keeping any leading
// whitespace and comments before it.
func replaceInsertKeyword(insertSQL, with string) (string, error) {
	i := indexInsert(insertSQL)
	if i < 0 {
		return "", fmt.Errorf("dialect: not an INSERT statement: %.40q", insertSQL)
	}
	return insertSQL[:i] + with + insertSQL[i+len("INSERT"):], nil
}

func indexInsert(s string) int {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if len(trimmed) < len("INSERT") || !strings.EqualFold(trimmed[:len("INSERT")], "INSERT") {
		return -1
	}
	return len(s) - len(trimmed)
}
