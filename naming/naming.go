// Package naming maps logical schema, table and column names to the physical
// names used in SQL.
//
// Strategies compose: most implementations wrap an inner Strategy and adjust
// its output, so a pluralized, prefixed, length-restricted scheme is
//
//	naming.MaxLength{Max: 63, Inner: naming.Prefix{Table: "app_", Inner: naming.Pluralized{Inner: naming.SnakeCase{}}}}
package naming

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Strategy maps logical names to physical names.
type Strategy interface {
	SchemaName(name string) string
	TableName(name string) string
	ColumnName(name string) string
	// ApplyNameRestrictions enforces engine limits such as identifier length.
	ApplyNameRestrictions(name string) string
}

// Base leaves every name unchanged.
type Base struct{}

func (Base) SchemaName(name string) string            { return name }
func (Base) TableName(name string) string             { return name }
func (Base) ColumnName(name string) string            { return name }
func (Base) ApplyNameRestrictions(name string) string { return name }

// SnakeCase converts Go identifiers to snake_case: CreatedAt -> created_at,
// UserID -> user_id.
type SnakeCase struct{}

func (SnakeCase) SchemaName(name string) string            { return Snake(name) }
func (SnakeCase) TableName(name string) string             { return Snake(name) }
func (SnakeCase) ColumnName(name string) string            { return Snake(name) }
func (SnakeCase) ApplyNameRestrictions(name string) string { return name }

// Snake returns the snake_case form of a Go identifier.
func Snake(name string) string {
	if name == "" {
		return name
	}
	return inflect.Underscore(foldAcronyms(name))
}

// foldAcronyms lowers the tail of upper-case runs so the word splitter sees
// one word per acronym: HTTPServer -> HttpServer.
func foldAcronyms(s string) string {
	runes := []rune(s)
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = r
		if i == 0 || !unicode.IsUpper(r) || !unicode.IsUpper(runes[i-1]) {
			continue
		}
		if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			continue
		}
		out[i] = unicode.ToLower(r)
	}
	return string(out)
}

// Pluralized pluralizes table names produced by Inner.
type Pluralized struct {
	Inner Strategy
}

func (p Pluralized) inner() Strategy { return orBase(p.Inner) }

func (p Pluralized) SchemaName(name string) string { return p.inner().SchemaName(name) }
func (p Pluralized) TableName(name string) string {
	return inflect.Pluralize(p.inner().TableName(name))
}
func (p Pluralized) ColumnName(name string) string { return p.inner().ColumnName(name) }
func (p Pluralized) ApplyNameRestrictions(name string) string {
	return p.inner().ApplyNameRestrictions(name)
}

// Prefix prepends fixed prefixes to table and column names.
type Prefix struct {
	Inner  Strategy
	Table  string
	Column string
}

func (p Prefix) inner() Strategy { return orBase(p.Inner) }

func (p Prefix) SchemaName(name string) string { return p.inner().SchemaName(name) }
func (p Prefix) TableName(name string) string  { return p.Table + p.inner().TableName(name) }
func (p Prefix) ColumnName(name string) string { return p.Column + p.inner().ColumnName(name) }
func (p Prefix) ApplyNameRestrictions(name string) string {
	return p.inner().ApplyNameRestrictions(name)
}

var upper = cases.Upper(language.Und)

// UpperCase upper-cases every name produced by Inner.
type UpperCase struct {
	Inner Strategy
}

func (u UpperCase) inner() Strategy { return orBase(u.Inner) }

func (u UpperCase) SchemaName(name string) string { return upper.String(u.inner().SchemaName(name)) }
func (u UpperCase) TableName(name string) string  { return upper.String(u.inner().TableName(name)) }
func (u UpperCase) ColumnName(name string) string { return upper.String(u.inner().ColumnName(name)) }
func (u UpperCase) ApplyNameRestrictions(name string) string {
	return u.inner().ApplyNameRestrictions(name)
}

// Alias overrides individual table and column names; everything else goes
// through Inner. Keys are logical names.
type Alias struct {
	Inner   Strategy
	Tables  map[string]string
	Columns map[string]string
}

func (a Alias) inner() Strategy { return orBase(a.Inner) }

func (a Alias) SchemaName(name string) string { return a.inner().SchemaName(name) }

func (a Alias) TableName(name string) string {
	if v, ok := a.Tables[name]; ok {
		return v
	}
	return a.inner().TableName(name)
}

func (a Alias) ColumnName(name string) string {
	if v, ok := a.Columns[name]; ok {
		return v
	}
	return a.inner().ColumnName(name)
}

func (a Alias) ApplyNameRestrictions(name string) string {
	return a.inner().ApplyNameRestrictions(name)
}

// MaxLength truncates identifiers to Max runes.
type MaxLength struct {
	Inner Strategy
	Max   int
}

func (m MaxLength) inner() Strategy { return orBase(m.Inner) }

func (m MaxLength) SchemaName(name string) string { return m.inner().SchemaName(name) }
func (m MaxLength) TableName(name string) string  { return m.inner().TableName(name) }
func (m MaxLength) ColumnName(name string) string { return m.inner().ColumnName(name) }

func (m MaxLength) ApplyNameRestrictions(name string) string {
	name = m.inner().ApplyNameRestrictions(name)
	if m.Max <= 0 || utf8.RuneCountInString(name) <= m.Max {
		return name
	}
	return string([]rune(name)[:m.Max])
}

func orBase(s Strategy) Strategy {
	if s == nil {
		return Base{}
	}
	return s
}

// Table returns the restricted physical table name.
func Table(s Strategy, name string) string {
	return s.ApplyNameRestrictions(s.TableName(name))
}

// Column returns the restricted physical column name.
func Column(s Strategy, name string) string {
	return s.ApplyNameRestrictions(s.ColumnName(name))
}

// Schema returns the restricted physical schema name.
func Schema(s Strategy, name string) string {
	if name == "" {
		return ""
	}
	return s.ApplyNameRestrictions(s.SchemaName(name))
}

// ByName returns a strategy for a configuration value: "", "base", "snake",
// "snake_plural" or "upper".
func ByName(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "base", "identity":
		return Base{}, nil
	case "snake":
		return SnakeCase{}, nil
	case "snake_plural", "plural":
		return Pluralized{Inner: SnakeCase{}}, nil
	case "upper":
		return UpperCase{Inner: SnakeCase{}}, nil
	}
	return nil, fmt.Errorf("naming: unknown strategy %q", name)
}
