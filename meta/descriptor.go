package meta

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Table marks table-level metadata when embedded in a model:
//
//	type User struct {
//		meta.Table `orm:"table:users,schema:app,index:LastName|FirstName"`
//		ID int64   `orm:"pk,autoincrement"`
//	}
type Table struct{}

var tableType = reflect.TypeFor[Table]()

// TypeDescriptor is the capability set the registry consumes: table-level
// declarations plus an ordered field list with per-field flags.
type TypeDescriptor struct {
	Type    reflect.Type
	Name    string
	Table   string
	Schema  string
	Alias   string
	Indexes []IndexDescriptor
	Uniques []IndexDescriptor
	Fields  []FieldDescriptor
}

// IndexDescriptor names the fields of a composite index or unique constraint.
type IndexDescriptor struct {
	Name   string
	Fields []string
}

// FieldDescriptor is one declared field with its annotations.
type FieldDescriptor struct {
	Name  string
	Type  reflect.Type
	Index []int

	Alias         string
	PrimaryKey    bool
	AutoIncrement bool
	AutoID        bool
	Indexed       bool
	Unique        bool
	Clustered     bool
	Computed      bool
	Persisted     bool
	Ignored       bool
	Reference     bool
	Null          bool
	NotNull       bool

	Default    string
	Check      string
	Compute    string
	Select     string
	Insert     string
	Update     string
	ColumnType string
	ForeignKey string
	OnDelete   string
	OnUpdate   string
	Enum       string

	Order  int
	Length int
	Scale  int
}

// Introspector produces a TypeDescriptor for a struct type.
type Introspector interface {
	Describe(t reflect.Type) (*TypeDescriptor, error)
}

// IntrospectorFunc adapts a function to Introspector.
type IntrospectorFunc func(t reflect.Type) (*TypeDescriptor, error)

func (f IntrospectorFunc) Describe(t reflect.Type) (*TypeDescriptor, error) { return f(t) }

// TagIntrospector reads `orm:"..."` struct tags. Embedded structs without a
// tag are flattened into the parent.
type TagIntrospector struct {
	// Key is the struct tag key, "orm" when empty.
	Key string
}

func (ti TagIntrospector) key() string {
	if ti.Key == "" {
		return "orm"
	}
	return ti.Key
}

func (ti TagIntrospector) Describe(t reflect.Type) (*TypeDescriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, configErr(t.String(), "", "%s is not a struct", t)
	}
	d := &TypeDescriptor{Type: t, Name: t.Name()}
	if err := ti.walk(d, t, nil); err != nil {
		return nil, err
	}
	return d, nil
}

var timeType = reflect.TypeFor[time.Time]()

func (ti TagIntrospector) walk(d *TypeDescriptor, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		path := append(append([]int(nil), index...), i)
		tag, hasTag := sf.Tag.Lookup(ti.key())

		if sf.Anonymous && sf.Type == tableType {
			if err := parseTableTag(d, tag); err != nil {
				return err
			}
			continue
		}
		if sf.Anonymous && !hasTag {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct && et != timeType {
				if err := ti.walk(d, et, path); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		fd := FieldDescriptor{Name: sf.Name, Type: sf.Type, Index: path}
		if err := parseFieldTag(&fd, tag); err != nil {
			return configErr(d.Name, sf.Name, "%v", err)
		}
		d.Fields = append(d.Fields, fd)
	}
	return nil
}

var fieldFlags = map[string]func(*FieldDescriptor){
	"pk":            func(f *FieldDescriptor) { f.PrimaryKey = true },
	"autoincrement": func(f *FieldDescriptor) { f.AutoIncrement = true },
	"autoid":        func(f *FieldDescriptor) { f.AutoID = true },
	"index":         func(f *FieldDescriptor) { f.Indexed = true },
	"unique":        func(f *FieldDescriptor) { f.Unique = true },
	"clustered":     func(f *FieldDescriptor) { f.Clustered = true },
	"computed":      func(f *FieldDescriptor) { f.Computed = true },
	"persisted":     func(f *FieldDescriptor) { f.Persisted = true },
	"ignore":        func(f *FieldDescriptor) { f.Ignored = true },
	"-":             func(f *FieldDescriptor) { f.Ignored = true },
	"ref":           func(f *FieldDescriptor) { f.Reference = true },
	"null":          func(f *FieldDescriptor) { f.Null = true },
	"notnull":       func(f *FieldDescriptor) { f.NotNull = true },
}

func parseFieldTag(fd *FieldDescriptor, tag string) error {
	if tag == "-" {
		fd.Ignored = true
		return nil
	}
	for i, part := range splitTag(tag) {
		key, value, hasValue := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if !hasValue {
			if set, ok := fieldFlags[strings.ToLower(key)]; ok {
				set(fd)
				continue
			}
			if i == 0 && key != "" {
				fd.Alias = key
				continue
			}
			if key == "" {
				continue
			}
			return fmt.Errorf("unknown option %q", key)
		}
		value = strings.TrimSpace(value)
		var err error
		switch strings.ToLower(key) {
		case "alias":
			fd.Alias = value
		case "default":
			fd.Default = value
		case "check":
			fd.Check = value
		case "compute":
			fd.Compute = value
		case "select":
			fd.Select = value
		case "insert":
			fd.Insert = value
		case "update":
			fd.Update = value
		case "type":
			fd.ColumnType = value
		case "fk":
			fd.ForeignKey = value
		case "ondelete":
			fd.OnDelete = strings.ToUpper(value)
		case "onupdate":
			fd.OnUpdate = strings.ToUpper(value)
		case "enum":
			fd.Enum = strings.ToLower(value)
		case "order":
			fd.Order, err = strconv.Atoi(value)
		case "length":
			fd.Length, err = strconv.Atoi(value)
		case "scale":
			fd.Scale, err = strconv.Atoi(value)
		default:
			return fmt.Errorf("unknown option %q", key)
		}
		if err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
	}
	return nil
}

func parseTableTag(d *TypeDescriptor, tag string) error {
	for _, part := range splitTag(tag) {
		key, value, _ := strings.Cut(part, ":")
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "table":
			d.Table = value
		case "schema":
			d.Schema = value
		case "alias":
			d.Alias = value
		case "index":
			d.Indexes = append(d.Indexes, parseIndex(value))
		case "unique":
			d.Uniques = append(d.Uniques, parseIndex(value))
		case "":
		default:
			return configErr(d.Name, "", "unknown table option %q", key)
		}
	}
	return nil
}

// parseIndex reads "name=A|B" or "A|B".
func parseIndex(value string) IndexDescriptor {
	var idx IndexDescriptor
	if name, fields, ok := strings.Cut(value, "="); ok {
		idx.Name = strings.TrimSpace(name)
		value = fields
	}
	for _, f := range strings.Split(value, "|") {
		if f = strings.TrimSpace(f); f != "" {
			idx.Fields = append(idx.Fields, f)
		}
	}
	return idx
}

// splitTag splits on commas that are outside parentheses and quotes, so
// expressions such as compute:COALESCE(a, b) stay intact.
func splitTag(tag string) []string {
	if tag == "" {
		return nil
	}
	var (
		parts []string
		depth int
		quote bool
		start int
	)
	for i := 0; i < len(tag); i++ {
		switch c := tag[i]; {
		case c == '\'':
			quote = !quote
		case quote:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(tag[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(tag[start:]))
}
