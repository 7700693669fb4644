package meta

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ModelDefinition is the derived metadata of one mapped struct type. It is
// immutable once published by the registry.
type ModelDefinition struct {
	Name      string
	Alias     string
	Schema    string
	TableName string
	ModelType reflect.Type

	Fields            []*FieldDefinition
	IgnoredFields     []*FieldDefinition
	CompositeIndexes  []CompositeIndex
	UniqueConstraints []UniqueConstraint

	FieldDefinitionsArray       []*FieldDefinition
	FieldDefinitionsWithAliases []*FieldDefinition
	ReferenceFieldNames         map[string]struct{}
	AutoIDFields                []*FieldDefinition

	primaryKey *FieldDefinition
	byName     map[string]*FieldDefinition
	byAlias    map[string]*FieldDefinition
	byColumn   map[string]*FieldDefinition
}

// CompositeIndex is a multi-column index declaration.
type CompositeIndex struct {
	Name   string
	Fields []string
	Unique bool
}

// UniqueConstraint is a multi-column uniqueness declaration.
type UniqueConstraint struct {
	Name   string
	Fields []string
}

// PrimaryKey returns the key field. Derivation guarantees there is exactly one.
func (m *ModelDefinition) PrimaryKey() *FieldDefinition { return m.primaryKey }

// ModelName returns the alias when set, the logical name otherwise.
func (m *ModelDefinition) ModelName() string {
	if m.Alias != "" {
		return m.Alias
	}
	return m.Name
}

// Field returns the mapped field with the given logical name or alias,
// matched case-insensitively.
func (m *ModelDefinition) Field(name string) (*FieldDefinition, error) {
	key := strings.ToLower(name)
	if f, ok := m.byName[key]; ok {
		return f, nil
	}
	if f, ok := m.byAlias[key]; ok {
		return f, nil
	}
	return nil, mappingErr(m.Name, name, "no such field")
}

// FieldByColumn returns the mapped field stored in the given physical column.
func (m *ModelDefinition) FieldByColumn(column string) (*FieldDefinition, bool) {
	f, ok := m.byColumn[strings.ToLower(column)]
	return f, ok
}

// IsReferenceField reports whether name is a reference navigation field.
func (m *ModelDefinition) IsReferenceField(name string) bool {
	_, ok := m.ReferenceFieldNames[name]
	return ok
}

// Columns returns the physical column names of the mapped fields.
func (m *ModelDefinition) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.ColumnName
	}
	return cols
}

// Equal reports whether two definitions describe the same structure.
func (m *ModelDefinition) Equal(o *ModelDefinition) bool {
	if m == o {
		return true
	}
	if m == nil || o == nil {
		return false
	}
	if m.Name != o.Name || m.Alias != o.Alias || m.Schema != o.Schema ||
		m.TableName != o.TableName || m.ModelType != o.ModelType {
		return false
	}
	if !fieldsEqual(m.Fields, o.Fields) || !fieldsEqual(m.IgnoredFields, o.IgnoredFields) {
		return false
	}
	if !reflect.DeepEqual(m.CompositeIndexes, o.CompositeIndexes) ||
		!reflect.DeepEqual(m.UniqueConstraints, o.UniqueConstraints) {
		return false
	}
	return m.primaryKey.Name == o.primaryKey.Name
}

func fieldsEqual(a, b []*FieldDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// FieldDefinition is the derived metadata of one field.
type FieldDefinition struct {
	Name        string
	Alias       string
	ColumnName  string
	FieldType   reflect.Type
	TreatAsType reflect.Type
	EnumKind    EnumKind

	IsNullable    bool
	IsPrimaryKey  bool
	AutoIncrement bool
	AutoID        bool
	IsIndexed     bool
	IsUnique      bool
	IsClustered   bool
	IsComputed    bool
	IsPersisted   bool
	IsReference   bool
	IsIgnored     bool

	DefaultValue          string
	CheckConstraint       string
	ComputeExpression     string
	CustomSelect          string
	CustomInsert          string
	CustomUpdate          string
	CustomFieldDefinition string

	ForeignKey     *ForeignKeyConstraint
	FieldReference *FieldReference

	Order       int
	FieldLength int
	Scale       int

	// Model is the owning definition.
	Model *ModelDefinition

	index []int
}

// StorageType returns the type the value is persisted as.
func (f *FieldDefinition) StorageType() reflect.Type {
	if f.TreatAsType != nil {
		return f.TreatAsType
	}
	return f.FieldType
}

// Index returns the reflect index path of the field within the model.
func (f *FieldDefinition) Index() []int { return f.index }

// Equal compares the declared attributes of two fields.
func (f *FieldDefinition) Equal(o *FieldDefinition) bool {
	if f.Name != o.Name || f.Alias != o.Alias || f.ColumnName != o.ColumnName ||
		f.FieldType != o.FieldType || f.TreatAsType != o.TreatAsType || f.EnumKind != o.EnumKind {
		return false
	}
	if f.IsNullable != o.IsNullable || f.IsPrimaryKey != o.IsPrimaryKey ||
		f.AutoIncrement != o.AutoIncrement || f.AutoID != o.AutoID ||
		f.IsIndexed != o.IsIndexed || f.IsUnique != o.IsUnique || f.IsClustered != o.IsClustered ||
		f.IsComputed != o.IsComputed || f.IsPersisted != o.IsPersisted ||
		f.IsReference != o.IsReference || f.IsIgnored != o.IsIgnored {
		return false
	}
	if f.DefaultValue != o.DefaultValue || f.CheckConstraint != o.CheckConstraint ||
		f.ComputeExpression != o.ComputeExpression || f.CustomSelect != o.CustomSelect ||
		f.CustomInsert != o.CustomInsert || f.CustomUpdate != o.CustomUpdate ||
		f.CustomFieldDefinition != o.CustomFieldDefinition {
		return false
	}
	if f.Order != o.Order || f.FieldLength != o.FieldLength || f.Scale != o.Scale {
		return false
	}
	if (f.ForeignKey == nil) != (o.ForeignKey == nil) ||
		(f.ForeignKey != nil && *f.ForeignKey != *o.ForeignKey) {
		return false
	}
	if (f.FieldReference == nil) != (o.FieldReference == nil) {
		return false
	}
	if f.FieldReference != nil &&
		(f.FieldReference.ModelName != o.FieldReference.ModelName ||
			f.FieldReference.FieldName != o.FieldReference.FieldName) {
		return false
	}
	return reflect.DeepEqual(f.index, o.index)
}

// GetValue reads the field from a struct value or pointer. A nil embedded
// pointer on the path yields nil.
func (f *FieldDefinition) GetValue(instance any) any {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	fv, err := v.FieldByIndexErr(f.index)
	if err != nil {
		return nil
	}
	return fv.Interface()
}

// SetValue assigns value to the field of instance, which must be a pointer.
// nil resets the field to its zero value. Embedded pointers on the path are
// allocated as needed.
func (f *FieldDefinition) SetValue(instance any, value any) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("meta: SetValue %s.%s: instance must be a non-nil pointer", f.modelName(), f.Name)
	}
	v = v.Elem()
	for i, x := range f.index {
		if i > 0 {
			if v.Kind() == reflect.Pointer {
				if v.IsNil() {
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}

	if value == nil {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(v.Type()):
		v.Set(rv)
	case v.Kind() == reflect.Pointer && rv.Type().AssignableTo(v.Type().Elem()):
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(rv)
		v.Set(p)
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(v.Type()):
		v.Set(rv.Elem())
	case rv.Type().ConvertibleTo(v.Type()) && (rv.Kind() == reflect.String) == (v.Kind() == reflect.String):
		v.Set(rv.Convert(v.Type()))
	default:
		return fmt.Errorf("meta: SetValue %s.%s: cannot assign %s to %s", f.modelName(), f.Name, rv.Type(), v.Type())
	}
	return nil
}

func (f *FieldDefinition) modelName() string {
	if f.Model == nil {
		return ""
	}
	return f.Model.Name
}

// ForeignKeyConstraint is built from fk:Model(Field).
type ForeignKeyConstraint struct {
	RefModel string
	RefField string
	OnDelete string
	OnUpdate string
	Name     string
}

// FieldReference lazily resolves the model and field a field points at.
// Once the referenced model is found the outcome is kept; an unregistered
// model is looked up again on the next call.
type FieldReference struct {
	ModelName string
	// FieldName is empty to target the primary key.
	FieldName string

	registry *Registry
	mu       sync.Mutex
	resolved bool
	model    *ModelDefinition
	field    *FieldDefinition
	err      error
}

// Resolve returns the referenced model and field.
func (r *FieldReference) Resolve() (*ModelDefinition, *FieldDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.model, r.field, r.err
	}
	if r.registry == nil {
		return nil, nil, mappingErr(r.ModelName, r.FieldName, "reference is not bound to a registry")
	}
	model, err := r.registry.Lookup(r.ModelName)
	if err != nil {
		return nil, nil, err
	}
	r.resolved = true
	field := model.PrimaryKey()
	if r.FieldName != "" {
		if field, err = model.Field(r.FieldName); err != nil {
			r.err = err
			return nil, nil, err
		}
	}
	r.model, r.field = model, field
	return model, field, nil
}
