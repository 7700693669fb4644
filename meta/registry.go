// Package meta derives and caches structural metadata for mapped struct types.
//
// A Registry turns a struct type into a ModelDefinition on first use. The
// type is first described by an Introspector (struct tags by default), then
// interpreted: primary key inference, enum classification, ignored fields,
// composite indexes and the lookup tables used by SQL rendering and row
// scanning. Definitions are published through an atomic copy-on-write map so
// readers never see a partially-built entry.
package meta

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fernandezvara/ormkit/naming"
	"github.com/google/uuid"
)

type cacheMap = map[reflect.Type]*ModelDefinition

// Registry derives ModelDefinitions and caches them by type.
type Registry struct {
	cache        atomic.Pointer[cacheMap]
	names        sync.Map // lower-cased model name or alias -> reflect.Type
	naming       naming.Strategy
	introspector Introspector
	enums        EnumClassifier
}

// Option configures a Registry.
type Option func(*Registry)

// WithNaming sets the naming strategy used for table and column names.
func WithNaming(s naming.Strategy) Option {
	return func(r *Registry) {
		if s != nil {
			r.naming = s
		}
	}
}

// WithIntrospector replaces the struct tag introspector.
func WithIntrospector(i Introspector) Option {
	return func(r *Registry) {
		if i != nil {
			r.introspector = i
		}
	}
}

// WithEnumClassifier replaces the default enum classification.
func WithEnumClassifier(c EnumClassifier) Option {
	return func(r *Registry) {
		if c != nil {
			r.enums = c
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		naming:       naming.Base{},
		introspector: TagIntrospector{},
		enums:        DefaultEnumClassifier{},
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := cacheMap{}
	r.cache.Store(&empty)
	return r
}

// Naming returns the registry naming strategy.
func (r *Registry) Naming() naming.Strategy { return r.naming }

// For returns the definition of T.
func For[T any](r *Registry) (*ModelDefinition, error) {
	return r.Get(reflect.TypeFor[T]())
}

// Get returns the cached definition for t, deriving and publishing it on a
// miss. Concurrent misses may derive twice; the first published wins.
func (r *Registry) Get(t reflect.Type) (*ModelDefinition, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if def, ok := (*r.cache.Load())[t]; ok {
		return def, nil
	}

	def, err := r.derive(t)
	if err != nil {
		return nil, err
	}

	for {
		old := r.cache.Load()
		if existing, ok := (*old)[t]; ok {
			return existing, nil
		}
		next := make(cacheMap, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[t] = def
		if r.cache.CompareAndSwap(old, &next) {
			r.remember(def)
			return def, nil
		}
	}
}

// Register derives the definitions of the given values' types up front so
// references by name can find them.
func (r *Registry) Register(models ...any) error {
	for _, m := range models {
		if _, err := r.Get(reflect.TypeOf(m)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) remember(def *ModelDefinition) {
	r.names.Store(strings.ToLower(def.Name), def.ModelType)
	if def.Alias != "" {
		r.names.Store(strings.ToLower(def.Alias), def.ModelType)
	}
}

// Lookup returns the definition of a model previously seen by this registry,
// by logical name or alias.
func (r *Registry) Lookup(name string) (*ModelDefinition, error) {
	t, ok := r.names.Load(strings.ToLower(name))
	if !ok {
		return nil, mappingErr(name, "", "model is not registered")
	}
	return r.Get(t.(reflect.Type))
}

// ClearCache drops every cached definition. Types seen before remain
// resolvable by name and are derived again on next use.
func (r *Registry) ClearCache() {
	empty := cacheMap{}
	r.cache.Store(&empty)
}

// Len returns the number of cached definitions.
func (r *Registry) Len() int { return len(*r.cache.Load()) }

// Cached reports whether t currently has a cached definition.
func (r *Registry) Cached(t reflect.Type) bool {
	_, ok := (*r.cache.Load())[t]
	return ok
}

var uuidType = reflect.TypeFor[uuid.UUID]()

func (r *Registry) derive(t reflect.Type) (*ModelDefinition, error) {
	desc, err := r.introspector.Describe(t)
	if err != nil {
		return nil, err
	}
	return r.interpret(desc)
}

// interpret turns a descriptor into a definition. It is a pure function of
// the descriptor and the registry configuration.
func (r *Registry) interpret(desc *TypeDescriptor) (*ModelDefinition, error) {
	name := desc.Name
	if name == "" {
		name = desc.Type.Name()
	}
	def := &ModelDefinition{
		Name:                name,
		Alias:               desc.Alias,
		Schema:              naming.Schema(r.naming, desc.Schema),
		ModelType:           desc.Type,
		ReferenceFieldNames: map[string]struct{}{},
		byName:              map[string]*FieldDefinition{},
		byAlias:             map[string]*FieldDefinition{},
		byColumn:            map[string]*FieldDefinition{},
	}
	switch {
	case desc.Table != "":
		def.TableName = desc.Table
	case desc.Alias != "":
		def.TableName = naming.Table(r.naming, desc.Alias)
	default:
		def.TableName = naming.Table(r.naming, name)
	}

	var explicitPK []*FieldDefinition
	for _, fd := range desc.Fields {
		f, err := r.field(def, fd)
		if err != nil {
			return nil, err
		}
		if f.IsIgnored {
			def.IgnoredFields = append(def.IgnoredFields, f)
			if f.IsReference {
				def.ReferenceFieldNames[f.Name] = struct{}{}
			}
			continue
		}
		if fd.PrimaryKey {
			explicitPK = append(explicitPK, f)
		}
		def.Fields = append(def.Fields, f)
	}

	if len(def.Fields) == 0 {
		return nil, configErr(name, "", "no mapped fields")
	}
	pk, err := inferPrimaryKey(def, explicitPK)
	if err != nil {
		return nil, err
	}
	pk.IsPrimaryKey = true
	pk.IsNullable = false
	def.primaryKey = pk

	for _, f := range def.Fields {
		if err := validateKeyStrategy(def, f); err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(def.Fields, func(a, b *FieldDefinition) int { return a.Order - b.Order })

	for _, f := range def.Fields {
		def.byName[strings.ToLower(f.Name)] = f
		if f.Alias != "" {
			def.byAlias[strings.ToLower(f.Alias)] = f
			def.FieldDefinitionsWithAliases = append(def.FieldDefinitionsWithAliases, f)
		}
		def.byColumn[strings.ToLower(f.ColumnName)] = f
		if f.AutoID {
			def.AutoIDFields = append(def.AutoIDFields, f)
		}
	}
	def.FieldDefinitionsArray = slices.Clone(def.Fields)

	for _, idx := range desc.Indexes {
		ci, err := r.composite(def, idx, false)
		if err != nil {
			return nil, err
		}
		def.CompositeIndexes = append(def.CompositeIndexes, ci)
	}
	for _, idx := range desc.Uniques {
		ci, err := r.composite(def, idx, true)
		if err != nil {
			return nil, err
		}
		def.UniqueConstraints = append(def.UniqueConstraints, UniqueConstraint{Name: ci.Name, Fields: ci.Fields})
	}
	return def, nil
}

func (r *Registry) field(def *ModelDefinition, fd FieldDescriptor) (*FieldDefinition, error) {
	f := &FieldDefinition{
		Name:                  fd.Name,
		Alias:                 fd.Alias,
		FieldType:             fd.Type,
		AutoIncrement:         fd.AutoIncrement,
		AutoID:                fd.AutoID,
		IsIndexed:             fd.Indexed,
		IsUnique:              fd.Unique,
		IsClustered:           fd.Clustered,
		IsComputed:            fd.Computed || fd.Compute != "",
		IsPersisted:           fd.Persisted,
		IsReference:           fd.Reference,
		DefaultValue:          fd.Default,
		CheckConstraint:       fd.Check,
		ComputeExpression:     fd.Compute,
		CustomSelect:          fd.Select,
		CustomInsert:          fd.Insert,
		CustomUpdate:          fd.Update,
		CustomFieldDefinition: fd.ColumnType,
		Order:                 fd.Order,
		FieldLength:           fd.Length,
		Scale:                 fd.Scale,
		Model:                 def,
		index:                 slices.Clone(fd.Index),
	}
	f.IsIgnored = fd.Ignored || f.IsReference || f.IsComputed

	if fd.Alias != "" {
		f.ColumnName = r.naming.ApplyNameRestrictions(fd.Alias)
	} else {
		f.ColumnName = naming.Column(r.naming, fd.Name)
	}

	f.IsNullable = nullable(fd.Type)
	switch {
	case fd.Null:
		f.IsNullable = true
	case fd.NotNull:
		f.IsNullable = false
	}

	if !f.IsIgnored {
		kind, treatAs, err := r.enums.Classify(fd.Type, fd.Enum)
		if err != nil {
			return nil, configErr(def.Name, fd.Name, "%v", err)
		}
		f.EnumKind, f.TreatAsType = kind, treatAs
	}

	if fd.ForeignKey != "" {
		refModel, refField, err := parseForeignKey(fd.ForeignKey)
		if err != nil {
			return nil, configErr(def.Name, fd.Name, "%v", err)
		}
		f.ForeignKey = &ForeignKeyConstraint{
			RefModel: refModel,
			RefField: refField,
			OnDelete: fd.OnDelete,
			OnUpdate: fd.OnUpdate,
			Name:     fmt.Sprintf("fk_%s_%s", def.TableName, f.ColumnName),
		}
		f.FieldReference = &FieldReference{ModelName: refModel, FieldName: refField, registry: r}
	} else if f.IsReference {
		target := fd.Type
		for target.Kind() == reflect.Pointer || target.Kind() == reflect.Slice {
			target = target.Elem()
		}
		f.FieldReference = &FieldReference{ModelName: target.Name(), registry: r}
	}
	return f, nil
}

func inferPrimaryKey(def *ModelDefinition, explicit []*FieldDefinition) (*FieldDefinition, error) {
	switch len(explicit) {
	case 1:
		return explicit[0], nil
	case 0:
	default:
		names := make([]string, len(explicit))
		for i, f := range explicit {
			names[i] = f.Name
		}
		return nil, configErr(def.Name, "", "multiple primary keys: %s", strings.Join(names, ", "))
	}
	for _, f := range def.Fields {
		if strings.EqualFold(f.Name, "Id") {
			return f, nil
		}
	}
	return def.Fields[0], nil
}

func validateKeyStrategy(def *ModelDefinition, f *FieldDefinition) error {
	t := f.FieldType
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f.AutoIncrement && f.AutoID {
		return configErr(def.Name, f.Name, "autoincrement and autoid are mutually exclusive")
	}
	if f.AutoIncrement && !isInteger(t) {
		return configErr(def.Name, f.Name, "autoincrement requires an integer type, got %s", f.FieldType)
	}
	if f.AutoID && !(t == uuidType || t.Kind() == reflect.String ||
		(t.Kind() == reflect.Array && t.Len() == 16 && t.Elem().Kind() == reflect.Uint8)) {
		return configErr(def.Name, f.Name, "autoid requires a uuid.UUID, string or [16]byte type, got %s", f.FieldType)
	}
	return nil
}

func (r *Registry) composite(def *ModelDefinition, idx IndexDescriptor, unique bool) (CompositeIndex, error) {
	if len(idx.Fields) == 0 {
		return CompositeIndex{}, configErr(def.Name, "", "empty index declaration")
	}
	cols := make([]string, len(idx.Fields))
	for i, name := range idx.Fields {
		f, err := def.Field(name)
		if err != nil {
			return CompositeIndex{}, configErr(def.Name, name, "index references unknown field")
		}
		cols[i] = f.ColumnName
	}
	name := idx.Name
	if name == "" {
		prefix := "idx"
		if unique {
			prefix = "uidx"
		}
		name = r.naming.ApplyNameRestrictions(fmt.Sprintf("%s_%s_%s", prefix, def.TableName, strings.Join(cols, "_")))
	}
	return CompositeIndex{Name: name, Fields: idx.Fields, Unique: unique}, nil
}

func parseForeignKey(s string) (model, field string, err error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return strings.TrimSpace(s), "", nil
	}
	if !strings.HasSuffix(s, ")") || open == 0 {
		return "", "", fmt.Errorf("malformed foreign key %q, want Model(Field)", s)
	}
	return strings.TrimSpace(s[:open]), strings.TrimSpace(s[open+1 : len(s)-1]), nil
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return t.Implements(valuerType) && t.PkgPath() == "database/sql"
}
