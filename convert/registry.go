package convert

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Registry maps Go types to converters for one dialect. It is populated at
// startup and read afterwards; registration is not synchronized.
type Registry struct {
	env      *Env
	byType   map[reflect.Type]Converter
	byKind   map[reflect.Kind]Converter
	enums    map[EnumStorage]Converter
	valuer   Converter
	fallback Converter
}

// NewRegistry returns a registry holding the built-in converters bound to env.
func NewRegistry(env *Env) *Registry {
	if env == nil {
		cp := *defaultEnv
		env = &cp
	}
	if env.Literals == nil {
		env.Literals = ansiLiterals{}
	}
	if env.Serializer == nil {
		env.Serializer = JSONSerializer{}
	}
	if env.Null == "" {
		env.Null = "NULL"
	}
	if env.True == "" {
		env.True, env.False = "TRUE", "FALSE"
	}

	r := &Registry{
		env:    env,
		byType: make(map[reflect.Type]Converter),
		byKind: make(map[reflect.Kind]Converter),
		enums:  make(map[EnumStorage]Converter),
	}

	str := &StringConverter{Column: ColumnType{Name: "VARCHAR", Length: 255}}
	sig := &IntConverter{Column: ColumnType{Name: "BIGINT"}}
	uns := &UintConverter{Column: ColumnType{Name: "BIGINT"}}
	flt := &FloatConverter{Column: ColumnType{Name: "DOUBLE PRECISION"}}

	r.RegisterKind(reflect.String, str)
	r.RegisterKind(reflect.Bool, &BoolConverter{Column: ColumnType{Name: "BOOLEAN"}})
	for _, k := range []reflect.Kind{reflect.Int, reflect.Int64} {
		r.RegisterKind(k, sig)
	}
	r.RegisterKind(reflect.Int8, &IntConverter{Column: ColumnType{Name: "SMALLINT"}})
	r.RegisterKind(reflect.Int16, &IntConverter{Column: ColumnType{Name: "SMALLINT"}})
	r.RegisterKind(reflect.Int32, &IntConverter{Column: ColumnType{Name: "INTEGER"}})
	for _, k := range []reflect.Kind{reflect.Uint, reflect.Uint64, reflect.Uintptr} {
		r.RegisterKind(k, uns)
	}
	r.RegisterKind(reflect.Uint8, &UintConverter{Column: ColumnType{Name: "SMALLINT"}})
	r.RegisterKind(reflect.Uint16, &UintConverter{Column: ColumnType{Name: "INTEGER"}})
	r.RegisterKind(reflect.Uint32, &UintConverter{Column: ColumnType{Name: "BIGINT"}})
	r.RegisterKind(reflect.Float32, &FloatConverter{Column: ColumnType{Name: "REAL"}})
	r.RegisterKind(reflect.Float64, flt)

	r.Register(decimalType, &DecimalConverter{Column: ColumnType{Name: "DECIMAL", Precision: 18, Scale: 4}})
	r.Register(reflect.TypeFor[time.Time](), &TimeConverter{Column: ColumnType{Name: "TIMESTAMP"}})
	r.Register(reflect.TypeFor[time.Duration](), &DurationConverter{Column: ColumnType{Name: "BIGINT"}})
	r.Register(reflect.TypeFor[[]byte](), &BytesConverter{Column: ColumnType{Name: "BLOB"}})
	r.Register(reflect.TypeFor[uuid.UUID](), &UUIDConverter{Column: ColumnType{Name: "CHAR", Length: 36}})

	r.SetEnum(EnumInt, &EnumConverter{Storage: EnumInt, Column: ColumnType{Name: "INTEGER"}})
	r.SetEnum(EnumChar, &EnumConverter{Storage: EnumChar, Column: ColumnType{Name: "CHAR", Length: 1}})
	r.SetEnum(EnumString, &EnumConverter{Storage: EnumString, Column: ColumnType{Name: "VARCHAR", Length: 255}})

	r.valuer = r.bind(&ValuerConverter{Column: ColumnType{Name: "TEXT"}})
	r.fallback = r.bind(&SerializedConverter{Column: ColumnType{Name: "TEXT"}})
	return r
}

// Env returns the environment shared by the registry's converters.
func (r *Registry) Env() *Env { return r.env }

func (r *Registry) bind(c Converter) Converter {
	if s, ok := c.(EnvSetter); ok {
		s.SetEnv(r.env)
	}
	return c
}

// Register installs c for the exact type t.
func (r *Registry) Register(t reflect.Type, c Converter) { r.byType[t] = r.bind(c) }

// RegisterKind installs c for every type of kind k without an exact entry.
func (r *Registry) RegisterKind(k reflect.Kind, c Converter) { r.byKind[k] = r.bind(c) }

// SetEnum installs the converter used for the given enum storage.
func (r *Registry) SetEnum(s EnumStorage, c Converter) { r.enums[s] = r.bind(c) }

// SetFallback replaces the serialized fallback converter.
func (r *Registry) SetFallback(c Converter) { r.fallback = r.bind(c) }

// Enum returns the converter for the given enum storage.
func (r *Registry) Enum(s EnumStorage) Converter {
	if c, ok := r.enums[s]; ok {
		return c
	}
	return r.enums[EnumInt]
}

// Lookup returns the best converter for t: exact match, then the pointer
// element, then self-converting types, then by kind, then the serializer.
func (r *Registry) Lookup(t reflect.Type) Converter {
	if c, ok := r.byType[t]; ok {
		return c
	}
	if t.Kind() == reflect.Pointer {
		return r.Lookup(t.Elem())
	}
	if t.Implements(valuerType) && reflect.PointerTo(t).Implements(scannerType) {
		return r.valuer
	}
	if c, ok := r.byKind[t.Kind()]; ok {
		return c
	}
	return r.fallback
}

// Register installs c for T.
func Register[T any](r *Registry, c Converter) { r.Register(reflect.TypeFor[T](), c) }

// ToDB converts value of the declared type t into a bindable value. Nil
// pointers and nil interfaces map to nil.
func (r *Registry) ToDB(t reflect.Type, value any) (any, error) {
	return r.ToDBWith(nil, t, value)
}

// ToDBWith is ToDB with an explicit converter; nil selects Lookup(t).
func (r *Registry) ToDBWith(c Converter, t reflect.Type, value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if c == nil {
		c = r.Lookup(t)
	}
	return c.ToDBValue(t, rv.Interface())
}

// FromDB converts a driver value into t. nil maps to nil unless t is a
// sql.Scanner that handles NULL itself.
func (r *Registry) FromDB(t reflect.Type, value any) (any, error) {
	return r.FromDBWith(nil, t, value)
}

// FromDBWith is FromDB with an explicit converter; nil selects Lookup(t).
func (r *Registry) FromDBWith(c Converter, t reflect.Type, value any) (any, error) {
	if t.Kind() == reflect.Pointer {
		if value == nil {
			return nil, nil
		}
		v, err := r.FromDBWith(c, t.Elem(), value)
		if err != nil || v == nil {
			return nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(v))
		return ptr.Interface(), nil
	}
	if c == nil {
		c = r.Lookup(t)
	}
	if value == nil && c != r.valuer {
		return nil, nil
	}
	return c.FromDBValue(t, value)
}

// Quote renders value of type t as a SQL literal.
func (r *Registry) Quote(value any, t reflect.Type) string {
	if isNil(value) {
		return r.env.Null
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	return r.Lookup(t).QuoteValue(rv.Interface(), t)
}

// Param builds a bind parameter for value of type t.
func (r *Registry) Param(name string, t reflect.Type, value any) (Parameter, error) {
	v, err := r.ToDB(t, value)
	if err != nil {
		return Parameter{}, err
	}
	p := Parameter{Name: name, Value: v}
	r.Lookup(t).InitParameter(&p, t)
	return p, nil
}
