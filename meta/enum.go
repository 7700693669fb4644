package meta

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// EnumKind selects how an enum-valued field is stored.
type EnumKind int

const (
	NotEnum EnumKind = iota
	// EnumAsInt stores the underlying integer value.
	EnumAsInt
	// EnumAsChar stores a single-character code.
	EnumAsChar
	// EnumAsString stores the textual value.
	EnumAsString
)

func (k EnumKind) String() string {
	switch k {
	case EnumAsInt:
		return "int"
	case EnumAsChar:
		return "char"
	case EnumAsString:
		return "string"
	}
	return "none"
}

// EnumClassifier decides the storage of a field type. hint is the value of
// the enum: tag option, empty when absent. It returns the storage kind and
// the type the value is treated as when persisted.
type EnumClassifier interface {
	Classify(t reflect.Type, hint string) (EnumKind, reflect.Type, error)
}

// EnumClassifierFunc adapts a function to EnumClassifier.
type EnumClassifierFunc func(t reflect.Type, hint string) (EnumKind, reflect.Type, error)

func (f EnumClassifierFunc) Classify(t reflect.Type, hint string) (EnumKind, reflect.Type, error) {
	return f(t, hint)
}

var (
	stringerType = reflect.TypeFor[fmt.Stringer]()
	valuerType   = reflect.TypeFor[driver.Valuer]()
	durationType = reflect.TypeFor[time.Duration]()
	int64Type    = reflect.TypeFor[int64]()
	stringType   = reflect.TypeFor[string]()
)

// DefaultEnumClassifier treats named integer types implementing fmt.Stringer
// as integer enums and named string types as string enums. The enum:char hint
// stores a one-character code.
type DefaultEnumClassifier struct{}

func (DefaultEnumClassifier) Classify(t reflect.Type, hint string) (EnumKind, reflect.Type, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	integer := isInteger(t)
	switch hint {
	case "int":
		if !integer {
			return NotEnum, nil, fmt.Errorf("enum:int requires an integer type, got %s", t)
		}
		return EnumAsInt, int64Type, nil
	case "char":
		if !integer && t.Kind() != reflect.String {
			return NotEnum, nil, fmt.Errorf("enum:char requires an integer or string type, got %s", t)
		}
		return EnumAsChar, stringType, nil
	case "string":
		if t.Kind() != reflect.String && !t.Implements(stringerType) {
			return NotEnum, nil, fmt.Errorf("enum:string requires a string or fmt.Stringer type, got %s", t)
		}
		return EnumAsString, stringType, nil
	case "":
	default:
		return NotEnum, nil, fmt.Errorf("unknown enum storage %q", hint)
	}

	if t.PkgPath() == "" || t == durationType || t.Implements(valuerType) {
		return NotEnum, nil, nil
	}
	switch {
	case integer && t.Implements(stringerType):
		return EnumAsInt, int64Type, nil
	case t.Kind() == reflect.String:
		return EnumAsString, stringType, nil
	}
	return NotEnum, nil, nil
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
