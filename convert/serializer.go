package convert

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer is the generic (de)serializer used for values that have no
// direct column mapping: structs, maps, slices and anything a numeric or
// string conversion cannot reach.
type Serializer interface {
	Name() string
	// Binary reports whether the encoded form is stored as bytes rather than text.
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, t reflect.Type) (any, error)
}

// JSONSerializer stores values as JSON text.
type JSONSerializer struct{}

func (JSONSerializer) Name() string { return "json" }
func (JSONSerializer) Binary() bool { return false }

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("convert: json decode %s: %w", t, err)
	}
	return ptr.Elem().Interface(), nil
}

// MsgpackSerializer stores values as msgpack bytes.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Name() string { return "msgpack" }
func (MsgpackSerializer) Binary() bool { return true }

func (MsgpackSerializer) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackSerializer) Unmarshal(data []byte, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("convert: msgpack decode %s: %w", t, err)
	}
	return ptr.Elem().Interface(), nil
}

// SerializerByName returns the serializer registered under name ("json" or "msgpack").
func SerializerByName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSONSerializer{}, nil
	case "msgpack":
		return MsgpackSerializer{}, nil
	}
	return nil, fmt.Errorf("convert: unknown serializer %q", name)
}
