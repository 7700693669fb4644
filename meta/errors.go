package meta

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports invalid mapping declarations found at derivation time.
	ErrConfiguration = errors.New("invalid model configuration")
	// ErrMapping reports a requested field, column or model that does not exist.
	ErrMapping = errors.New("mapping not found")
)

// Error describes a metadata failure for a model and, optionally, a field.
type Error struct {
	Kind    error
	Model   string
	Field   string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("meta: %s.%s: %s: %s", e.Model, e.Field, e.Kind, e.Message)
	case e.Model != "":
		return fmt.Sprintf("meta: %s: %s: %s", e.Model, e.Kind, e.Message)
	}
	return fmt.Sprintf("meta: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func configErr(model, field, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Model: model, Field: field, Message: fmt.Sprintf(format, args...)}
}

func mappingErr(model, field, format string, args ...any) error {
	return &Error{Kind: ErrMapping, Model: model, Field: field, Message: fmt.Sprintf(format, args...)}
}
