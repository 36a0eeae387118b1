package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn is reported when a row lacks a column that a
	// non-pointer field requires.
	ErrMissingColumn = errors.New("missing column")

	// ErrTypeMismatch is reported when a stored value cannot be converted to
	// the field's type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// UnsupportedValueError is returned in strict mode when a field value has no
// storage representation.
type UnsupportedValueError struct {
	Column string
	Type   string
	Err    error
}

// Error implements the error interface.
func (e *UnsupportedValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported value for column %q (type %s): %v", e.Column, e.Type, e.Err)
	}
	return fmt.Sprintf("unsupported value for column %q (type %s)", e.Column, e.Type)
}

// Unwrap returns the underlying cause.
func (e *UnsupportedValueError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a row cannot be resolved into a record.
type DecodeError struct {
	Column string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode column %q: %v", e.Column, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsUnsupportedValue reports whether err is or wraps an *UnsupportedValueError.
func IsUnsupportedValue(err error) bool {
	var ue *UnsupportedValueError
	return errors.As(err, &ue)
}
