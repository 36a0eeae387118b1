package recstore

import (
	"errors"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/codec"
	"github.com/roach88/recstore/internal/notify"
	"github.com/roach88/recstore/internal/predicate"
	"github.com/roach88/recstore/internal/schema"
	"github.com/roach88/recstore/internal/sqlite"
	"github.com/roach88/recstore/internal/value"
)

// Errors.
var (
	// ErrClosed is returned by every operation on a closed or collected DB.
	ErrClosed = sqlite.ErrClosed

	ErrMissingColumn = codec.ErrMissingColumn
	ErrTypeMismatch  = codec.ErrTypeMismatch

	// ErrReservedColumn is returned when history is used on a table with a
	// column named like the history timestamp column.
	ErrReservedColumn = errors.New("column name is reserved for history")
)

type (
	EngineError            = sqlite.EngineError
	ColumnOutOfBoundsError = sqlite.ColumnOutOfBoundsError
	UnsupportedValueError  = codec.UnsupportedValueError
	DecodeError            = codec.DecodeError
	ValidationError        = predicate.ValidationError
)

// Schema.
type (
	Affinity  = affinity.Affinity
	Column    = schema.Column
	Describer = schema.Describer
	FieldSpec = schema.FieldSpec
)

const (
	PrimaryKeyInteger = affinity.PrimaryKeyInteger
	Integer           = affinity.Integer
	Float             = affinity.Float
	Text              = affinity.Text
	Blob              = affinity.Blob
	Null              = affinity.Null
)

// Change notification.
type (
	Hook       = notify.Hook
	RowChange  = notify.RowChange
	ChangeKind = notify.Kind
	Authorizer = notify.Authorizer
	Action     = notify.Action
	Decision   = notify.Decision
)

const (
	Insert = notify.Insert
	Update = notify.Update
	Delete = notify.Delete

	Allow  = notify.Allow
	Deny   = notify.Deny
	Ignore = notify.Ignore
)

var (
	// StandardHook only keeps LastModified current.
	StandardHook = notify.Standard
	LoggingHook  = notify.Logging
	DebugHook    = notify.Debug

	AllowAll      = notify.AllowAll
	TruncateGuard = notify.TruncateGuard
)

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc = notify.AuthorizerFunc

// Statements.
type (
	Cursor = sqlite.Cursor
	Value  = value.Value
	Row    = value.Object
)

// Predicates.
type Predicate = predicate.Predicate

var (
	Eq     = predicate.Eq
	Ne     = predicate.Ne
	Lt     = predicate.Lt
	Le     = predicate.Le
	Gt     = predicate.Gt
	Ge     = predicate.Ge
	Like   = predicate.Like
	In     = predicate.OneOf
	And    = predicate.AllOf
	Or     = predicate.AnyOf
	Not    = predicate.Negate
)

// IsNull matches rows where field is NULL.
func IsNull(field string) Predicate {
	return predicate.IsNull{Field: field}
}

// NotNull matches rows where field is not NULL.
func NotNull(field string) Predicate {
	return predicate.NotNull{Field: field}
}

// Document is a dynamic record. The "id" key, when present, must hold an
// integer.
type Document = map[string]any
