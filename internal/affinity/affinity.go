package affinity

import (
	"encoding"
	"reflect"
	"strings"
)

// PrimaryKey is the column name that maps to the integer primary key.
const PrimaryKey = "id"

// IsPrimaryKey reports whether name refers to the primary key column. Column
// names are case-insensitive.
func IsPrimaryKey(name string) bool {
	return strings.EqualFold(name, PrimaryKey)
}

// Affinity is the storage class a column is declared with.
type Affinity int

const (
	// Unspecified means no affinity hint was given. It is never returned by For.
	Unspecified Affinity = iota
	PrimaryKeyInteger
	Integer
	Float
	Text
	Blob
	Null
)

var (
	textMarshaler   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// For returns the affinity of a field of type t named name.
//
// For is deterministic and total. Types it cannot store map to Null.
func For(t reflect.Type, name string) Affinity {
	if t == nil {
		return Blob
	}
	for t.Kind() == reflect.Pointer {
		if IsText(t) {
			return Text
		}
		t = t.Elem()
	}
	if IsText(t) {
		return Text
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if IsPrimaryKey(name) {
			return PrimaryKeyInteger
		}
		return Integer
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.String:
		return Text
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Interface:
		// []byte is stored raw, everything else as JSON.
		return Blob
	default:
		// Chan, Func, Complex64, Complex128, UnsafePointer
		return Null
	}
}

// IsText reports whether values of t round-trip through their text form.
// Both directions must be available: t (or *t) marshals and *t unmarshals.
func IsText(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return t.Implements(textMarshaler) && t.Implements(textUnmarshaler)
	}
	marshals := t.Implements(textMarshaler) || reflect.PointerTo(t).Implements(textMarshaler)
	return marshals && reflect.PointerTo(t).Implements(textUnmarshaler)
}

// IsBytes reports whether t is a byte slice (after unwrapping pointers).
func IsBytes(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// IsComposite reports whether values of t are stored as JSON: slices other
// than []byte, arrays, maps, structs and interfaces, unless t has a text form.
func IsComposite(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		if IsText(t) {
			return false
		}
		t = t.Elem()
	}
	if IsText(t) {
		return false
	}
	switch t.Kind() {
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	case reflect.Array, reflect.Map, reflect.Struct, reflect.Interface:
		return true
	}
	return false
}

// JSONDecl is the declared type of Blob columns holding JSON documents. The
// engine gives it BLOB affinity.
const JSONDecl = "JSONBLOB"

// Decl returns the column type declaration. Null columns have no declared type.
func (a Affinity) Decl() string {
	switch a {
	case PrimaryKeyInteger:
		return "INTEGER PRIMARY KEY"
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return ""
	}
}

// String returns a short lowercase name.
func (a Affinity) String() string {
	switch a {
	case PrimaryKeyInteger:
		return "primary_key"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "text"
	case Blob:
		return "blob"
	case Null:
		return "null"
	default:
		return "unspecified"
	}
}

// FromDecl maps a declared column type back to an affinity using the
// engine's affinity rules. An empty declaration is Null. Anything the rules
// do not recognise is Text.
func FromDecl(decl string) Affinity {
	d := strings.ToUpper(strings.TrimSpace(decl))
	switch {
	case d == "":
		return Null
	case strings.Contains(d, "INT"):
		return Integer
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return Text
	case strings.Contains(d, "BLOB"):
		return Blob
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return Float
	default:
		return Text
	}
}

// GoType returns the natural Go type for values read from a column of this
// affinity. Null columns can hold anything and report any.
func (a Affinity) GoType() reflect.Type {
	switch a {
	case PrimaryKeyInteger, Integer:
		return reflect.TypeFor[int64]()
	case Float:
		return reflect.TypeFor[float64]()
	case Text:
		return reflect.TypeFor[string]()
	case Blob:
		return reflect.TypeFor[[]byte]()
	default:
		return reflect.TypeFor[any]()
	}
}
