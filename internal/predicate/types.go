package predicate

import (
	"encoding"
	"fmt"
	"reflect"
)

// Predicate is a row filter. Only types in this package implement it.
type Predicate interface {
	predicateNode() // Sealed
}

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

// Compare is "field op value". A nil value compares against NULL, which
// never matches; use IsNull for that.
type Compare struct {
	Field string
	Op    Op
	Value any
}

func (Compare) predicateNode() {}

// In is "field IN (values...)". An empty list matches nothing.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// IsNull is "field IS NULL".
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// NotNull is "field IS NOT NULL".
type NotNull struct {
	Field string
}

func (NotNull) predicateNode() {}

// And matches when every predicate matches. An empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or matches when any predicate matches. An empty Or matches no rows.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Raw is an SQL boolean expression inserted verbatim. Args bind to any "?"
// placeholders it contains.
//
// Raw is open to SQL injection. Never build SQL from untrusted input.
type Raw struct {
	SQL  string
	Args []any
}

func (Raw) predicateNode() {}

func Eq(field string, v any) Compare { return Compare{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Compare { return Compare{Field: field, Op: OpNe, Value: v} }
func Lt(field string, v any) Compare { return Compare{Field: field, Op: OpLt, Value: v} }
func Le(field string, v any) Compare { return Compare{Field: field, Op: OpLe, Value: v} }
func Gt(field string, v any) Compare { return Compare{Field: field, Op: OpGt, Value: v} }
func Ge(field string, v any) Compare { return Compare{Field: field, Op: OpGe, Value: v} }
func Like(field, pattern string) Compare { return Compare{Field: field, Op: OpLike, Value: pattern} }

// OneOf builds an In predicate.
func OneOf(field string, values ...any) In { return In{Field: field, Values: values} }

// AllOf builds an And predicate.
func AllOf(preds ...Predicate) And { return And{Predicates: preds} }

// AnyOf builds an Or predicate.
func AnyOf(preds ...Predicate) Or { return Or{Predicates: preds} }

// Negate builds a Not predicate.
func Negate(p Predicate) Not { return Not{Predicate: p} }

// Deref returns the value form of pointer predicates so callers can switch on
// value types only. Nil pointers become nil.
func Deref(p Predicate) Predicate {
	switch pred := p.(type) {
	case *Compare:
		if pred == nil {
			return nil
		}
		return *pred
	case *In:
		if pred == nil {
			return nil
		}
		return *pred
	case *IsNull:
		if pred == nil {
			return nil
		}
		return *pred
	case *NotNull:
		if pred == nil {
			return nil
		}
		return *pred
	case *And:
		if pred == nil {
			return nil
		}
		return *pred
	case *Or:
		if pred == nil {
			return nil
		}
		return *pred
	case *Not:
		if pred == nil {
			return nil
		}
		return *pred
	case *Raw:
		if pred == nil {
			return nil
		}
		return *pred
	}
	return p
}

// Bindable converts a comparison value to something the driver binds.
// Booleans become 0/1 and TextMarshalers their text, matching how records
// are stored.
func Bindable(v any) (any, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64, string, []byte:
		return val, nil
	case encoding.TextMarshaler:
		text, err := val.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("marshal text: %w", err)
		}
		return string(text), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		return Bindable(rv.Elem().Interface())
	case reflect.Bool:
		return Bindable(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return nil, fmt.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	}
	return nil, fmt.Errorf("unsupported comparison value type %T", v)
}
