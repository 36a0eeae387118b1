package codec

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/schema"
)

// Options configures a Codec.
type Options struct {
	// Strict makes unsupported values an error instead of binding NULL.
	Strict bool

	Logger *slog.Logger
}

// Codec converts between records and column values.
type Codec struct {
	strict bool
	logger *slog.Logger
}

// New creates a codec. A nil logger uses slog.Default().
func New(opts Options) *Codec {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{strict: opts.Strict, logger: logger}
}

// Strict reports whether unsupported values are errors.
func (c *Codec) Strict() bool {
	return c.strict
}

// Entry is one column value ready to bind. Value is nil, int64, float64,
// string or []byte.
type Entry struct {
	Column string
	Value  any
}

// Columns returns the column names of entries in order.
func Columns(entries []Entry) []string {
	cols := make([]string, len(entries))
	for i, e := range entries {
		cols[i] = e.Column
	}
	return cols
}

// Args returns the values of entries in order.
func Args(entries []Entry) []any {
	args := make([]any, len(entries))
	for i, e := range entries {
		args[i] = e.Value
	}
	return args
}

var errNoRepresentation = errors.New("no storage representation")

// Encode converts rec, a struct or pointer to struct, into entries in field
// order.
func (c *Codec) Encode(rec any) ([]Entry, error) {
	rv := reflect.ValueOf(rec)
	if !rv.IsValid() {
		return nil, fmt.Errorf("encode: nil record")
	}
	fields, err := schema.FieldsOf(rv.Type())
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return c.EncodeFields(rv, fields)
}

// EncodeFields encodes rv using a precomputed field list.
func (c *Codec) EncodeFields(rv reflect.Value, fields []schema.Field) ([]Entry, error) {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("encode: nil record")
		}
		rv = rv.Elem()
	}

	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		fv := fieldForRead(rv, f.Index)
		bound, err := c.bindField(f, fv)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Column: f.Name, Value: bound})
	}
	return entries, nil
}

// EncodeDocument converts a dynamic record: id first, then keys sorted.
func (c *Codec) EncodeDocument(doc map[string]any) ([]Entry, error) {
	fields := schema.FieldsOfDocument(doc)
	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		raw := doc[f.Name]
		if affinity.IsPrimaryKey(f.Name) {
			id, err := documentID(raw)
			if err != nil {
				return nil, fmt.Errorf("encode document: %w", err)
			}
			entries = append(entries, Entry{Column: f.Name, Value: id})
			continue
		}
		bound, err := c.bindField(f, reflect.ValueOf(raw))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Column: f.Name, Value: bound})
	}
	return entries, nil
}

// documentID accepts integral numbers in any of the shapes JSON decoding
// produces. nil lets the engine assign an id.
func documentID(raw any) (any, error) {
	switch id := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		if id != math.Trunc(id) || math.Abs(id) > 1<<53 {
			return nil, fmt.Errorf("id %v is not an integer", id)
		}
		return int64(id), nil
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return nil, fmt.Errorf("id %q is not an integer", id)
		}
		return n, nil
	}
	v, err := bind(reflect.ValueOf(raw))
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	if _, ok := v.(int64); !ok {
		return nil, fmt.Errorf("id of type %T is not an integer", raw)
	}
	return v, nil
}

func (c *Codec) bindField(f schema.Field, fv reflect.Value) (any, error) {
	var (
		v   any
		err error
	)
	if f.Affinity == affinity.Null && !isNil(fv) {
		err = errNoRepresentation
	} else {
		v, err = bind(fv)
	}
	if err == nil {
		return v, nil
	}

	typ := "<nil>"
	if fv.IsValid() {
		typ = fv.Type().String()
	}
	if c.strict {
		return nil, &UnsupportedValueError{Column: f.Name, Type: typ, Err: err}
	}
	c.logger.Warn("binding NULL for unsupported value", "column", f.Name, "type", typ, "error", err)
	return nil, nil
}

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// bind converts one Go value into a driver value.
func bind(v reflect.Value) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	if v.Type().Implements(textMarshalerType) && affinity.IsText(v.Type()) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, fmt.Errorf("marshal text: %w", err)
		}
		return string(text), nil
	}
	if v.CanAddr() && affinity.IsText(v.Type()) {
		return bind(v.Addr())
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return bind(v.Elem())
	case reflect.Bool:
		if v.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte{}, v.Bytes()...), nil
		}
		return marshalBlob(v)
	case reflect.Map, reflect.Array, reflect.Struct:
		return marshalBlob(v)
	default:
		return nil, errNoRepresentation
	}
}

// marshalBlob stores composites as encoding/json output, which sorts map
// keys and leaves strings and numbers exactly as given.
func marshalBlob(v reflect.Value) (any, error) {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// fieldForRead walks index, returning an invalid Value when it passes
// through a nil embedded pointer.
func fieldForRead(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 {
			for v.Kind() == reflect.Pointer {
				if v.IsNil() {
					return reflect.Value{}
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v
}
