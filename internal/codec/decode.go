package codec

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/schema"
	"github.com/roach88/recstore/internal/value"
)

// Decode resolves row into target, which must be a non-nil pointer to a
// struct. Columns without a matching field are ignored.
func (c *Codec) Decode(row value.Object, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode: target must be a non-nil pointer, got %T", target)
	}
	fields, err := schema.FieldsOf(rv.Type())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return c.DecodeFields(row, rv.Elem(), fields)
}

// DecodeFields resolves row into the struct value dst using a precomputed
// field list. dst must be settable.
func (c *Codec) DecodeFields(row value.Object, dst reflect.Value, fields []schema.Field) error {
	for _, f := range fields {
		v, ok := lookup(row, f.Name)
		if !ok {
			if optional(f.LogicalType) {
				continue
			}
			return &DecodeError{Column: f.Name, Err: ErrMissingColumn}
		}
		fv, ok := fieldForWrite(dst, f.Index)
		if !ok {
			continue
		}
		if err := assign(fv, v); err != nil {
			return &DecodeError{Column: f.Name, Err: err}
		}
	}
	return nil
}

// DecodeAs resolves row into a new T. T may be a struct or a pointer to one.
func DecodeAs[T any](c *Codec, row value.Object) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	target := rv
	if rv.Kind() == reflect.Pointer {
		rv.Set(reflect.New(rv.Type().Elem()))
		target = rv.Elem()
	}
	fields, err := schema.FieldsOf(rv.Type())
	if err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	if err := c.DecodeFields(row, target, fields); err != nil {
		return out, err
	}
	return out, nil
}

// lookup finds column name in row, falling back to a case-insensitive match.
func lookup(row value.Object, name string) (value.Value, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// DecodeDocument converts row to plain Go values. Blobs in columns declared
// JSON are decoded; every other blob stays []byte.
func (c *Codec) DecodeDocument(row value.Object, columns []schema.Column) map[string]any {
	jsonCols := make(map[string]bool)
	for _, col := range columns {
		if col.JSON {
			jsonCols[strings.ToLower(col.Name)] = true
		}
	}

	out := make(map[string]any, len(row))
	for k, v := range row {
		if b, ok := v.(value.Blob); ok && jsonCols[strings.ToLower(k)] {
			if parsed, ok := parseJSONBlob(b); ok {
				out[k] = value.Native(parsed)
				continue
			}
			c.logger.Warn("JSON column holds a malformed document", "column", k)
		}
		out[k] = value.Native(v)
	}
	return out
}

func parseJSONBlob(b []byte) (value.Value, bool) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	parsed, err := value.Parse(trimmed)
	if err != nil {
		return nil, false
	}
	return parsed, true
}

// optional reports whether a field may be absent from a row.
func optional(t reflect.Type) bool {
	if t == nil {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		return true
	}
	return false
}

// fieldForWrite walks index, allocating nil embedded pointers. It reports
// false when an embedded pointer cannot be allocated.
func fieldForWrite(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 {
			for v.Kind() == reflect.Pointer {
				if v.IsNil() {
					if !v.CanSet() {
						return reflect.Value{}, false
					}
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v, v.CanSet()
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// assign stores v into dst, converting between storage classes where the
// conversion is lossless.
func assign(dst reflect.Value, v value.Value) error {
	if value.IsNull(v) {
		dst.SetZero()
		return nil
	}

	t := dst.Type()
	if t.Kind() == reflect.Pointer {
		elem := reflect.New(t.Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if affinity.IsText(t) && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		var text []byte
		switch val := v.(type) {
		case value.Text:
			text = []byte(val)
		case value.Blob:
			text = val
		default:
			return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, v, t)
		}
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText(text)
	}

	switch t.Kind() {
	case reflect.Bool:
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("%w: %v into %s", ErrTypeMismatch, err, t)
		}
		dst.SetBool(n != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("%w: %v into %s", ErrTypeMismatch, err, t)
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, n, t)
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("%w: %v into %s", ErrTypeMismatch, err, t)
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, n, t)
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := asFloat(v)
		if err != nil {
			return fmt.Errorf("%w: %v into %s", ErrTypeMismatch, err, t)
		}
		dst.SetFloat(f)
	case reflect.String:
		switch val := v.(type) {
		case value.Text:
			dst.SetString(string(val))
		case value.Blob:
			dst.SetString(string(val))
		case value.Int, value.Float:
			dst.SetString(value.String(val))
		default:
			return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, v, t)
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			switch val := v.(type) {
			case value.Blob:
				dst.SetBytes(append([]byte{}, val...))
			case value.Text:
				dst.SetBytes([]byte(val))
			default:
				return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, v, t)
			}
			return nil
		}
		return unmarshalBlob(dst, v)
	case reflect.Map, reflect.Array, reflect.Struct:
		return unmarshalBlob(dst, v)
	case reflect.Interface:
		native := value.Native(v)
		if b, ok := v.(value.Blob); ok {
			if parsed, ok := parseJSONBlob(b); ok {
				native = value.Native(parsed)
			}
		}
		if native == nil {
			dst.SetZero()
			return nil
		}
		nv := reflect.ValueOf(native)
		if !nv.Type().AssignableTo(t) {
			return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, native, t)
		}
		dst.Set(nv)
	default:
		return fmt.Errorf("%w: no conversion into %s", ErrTypeMismatch, t)
	}
	return nil
}

func unmarshalBlob(dst reflect.Value, v value.Value) error {
	var data []byte
	switch val := v.(type) {
	case value.Blob:
		data = val
	case value.Text:
		data = []byte(val)
	default:
		return fmt.Errorf("%w: %T into %s", ErrTypeMismatch, v, dst.Type())
	}
	fresh := reflect.New(dst.Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		return fmt.Errorf("malformed blob: %w", err)
	}
	dst.Set(fresh.Elem())
	return nil
}

func asInt(v value.Value) (int64, error) {
	switch val := v.(type) {
	case value.Int:
		return int64(val), nil
	case value.Bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case value.Float:
		f := float64(val)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("float %v is not integral", f)
		}
		return int64(f), nil
	case value.Text:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("text %q is not an integer", string(val))
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot read %T as integer", v)
	}
}

func asFloat(v value.Value) (float64, error) {
	switch val := v.(type) {
	case value.Float:
		return float64(val), nil
	case value.Int:
		return float64(val), nil
	case value.Text:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0, fmt.Errorf("text %q is not a number", string(val))
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot read %T as float", v)
	}
}
