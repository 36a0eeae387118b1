package value

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the storage classes a column can hold,
// plus the composite shapes found inside JSON blobs.
type Value interface {
	value() // Sealed
}

// Null is SQL NULL / JSON null.
type Null struct{}

func (Null) value() {}

// Bool only appears inside JSON blobs. The engine stores booleans as integers.
type Bool bool

func (Bool) value() {}

// Int is an INTEGER value.
type Int int64

func (Int) value() {}

// Float is a REAL value.
type Float float64

func (Float) value() {}

// Text is a TEXT value.
type Text string

func (Text) value() {}

// Blob is a BLOB value.
type Blob []byte

func (Blob) value() {}

// Array is a JSON array.
type Array []Value

func (Array) value() {}

// Object maps names to values. For rows the names are column names.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Native converts obj into a map of Go values.
func (obj Object) Native() map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = Native(v)
	}
	return out
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// FromDriver converts a value produced by the SQLite driver.
//
// When text is true, []byte values are reported as Text: the driver hands
// back TEXT columns as bytes when scanning into any.
func FromDriver(raw any, text bool) Value {
	switch v := raw.(type) {
	case nil:
		return Null{}
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case bool:
		if v {
			return Int(1)
		}
		return Int(0)
	case string:
		return Text(v)
	case []byte:
		if text {
			return Text(string(v))
		}
		return Blob(slices.Clone(v))
	case time.Time:
		return Text(v.UTC().Format(time.RFC3339Nano))
	default:
		return Text(fmt.Sprint(v))
	}
}

// FromAny converts a decoded JSON value or simple Go value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case string:
		return Text(val), nil
	case []byte:
		return Blob(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		if !strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("number %s overflows int64", val)
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", val, err)
		}
		return Float(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// Native converts v back into plain Go values: nil, bool, int64, float64,
// string, []byte, []any, map[string]any.
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Text:
		return string(val)
	case Blob:
		return []byte(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case Object:
		return val.Native()
	default:
		return nil
	}
}

// Parse decodes JSON into a Value. Integers that fit in int64 stay integers;
// integer literals outside that range are an error rather than a rounded
// float.
func Parse(data []byte) (Value, error) {
	var raw any
	if err := decodeNumbers(data, &raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// String renders v for human output.
func String(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return formatFloat(float64(val))
	case Text:
		return string(val)
	case Blob:
		return fmt.Sprintf("x'%x'", []byte(val))
	default:
		data, err := MarshalCanonical(val)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return string(data)
	}
}

// formatFloat uses the shortest representation that round-trips, switching to
// exponent form outside [1e-6, 1e21) like ECMAScript.
func formatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
