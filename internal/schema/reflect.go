package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/recstore/internal/affinity"
)

// Field is one persistable field of a record type.
type Field struct {
	// Name is the column name.
	Name string

	Affinity affinity.Affinity

	// LogicalType is the Go type of the field, nil for document fields.
	LogicalType reflect.Type

	// Index is the reflect.Value.FieldByIndex path from the record struct.
	Index []int

	// JSON marks a Blob field whose values are stored as JSON documents.
	JSON bool
}

// FieldSpec is one entry of a Describer's field list.
type FieldSpec struct {
	Column string
	Field  string // Go field name, dotted for embedded structs
	Hint   affinity.Affinity
}

// Describer lets a record type declare its persistable fields explicitly.
// The returned list is used verbatim, in order.
type Describer interface {
	DescribeFields() []FieldSpec
}

var (
	describerType = reflect.TypeFor[Describer]()
	cache         sync.Map // reflect.Type -> cachedFields
)

type cachedFields struct {
	fields []Field
	err    error
}

// FieldsOf returns the ordered persistable fields of struct type t (or a
// pointer to one). Results are computed once per type.
func FieldsOf(t reflect.Type) ([]Field, error) {
	if t == nil {
		return nil, fmt.Errorf("record type is nil")
	}
	if cached, ok := cache.Load(t); ok {
		c := cached.(cachedFields)
		return c.fields, c.err
	}

	fields, err := fieldsOf(t)
	actual, _ := cache.LoadOrStore(t, cachedFields{fields: fields, err: err})
	c := actual.(cachedFields)
	return c.fields, c.err
}

func fieldsOf(t reflect.Type) ([]Field, error) {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record type %s is not a struct", t)
	}

	if t.Implements(describerType) || reflect.PointerTo(base).Implements(describerType) {
		return describedFields(base)
	}

	var fields []Field
	seen := make(map[string]bool)
	collectFields(base, nil, seen, &fields, make(map[reflect.Type]bool))
	return fields, nil
}

// describedFields calls DescribeFields on a zero value. Implementations must
// not depend on receiver state.
func describedFields(base reflect.Type) ([]Field, error) {
	d := reflect.New(base).Interface().(Describer)
	specs := d.DescribeFields()

	fields := make([]Field, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Column == "" {
			return nil, fmt.Errorf("%s: describe fields: empty column name", base)
		}
		column := canonicalName(spec.Column)
		if seen[strings.ToLower(column)] {
			continue
		}
		goName := spec.Field
		if goName == "" {
			goName = spec.Column
		}
		sf, index, ok := lookupField(base, goName)
		if !ok {
			return nil, fmt.Errorf("%s: describe fields: no field %q for column %q", base, goName, spec.Column)
		}
		aff := spec.Hint
		if aff == affinity.Unspecified {
			aff = affinity.For(sf.Type, column)
		}
		seen[strings.ToLower(column)] = true
		fields = append(fields, Field{
			Name:        column,
			Affinity:    aff,
			LogicalType: sf.Type,
			Index:       index,
			JSON:        aff == affinity.Blob && affinity.IsComposite(sf.Type),
		})
	}
	return fields, nil
}

// lookupField resolves a dotted Go field path.
func lookupField(t reflect.Type, path string) (reflect.StructField, []int, bool) {
	var index []int
	var sf reflect.StructField
	for i, part := range strings.Split(path, ".") {
		if i > 0 {
			t = sf.Type
			for t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			if t.Kind() != reflect.Struct {
				return reflect.StructField{}, nil, false
			}
		}
		f, ok := t.FieldByName(part)
		if !ok || !f.IsExported() {
			return reflect.StructField{}, nil, false
		}
		sf = f
		index = append(index, f.Index...)
	}
	return sf, index, true
}

func collectFields(t reflect.Type, prefix []int, seen map[string]bool, out *[]Field, visiting map[reflect.Type]bool) {
	if visiting[t] {
		return
	}
	visiting[t] = true
	defer delete(visiting, t)

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, skip := columnName(sf)
		if skip {
			continue
		}

		index := append(append([]int(nil), prefix...), i)

		// Untagged embedded structs are flattened.
		if sf.Anonymous && !hasNameTag(sf) {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct && !affinity.IsText(sf.Type) {
				collectFields(et, index, seen, out, visiting)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		name = canonicalName(name)
		if seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		aff := affinity.For(sf.Type, name)
		*out = append(*out, Field{
			Name:        name,
			Affinity:    aff,
			LogicalType: sf.Type,
			Index:       index,
			JSON:        aff == affinity.Blob && affinity.IsComposite(sf.Type),
		})
	}
}

// columnName picks the column name from the db tag, then the json tag, then
// the Go field name. A "-" in either tag marks the field transient.
func columnName(sf reflect.StructField) (string, bool) {
	for _, key := range []string{"db", "json"} {
		tag, ok := sf.Tag.Lookup(key)
		if !ok {
			continue
		}
		if tag == "-" {
			return "", true
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name, false
		}
	}
	return sf.Name, false
}

// canonicalName spells any casing of the primary key column as PrimaryKey.
// Other names are case-insensitive in the engine but keep their spelling.
func canonicalName(name string) string {
	if affinity.IsPrimaryKey(name) {
		return affinity.PrimaryKey
	}
	return name
}

func hasNameTag(sf reflect.StructField) bool {
	for _, key := range []string{"db", "json"} {
		if tag, ok := sf.Tag.Lookup(key); ok {
			if name, _, _ := strings.Cut(tag, ","); name != "" {
				return true
			}
		}
	}
	return false
}

// FieldsOfDocument returns the fields of a dynamic record: the id key first
// when present, then the remaining keys sorted. Affinities come from the
// dynamic type of each value; nil values are Text.
func FieldsOfDocument(doc map[string]any) []Field {
	keys := make([]string, 0, len(doc))
	var ids []string
	for k := range doc {
		if affinity.IsPrimaryKey(k) {
			ids = append(ids, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sort.Strings(ids)
	keys = append(ids, keys...)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		v := doc[k]
		f := Field{Name: k, Affinity: affinity.Text}
		if v != nil {
			f.Affinity = affinity.For(reflect.TypeOf(v), k)
			f.JSON = f.Affinity == affinity.Blob && affinity.IsComposite(reflect.TypeOf(v))
		}
		fields = append(fields, f)
	}
	return fields
}
