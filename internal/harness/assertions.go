package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/value"
	"github.com/roach88/recstore/pkg/recstore"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Table    string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s on %s\n", e.Type, e.Table)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertChanges:
		return h.assertChanges(a)
	case AssertRows, AssertRowCount:
		rows, err := h.finalRows(ctx, a.Table)
		if err != nil {
			return err
		}
		result.State[a.Table] = rows
		if a.Type == AssertRowCount {
			if len(rows) != a.Count {
				return &AssertionError{
					Type:     a.Type,
					Table:    a.Table,
					Expected: fmt.Sprintf("%d rows", a.Count),
					Actual:   fmt.Sprintf("%d rows", len(rows)),
				}
			}
			return nil
		}
		if msg := matchRows(a.Rows, rows); msg != "" {
			return &AssertionError{Type: a.Type, Table: a.Table, Expected: describeRows(a.Rows), Actual: msg}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) finalRows(ctx context.Context, table string) ([]map[string]any, error) {
	t, err := recstore.Documents(h.db, table)
	if err != nil {
		return nil, err
	}
	docs, err := t.Read(ctx, recstore.OrderBy("id", false))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = d
	}
	return rows, nil
}

func (h *Harness) assertChanges(a Assertion) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, c := range h.changes {
		if c.Table == a.Table && (a.Kind == "" || c.Kind.String() == a.Kind) {
			count++
		}
	}
	if count != a.Count {
		kind := a.Kind
		if kind == "" {
			kind = "any"
		}
		return &AssertionError{
			Type:     a.Type,
			Table:    a.Table,
			Expected: fmt.Sprintf("%d %s changes", a.Count, kind),
			Actual:   fmt.Sprintf("%d changes", count),
		}
	}
	return nil
}

// matchRows checks actual against expected in order. Each expected row is
// a subset of its actual row. It returns a description of the first
// mismatch, or "" when the rows match.
func matchRows(expected, actual []map[string]any) string {
	if len(expected) != len(actual) {
		return fmt.Sprintf("%d rows: %s", len(actual), describeRows(actual))
	}
	for i := range expected {
		for key, want := range expected[i] {
			got, ok := actual[i][key]
			if !ok {
				return fmt.Sprintf("row %d has no column %q", i, key)
			}
			if !valuesEqual(want, got) {
				return fmt.Sprintf("row %d column %q = %v (%T), want %v (%T)", i, key, got, got, want, want)
			}
		}
	}
	return ""
}

// valuesEqual compares a YAML value with a decoded column value through
// their canonical JSON forms, so int and int64 compare equal.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	a, err := canonicalOf(expected)
	if err != nil {
		return false
	}
	b, err := canonicalOf(actual)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// canonicalOf renders v for comparison; text that differs only in Unicode
// normalization compares equal.
func canonicalOf(v any) ([]byte, error) {
	val, err := value.FromAny(v)
	if err != nil {
		return nil, err
	}
	return value.MarshalCanonical(value.Normalize(val))
}

func describeRows(rows []map[string]any) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		data, err := canonicalOf(r)
		if err != nil {
			parts[i] = fmt.Sprint(r)
			continue
		}
		parts[i] = string(data)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
