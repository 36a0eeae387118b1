package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/recstore/internal/value"
)

// MarshalTrace renders a trace as canonical JSON, one event per line,
// preceded by a header line naming the scenario.
func MarshalTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	header, err := value.MarshalCanonical(value.Object{"scenario_name": value.Text(scenarioName)})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, ev := range trace {
		obj, err := value.FromAny(eventMap(ev))
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
		line, err := value.MarshalCanonical(obj)
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// eventMap converts an event to plain values, leaving out empty fields.
func eventMap(ev TraceEvent) map[string]any {
	m := map[string]any{
		"seq":  ev.Seq,
		"type": ev.Type,
	}
	if ev.Op != "" {
		m["op"] = ev.Op
	}
	if ev.Table != "" {
		m["table"] = ev.Table
	}
	if ev.ID != nil {
		m["id"] = *ev.ID
	}
	if ev.Count != nil {
		m["count"] = *ev.Count
	}
	if len(ev.Rows) > 0 {
		rows := make([]any, len(ev.Rows))
		for i, r := range ev.Rows {
			rows[i] = r
		}
		m["rows"] = rows
	}
	if len(ev.Columns) > 0 {
		cols := make([]any, len(ev.Columns))
		for i, c := range ev.Columns {
			cols[i] = c
		}
		m["columns"] = cols
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}
	if ev.Kind != "" {
		m["kind"] = ev.Kind
		m["rowid"] = ev.RowID
	}
	return m
}

// RunWithGolden executes a scenario, fails the test on any expectation or
// assertion failure, and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares a result's trace against the golden file for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(name, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
