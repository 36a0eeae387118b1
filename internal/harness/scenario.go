package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Table is the default table for steps and assertions that name none.
	Table string `yaml:"table,omitempty"`

	// Strict enables strict encoding for the scenario's database.
	Strict bool `yaml:"strict,omitempty"`

	// AutoSnapshot copies every written row into history.
	AutoSnapshot bool `yaml:"auto_snapshot,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation against a table.
type Step struct {
	Op    string `yaml:"op"`
	Table string `yaml:"table,omitempty"`

	// Record is the document written by write.
	Record map[string]any `yaml:"record,omitempty"`

	// ID selects the row for delete and snapshot.
	ID *int64 `yaml:"id,omitempty"`

	// Where narrows read and recall to rows whose columns equal the values.
	Where   map[string]any `yaml:"where,omitempty"`
	OrderBy string         `yaml:"order_by,omitempty"`
	Desc    bool           `yaml:"desc,omitempty"`
	Limit   int            `yaml:"limit,omitempty"`

	// AsOf is the recall point as an offset from the clock's start.
	AsOf *Duration `yaml:"as_of,omitempty"`

	// By is how far advance moves the clock.
	By *Duration `yaml:"by,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step.
type Expect struct {
	// Rows are matched in order; each expected row is a subset of the
	// actual row.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Count is the exact number of rows returned.
	Count *int `yaml:"count,omitempty"`

	// Columns is the exact list of "name:affinity" pairs.
	Columns []string `yaml:"columns,omitempty"`

	// Error is a substring the step's error must contain. A step expecting
	// an error fails when it succeeds.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of rows, row_count or changes.
	Type  string `yaml:"type"`
	Table string `yaml:"table,omitempty"`

	// Rows are the expected rows ordered by id (rows).
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Kind filters changes: insert, update or delete. Empty counts all.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of rows (row_count) or changes
	// (changes).
	Count int `yaml:"count,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = parsed
	return nil
}

// Step operations.
const (
	OpWrite         = "write"
	OpDelete        = "delete"
	OpRead          = "read"
	OpRecall        = "recall"
	OpSnapshot      = "snapshot"
	OpEnableHistory = "enable_history"
	OpColumns       = "columns"
	OpAdvance       = "advance"
)

// Assertion types.
const (
	AssertRows     = "rows"
	AssertRowCount = "row_count"
	AssertChanges  = "changes"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, s.Table); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, s.Table); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, table string) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", i)
	}
	if step.Op != OpAdvance && step.Table == "" && table == "" {
		return fmt.Errorf("steps[%d]: table is required", i)
	}

	switch step.Op {
	case OpWrite:
		if step.Record == nil {
			return fmt.Errorf("steps[%d]: record is required for write", i)
		}
	case OpDelete, OpSnapshot:
		if step.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
		}
	case OpRecall:
		if step.AsOf == nil {
			return fmt.Errorf("steps[%d]: as_of is required for recall", i)
		}
	case OpAdvance:
		if step.By == nil || step.By.Duration <= 0 {
			return fmt.Errorf("steps[%d]: advance needs a positive by", i)
		}
	case OpRead, OpEnableHistory, OpColumns:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	return nil
}

func validateAssertion(i int, a Assertion, table string) error {
	if a.Table == "" && table == "" {
		return fmt.Errorf("assertions[%d]: table is required", i)
	}
	switch a.Type {
	case AssertRows:
	case AssertRowCount, AssertChanges:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", i, a.Type)
		}
		if a.Type == AssertChanges && a.Kind != "" && a.Kind != "insert" && a.Kind != "update" && a.Kind != "delete" {
			return fmt.Errorf("assertions[%d]: unknown change kind %q", i, a.Kind)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
