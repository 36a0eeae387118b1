package harness

// Trace event types.
const (
	EventStep   = "step"
	EventChange = "change"
)

// TraceEvent is one entry in a scenario trace: either a completed step or a
// row change observed while the step ran. A step's changes follow it.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	Op    string `json:"op,omitempty"`
	Table string `json:"table,omitempty"`

	// ID is the row written, deleted or snapshotted.
	ID *int64 `json:"id,omitempty"`

	// Rows and Count are set for read and recall.
	Rows  []map[string]any `json:"rows,omitempty"`
	Count *int             `json:"count,omitempty"`

	Columns []string `json:"columns,omitempty"`

	// Error is set when a step failed as expected.
	Error string `json:"error,omitempty"`

	// Kind and RowID are set for change events.
	Kind  string `json:"kind,omitempty"`
	RowID int64  `json:"rowid,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State holds the final rows of each table named by an assertion,
	// ordered by id.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
