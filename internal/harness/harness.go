package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/recstore/internal/testutil"
	"github.com/roach88/recstore/pkg/recstore"
)

// Harness executes one scenario against an in-memory database.
type Harness struct {
	db     *recstore.DB
	now    time.Time
	logger *slog.Logger

	mu      sync.Mutex
	pending []recstore.RowChange
	changes []recstore.RowChange
}

// Run executes a scenario and returns its result. An error is returned only
// when the scenario could not be executed at all; failed expectations are
// reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		now:    testutil.Epoch,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts := []recstore.Option{
		recstore.WithLogger(h.logger),
		recstore.WithClock(h.clock),
		recstore.WithUpdateHook(recstore.Hook{Verbose: true, Callback: h.record}),
	}
	if scenario.Strict {
		opts = append(opts, recstore.WithStrictEncoding())
	}
	if scenario.AutoSnapshot {
		opts = append(opts, recstore.WithAutoSnapshot())
	}

	db, err := recstore.OpenContext(ctx, ":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer db.Close()
	h.db = db

	result := NewResult()
	for i, step := range scenario.Steps {
		if step.Table == "" {
			step.Table = scenario.Table
		}
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	for i, a := range scenario.Assertions {
		if a.Table == "" {
			a.Table = scenario.Table
		}
		if err := h.evaluate(ctx, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) clock() time.Time {
	return h.now
}

func (h *Harness) record(c recstore.RowChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, c)
}

// flush moves the changes seen during a step into the trace.
func (h *Harness) flush(result *Result) {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.changes = append(h.changes, pending...)
	h.mu.Unlock()

	for _, c := range pending {
		result.add(TraceEvent{
			Type:  EventChange,
			Table: c.Table,
			Kind:  c.Kind.String(),
			RowID: c.RowID,
		})
	}
}

// executeStep runs one step and checks its expect clause. Step failures that
// were not expected are recorded in the result; the returned error is
// reserved for problems with the harness itself.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	ev := TraceEvent{Type: EventStep, Op: step.Op, Table: step.Table}

	var (
		rows    []map[string]any
		columns []string
		err     error
	)
	switch step.Op {
	case OpAdvance:
		h.now = h.now.Add(step.By.Duration)
		ev.Table = ""
	case OpWrite:
		var id int64
		id, err = h.write(ctx, step)
		if err == nil {
			ev.ID = &id
		}
	case OpDelete:
		ev.ID = step.ID
		err = h.withTable(step.Table, func(t *recstore.Table[recstore.Document]) error {
			return t.Delete(ctx, *step.ID)
		})
	case OpSnapshot:
		ev.ID = step.ID
		err = h.withTable(step.Table, func(t *recstore.Table[recstore.Document]) error {
			return t.Snapshot(ctx, *step.ID)
		})
	case OpEnableHistory:
		err = h.withTable(step.Table, func(t *recstore.Table[recstore.Document]) error {
			return t.EnableHistory(ctx)
		})
	case OpRead, OpRecall:
		rows, err = h.read(ctx, step)
		if err == nil {
			n := len(rows)
			ev.Rows, ev.Count = rows, &n
		}
	case OpColumns:
		columns, err = h.columns(ctx, step.Table)
		ev.Columns = columns
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	if err != nil {
		ev.Error = err.Error()
	}
	result.add(ev)
	h.flush(result)

	h.logger.Info("step completed", "step", i, "op", step.Op, "table", step.Table, "error", err)
	for _, msg := range checkExpect(step.Expect, err, rows, columns) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
	}
	return nil
}

func (h *Harness) withTable(name string, fn func(*recstore.Table[recstore.Document]) error) error {
	t, err := recstore.Documents(h.db, name)
	if err != nil {
		return err
	}
	return fn(t)
}

func (h *Harness) write(ctx context.Context, step Step) (int64, error) {
	var id int64
	err := h.withTable(step.Table, func(t *recstore.Table[recstore.Document]) error {
		var err error
		id, err = t.Save(ctx, recstore.Document(step.Record))
		return err
	})
	return id, err
}

func (h *Harness) read(ctx context.Context, step Step) ([]map[string]any, error) {
	var opts []recstore.ReadOption
	for _, k := range sortedKeys(step.Where) {
		opts = append(opts, recstore.Where(recstore.Eq(k, step.Where[k])))
	}
	if step.OrderBy != "" {
		opts = append(opts, recstore.OrderBy(step.OrderBy, step.Desc))
	}
	if step.Limit > 0 {
		opts = append(opts, recstore.Limit(step.Limit))
	}

	var docs []recstore.Document
	err := h.withTable(step.Table, func(t *recstore.Table[recstore.Document]) error {
		var err error
		if step.Op == OpRecall {
			docs, err = t.Recall(ctx, testutil.Epoch.Add(step.AsOf.Duration), opts...)
		} else {
			docs, err = t.Read(ctx, opts...)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = d
	}
	return rows, nil
}

func (h *Harness) columns(ctx context.Context, table string) ([]string, error) {
	var out []string
	err := h.withTable(table, func(t *recstore.Table[recstore.Document]) error {
		cols, err := t.Columns(ctx)
		if err != nil {
			return err
		}
		for _, c := range cols {
			out = append(out, c.Name+":"+c.Affinity.String())
		}
		return nil
	})
	return out, err
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(want *Expect, err error, rows []map[string]any, columns []string) []string {
	if want == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if want.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected error containing %q, got success", want.Error)}
		case !strings.Contains(err.Error(), want.Error):
			return []string{fmt.Sprintf("expected error containing %q, got %q", want.Error, err.Error())}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if want.Count != nil && *want.Count != len(rows) {
		msgs = append(msgs, fmt.Sprintf("expected %d rows, got %d", *want.Count, len(rows)))
	}
	if want.Rows != nil {
		if msg := matchRows(want.Rows, rows); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if want.Columns != nil && strings.Join(want.Columns, ",") != strings.Join(columns, ",") {
		msgs = append(msgs, fmt.Sprintf("expected columns %v, got %v", want.Columns, columns))
	}
	return msgs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
