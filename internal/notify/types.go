package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind is the type of row mutation.
type Kind int

const (
	Unknown Kind = iota
	Insert
	Delete
	Update
)

// Engine operation codes passed to update hooks.
const (
	opDelete = 9
	opInsert = 18
	opUpdate = 23
)

// KindFromOp maps an engine operation code to a Kind.
func KindFromOp(op int) Kind {
	switch op {
	case opInsert:
		return Insert
	case opDelete:
		return Delete
	case opUpdate:
		return Update
	default:
		return Unknown
	}
}

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RowChange describes one mutated row. Database and Table are only set for
// verbose hooks.
type RowChange struct {
	RowID    int64
	Kind     Kind
	Database string
	Table    string
}

// Hook is a registered change callback.
type Hook struct {
	// Verbose requests database and table names on each change.
	Verbose bool

	// Callback is invoked for every change. It may be nil when only the
	// last-modified time is wanted.
	Callback func(RowChange)
}

// Standard only tracks the last-modified time.
func Standard() Hook {
	return Hook{}
}

// Logging logs each change without names.
func Logging(logger *slog.Logger) Hook {
	return Hook{
		Callback: func(c RowChange) {
			logger.Info("row changed", "kind", c.Kind, "rowid", c.RowID)
		},
	}
}

// Debug logs each change with database and table names.
func Debug(logger *slog.Logger) Hook {
	return Hook{
		Verbose: true,
		Callback: func(c RowChange) {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "row changed",
				slog.String("kind", c.Kind.String()),
				slog.Int64("rowid", c.RowID),
				slog.String("database", c.Database),
				slog.String("table", c.Table),
			)
		},
	}
}

// State is the mutable per-connection change state.
type State struct {
	lastNanos atomic.Int64
	now       func() time.Time
}

// NewState creates a state using now as its clock. A nil now uses time.Now.
func NewState(now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{now: now}
}

// Touch records a modification. Successive calls always produce strictly
// increasing times, even when the clock does not advance.
func (s *State) Touch() time.Time {
	ts := s.now().UnixNano()
	for {
		prev := s.lastNanos.Load()
		next := ts
		if next <= prev {
			next = prev + 1
		}
		if s.lastNanos.CompareAndSwap(prev, next) {
			return time.Unix(0, next)
		}
	}
}

// LastModified returns the time of the most recent change, if any.
func (s *State) LastModified() (time.Time, bool) {
	n := s.lastNanos.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}
