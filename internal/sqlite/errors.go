package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("connection closed")

// EngineError is a non-success status reported by SQLite.
type EngineError struct {
	// Code is the primary result code (e.g. 19 for SQLITE_CONSTRAINT).
	Code int

	// ExtendedCode is the extended result code.
	ExtendedCode int

	// Message is the engine's error text.
	Message string

	// Op names the operation that failed.
	Op string

	// CallSite is file:line of the caller that issued the statement.
	CallSite string

	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.CallSite != "" {
		return fmt.Sprintf("%s: sqlite error %d: %s (at %s)", e.Op, e.Code, e.Message, e.CallSite)
	}
	return fmt.Sprintf("%s: sqlite error %d: %s", e.Op, e.Code, e.Message)
}

// Unwrap returns the driver error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == int(sqlite3.ErrConstraint)
	}
	return false
}

// IsBusy reports whether err is a busy or locked failure.
func IsBusy(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == int(sqlite3.ErrBusy) || ee.Code == int(sqlite3.ErrLocked)
	}
	return false
}

// IsEngineError reports whether err is or wraps an *EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// ColumnOutOfBoundsError is returned when a cursor column index is outside
// [0, Count).
type ColumnOutOfBoundsError struct {
	Index int
	Count int
}

// Error implements the error interface.
func (e *ColumnOutOfBoundsError) Error() string {
	return fmt.Sprintf("column index %d out of bounds (count %d)", e.Index, e.Count)
}

// wrapError classifies err for op. skip is the number of frames between the
// caller of interest and wrapError.
func wrapError(op string, err error, skip int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}

	var se sqlite3.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &EngineError{
		Code:         int(se.Code),
		ExtendedCode: int(se.ExtendedCode),
		Message:      se.Error(),
		Op:           op,
		CallSite:     callSite(skip + 1),
		Err:          err,
	}
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
