package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/recstore/internal/value"
	"github.com/roach88/recstore/pkg/recstore"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation or scenario failure
	ExitCommandError = 2 // Command error (bad arguments, database cannot be opened, etc.)
)

// Error codes reported in the JSON envelope.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeUsage      = "E002" // Bad arguments or flags
	ErrCodeEngine     = "E003" // Error reported by the database engine
	ErrCodeEncoding   = "E004" // Value cannot be encoded or decoded
	ErrCodeNotFound   = "E005" // Path or row not found
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported marks errors whose details were already written.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode classifies err for the JSON envelope.
func ErrorCode(err error) string {
	var (
		engineErr *recstore.EngineError
		encodeErr *recstore.UnsupportedValueError
		decodeErr *recstore.DecodeError
		exitErr   *ExitError
	)
	switch {
	case errors.As(err, &engineErr):
		return ErrCodeEngine
	case errors.As(err, &encodeErr), errors.As(err, &decodeErr):
		return ErrCodeEncoding
	case errors.As(err, &exitErr) && exitErr.Code == ExitCommandError:
		return ErrCodeUsage
	default:
		return ErrCodeGeneric
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Rows outputs records: as the data payload in JSON, or one canonical JSON
// object per line in text.
func (f *OutputFormatter) Rows(rows []recstore.Document) error {
	if f.Format == "json" {
		if rows == nil {
			rows = []recstore.Document{}
		}
		return f.Success(rows)
	}
	for _, r := range rows {
		line, err := canonicalRow(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(f.Writer, line)
	}
	return nil
}

func canonicalRow(r recstore.Document) (string, error) {
	v, err := value.FromAny(map[string]any(r))
	if err != nil {
		return "", fmt.Errorf("format row: %w", err)
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("format row: %w", err)
	}
	return string(data), nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
