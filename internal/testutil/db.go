package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

// DBPath returns a database path inside a per-test temporary directory.
// The directory is removed when the test ends.
func DBPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
