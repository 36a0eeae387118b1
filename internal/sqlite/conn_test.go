package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/value"
)

func createTestConn(t *testing.T) *Conn {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	c, err := Open(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, path, c.Path())
	assert.NotEqual(t, [16]byte{}, [16]byte(c.ID()))
}

func TestOpen_AppliesPragmas(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()

	pragmas := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range pragmas {
		cur, err := c.Query(ctx, "PRAGMA "+name)
		require.NoError(t, err)
		rows, err := cur.All()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		for _, v := range rows[0] {
			assert.Equal(t, want, strings.ToLower(value.String(v)), name)
		}
	}
}

func TestOpen_InvalidPragma(t *testing.T) {
	opts := DefaultOptions()
	opts.Pragmas = []string{"this is not valid"}
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "bad.db"), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply pragmas")
}

func TestExec_EngineError(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()

	_, err := c.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT UNIQUE)")
	require.NoError(t, err)
	_, err = c.ExecContext(ctx, "INSERT INTO t (name) VALUES (?)", "a")
	require.NoError(t, err)

	_, err = c.ExecContext(ctx, "INSERT INTO t (name) VALUES (?)", "a")
	require.Error(t, err)
	assert.True(t, IsConstraint(err))
	assert.False(t, IsBusy(err))

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 19, ee.Code)
	assert.Equal(t, "exec", ee.Op)
	assert.Contains(t, ee.CallSite, "conn_test.go:")
	assert.Contains(t, ee.Error(), "UNIQUE")
}

func TestExec_SyntaxError(t *testing.T) {
	c := createTestConn(t)

	_, err := c.ExecContext(context.Background(), "CREATE TABEL nope (x)")
	require.Error(t, err)
	assert.True(t, IsEngineError(err))
	assert.False(t, IsConstraint(err))
}

func TestClosed(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()

	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
	assert.NoError(t, c.Close(), "second close is a no-op")

	_, err := c.ExecContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	err = c.AddFunction("f", func() int64 { return 1 }, true)
	assert.True(t, errors.Is(err, ErrClosed))
}

func rot13(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		}
		return r
	}, s)
}

type integerSum struct {
	total int64
}

func (s *integerSum) Step(x int64) {
	s.total += x
}

func (s *integerSum) Done() int64 {
	return s.total
}

func TestAddFunction(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()

	require.NoError(t, c.AddFunction("rot13", rot13, true))

	cur, err := c.Query(ctx, "SELECT rot13('Hello, World')")
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Text("Uryyb, Jbeyq"), rows[0]["rot13('Hello, World')"])
}

func TestAddAggregate(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()

	require.NoError(t, c.AddAggregate("integer_sum", func() *integerSum { return &integerSum{} }, true))

	_, err := c.ExecContext(ctx, "CREATE TABLE n (id INTEGER PRIMARY KEY, v INTEGER)")
	require.NoError(t, err)
	for _, v := range []int64{1, 2, 3, 4} {
		_, err := c.ExecContext(ctx, "INSERT INTO n (v) VALUES (?)", v)
		require.NoError(t, err)
	}

	cur, err := c.Query(ctx, "SELECT integer_sum(v) AS total FROM n")
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Int(10), rows[0]["total"])
}

func TestAddFunction_Invalid(t *testing.T) {
	c := createTestConn(t)
	err := c.AddFunction("bad", 42, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register function bad")
}
