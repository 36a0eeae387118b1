package schema

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/sqlite"
)

func createTestConn(t *testing.T) *sqlite.Conn {
	t.Helper()
	opts := sqlite.DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func columnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

type personV1 struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type personV2 struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Tag       string `json:"tag"`
	Score     float64
}

func TestManager_MissingTable(t *testing.T) {
	c := createTestConn(t)
	m := NewManager(c, "people", quietLogger())

	cols, err := m.Columns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cols)

	exists, err := m.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_CreateTable(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "people", quietLogger())

	added, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[personV1]()))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "firstName", "lastName"}, added)

	live, err := Introspect(ctx, c, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "firstName", "lastName"}, columnNames(live))
	assert.Equal(t, affinity.PrimaryKeyInteger, live[0].Affinity)
	assert.Equal(t, affinity.Text, live[1].Affinity)
}

func TestManager_CreateWithoutIDField(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "notes", quietLogger())

	type note struct {
		Body string `json:"body"`
	}
	_, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[note]()))
	require.NoError(t, err)

	cols, err := m.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "body"}, columnNames(cols))
}

func TestManager_EnsureIdempotent(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "people", quietLogger())
	fields := mustFields(t, reflect.TypeFor[personV1]())

	_, err := m.Ensure(ctx, fields)
	require.NoError(t, err)
	before, err := Introspect(ctx, c, "people")
	require.NoError(t, err)

	added, err := m.Ensure(ctx, fields)
	require.NoError(t, err)
	assert.Empty(t, added)

	// A fresh manager over the same table is also a no-op.
	added, err = NewManager(c, "people", quietLogger()).Ensure(ctx, fields)
	require.NoError(t, err)
	assert.Empty(t, added)

	after, err := Introspect(ctx, c, "people")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestManager_AddColumnsInOrder(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "people", quietLogger())

	_, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[personV1]()))
	require.NoError(t, err)

	added, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[personV2]()))
	require.NoError(t, err)
	assert.Equal(t, []string{"tag", "Score"}, added)

	live, err := Introspect(ctx, c, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "firstName", "lastName", "tag", "Score"}, columnNames(live))
	assert.Equal(t, affinity.Float, live[4].Affinity)
	assert.True(t, m.Has("tag"))

	col, ok := m.Column("Score")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[float64](), col.LogicalType)
}

func TestManager_NeverDropsOrRetypes(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "people", quietLogger())

	_, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[personV2]()))
	require.NoError(t, err)

	type retyped struct {
		ID  int64 `json:"id"`
		Tag int   `json:"tag"`
	}
	added, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[retyped]()))
	require.NoError(t, err)
	assert.Empty(t, added)

	live, err := Introspect(ctx, c, "people")
	require.NoError(t, err)
	assert.Len(t, live, 5)
	assert.Equal(t, affinity.Text, live[3].Affinity, "first-seen affinity wins")
}

func TestManager_PartialFailureKeepsSuccesses(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "people", quietLogger())

	_, err := m.Ensure(ctx, []Field{{Name: "id", Affinity: affinity.PrimaryKeyInteger}})
	require.NoError(t, err)

	// Case-insensitive clash: the engine rejects "NAME" after "name".
	fields := []Field{
		{Name: "name", Affinity: affinity.Text},
		{Name: "NAME", Affinity: affinity.Text},
		{Name: "after", Affinity: affinity.Text},
	}
	added, err := m.Ensure(ctx, fields)
	require.Error(t, err)
	assert.True(t, sqlite.IsEngineError(err))
	assert.Equal(t, []string{"name"}, added)

	assert.True(t, m.Has("name"))
	assert.False(t, m.Has("after"), "additions after the failure are not attempted")

	live, err := Introspect(ctx, c, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, columnNames(live))

	// A later call reconciles what can be added.
	added, err = m.Ensure(ctx, []Field{{Name: "after", Affinity: affinity.Text}})
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, added)
}

func TestManager_KeywordColumns(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "group", quietLogger())

	fields := []Field{
		{Name: "set", Affinity: affinity.Integer},
		{Name: "values", Affinity: affinity.Blob},
		{Name: "first name", Affinity: affinity.Text},
		{Name: "anything", Affinity: affinity.Null},
	}
	_, err := m.Ensure(ctx, fields)
	require.NoError(t, err)

	live, err := Introspect(ctx, c, "group")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "set", "values", "first name", "anything"}, columnNames(live))
	assert.Equal(t, affinity.Null, live[4].Affinity)
}

func TestManager_ClosedConnection(t *testing.T) {
	c := createTestConn(t)
	require.NoError(t, c.Close())

	_, err := NewManager(c, "people", quietLogger()).Ensure(context.Background(), nil)
	require.ErrorIs(t, err, sqlite.ErrClosed)
}

func TestManager_NamesIgnoreCase(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	m := NewManager(c, "people", quietLogger())

	_, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[personV1]()))
	require.NoError(t, err)
	assert.True(t, m.Has("FIRSTNAME"))
	assert.True(t, m.Has("ID"))

	type shouting struct {
		ID        int64
		FirstName string `json:"FIRSTNAME"`
		Note      string
	}
	added, err := m.Ensure(ctx, mustFields(t, reflect.TypeFor[shouting]()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Note"}, added)

	live, err := Introspect(ctx, c, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "firstName", "lastName", "Note"}, columnNames(live))
}

func TestManager_JSONColumnsSurviveIntrospection(t *testing.T) {
	c := createTestConn(t)
	ctx := context.Background()
	type rec struct {
		ID    int64             `json:"id"`
		Photo []byte            `json:"photo"`
		Meta  map[string]string `json:"meta"`
	}
	_, err := NewManager(c, "things", quietLogger()).Ensure(ctx, mustFields(t, reflect.TypeFor[rec]()))
	require.NoError(t, err)

	cols, err := NewManager(c, "things", quietLogger()).Columns(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, affinity.Blob, cols[1].Affinity)
	assert.False(t, cols[1].JSON)
	assert.Equal(t, affinity.Blob, cols[2].Affinity)
	assert.True(t, cols[2].JSON)
}
