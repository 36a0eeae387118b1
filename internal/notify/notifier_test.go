package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	hook       func(int, string, string, int64)
	authorizer func(int, string, string, string) int
	hookSets   int
}

func (f *fakeRegistrar) RegisterUpdateHook(cb func(op int, db string, table string, rowid int64)) {
	f.hook = cb
	f.hookSets++
}

func (f *fakeRegistrar) RegisterAuthorizer(cb func(action int, arg1, arg2, arg3 string) int) {
	f.authorizer = cb
}

func (f *fakeRegistrar) fire(op int, db, table string, rowid int64) {
	if f.hook != nil {
		f.hook(op, db, table, rowid)
	}
}

func newTestNotifier(t *testing.T, now func() time.Time) (*Notifier, *fakeRegistrar) {
	t.Helper()
	reg := &fakeRegistrar{}
	bind := func(fn func(Registrar) error) error { return fn(reg) }
	return New(bind, NewState(now), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))), reg
}

func TestNotifier_RegisterAndFire(t *testing.T) {
	n, reg := newTestNotifier(t, nil)
	assert.Equal(t, Unregistered, n.Status())

	var got []RowChange
	require.NoError(t, n.Register(Hook{Callback: func(c RowChange) { got = append(got, c) }}))
	assert.Equal(t, Registered, n.Status())

	reg.fire(opInsert, "main", "people", 1)
	reg.fire(opUpdate, "main", "people", 1)
	reg.fire(opDelete, "main", "people", 1)
	reg.fire(99, "main", "people", 2)

	require.Len(t, got, 4)
	assert.Equal(t, []Kind{Insert, Update, Delete, Unknown}, []Kind{got[0].Kind, got[1].Kind, got[2].Kind, got[3].Kind})
	for _, c := range got {
		assert.Empty(t, c.Database, "non-verbose hooks get no names")
		assert.Empty(t, c.Table)
	}
}

func TestNotifier_Verbose(t *testing.T) {
	n, reg := newTestNotifier(t, nil)

	var got RowChange
	require.NoError(t, n.Register(Hook{Verbose: true, Callback: func(c RowChange) { got = c }}))
	reg.fire(opInsert, "main", "people", 7)

	assert.Equal(t, RowChange{RowID: 7, Kind: Insert, Database: "main", Table: "people"}, got)
}

func TestNotifier_ThreeInsertsAdvanceLastModified(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n, reg := newTestNotifier(t, func() time.Time { return frozen })

	_, ok := n.State().LastModified()
	assert.False(t, ok)

	var changes []RowChange
	require.NoError(t, n.Register(Hook{Callback: func(c RowChange) { changes = append(changes, c) }}))

	var stamps []time.Time
	for i := int64(1); i <= 3; i++ {
		reg.fire(opInsert, "main", "t", i)
		ts, ok := n.State().LastModified()
		require.True(t, ok)
		stamps = append(stamps, ts)
	}

	require.Len(t, changes, 3)
	for i, c := range changes {
		assert.Equal(t, Insert, c.Kind)
		assert.Equal(t, int64(i+1), c.RowID)
	}
	assert.True(t, stamps[0].Before(stamps[1]))
	assert.True(t, stamps[1].Before(stamps[2]))
}

func TestNotifier_StandardOnlyTouches(t *testing.T) {
	n, reg := newTestNotifier(t, nil)
	require.NoError(t, n.Register(Standard()))

	reg.fire(opInsert, "main", "t", 1)
	_, ok := n.State().LastModified()
	assert.True(t, ok)
}

func TestNotifier_ReplaceReleasesPrevious(t *testing.T) {
	n, reg := newTestNotifier(t, nil)

	var first, second int
	require.NoError(t, n.Register(Hook{Callback: func(RowChange) { first++ }}))
	staleHook := reg.hook

	require.NoError(t, n.Register(Hook{Callback: func(RowChange) { second++ }}))
	assert.Equal(t, int64(1), n.Releases())

	reg.fire(opInsert, "main", "t", 1)
	// A late callback into the replaced box is dropped.
	staleHook(opInsert, "main", "t", 2)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestNotifier_UnregisterReleasesOnce(t *testing.T) {
	n, reg := newTestNotifier(t, nil)

	require.NoError(t, n.Register(Standard()))
	require.NoError(t, n.Unregister())
	require.NoError(t, n.Unregister())
	require.NoError(t, n.Close())

	assert.Equal(t, int64(1), n.Releases())
	assert.Equal(t, Unregistered, n.Status())
	assert.Nil(t, reg.hook)
}

func TestNotifier_CloseReleasesActive(t *testing.T) {
	n, reg := newTestNotifier(t, nil)

	require.NoError(t, n.Register(Standard()))
	require.NoError(t, n.SetAuthorizer(TruncateGuard))
	require.NoError(t, n.Close())

	assert.Equal(t, int64(1), n.Releases())
	assert.Nil(t, reg.hook)
	assert.Nil(t, reg.authorizer)
	assert.Nil(t, n.Authorizer())
}

func TestNotifier_BindFailure(t *testing.T) {
	gone := errors.New("connection closed")
	n := New(func(func(Registrar) error) error { return gone }, nil, nil)

	err := n.Register(Standard())
	require.ErrorIs(t, err, gone)
	assert.Equal(t, Unregistered, n.Status())
	assert.Equal(t, int64(0), n.Releases())
}

func TestNotifier_CloseWithDeadEngineStillReleases(t *testing.T) {
	reg := &fakeRegistrar{}
	alive := true
	gone := errors.New("connection closed")
	n := New(func(fn func(Registrar) error) error {
		if !alive {
			return gone
		}
		return fn(reg)
	}, nil, nil)

	require.NoError(t, n.Register(Standard()))
	alive = false

	err := n.Close()
	require.ErrorIs(t, err, gone)
	assert.Equal(t, int64(1), n.Releases())
	assert.Equal(t, Unregistered, n.Status())
}

func TestNotifier_Authorizer(t *testing.T) {
	n, reg := newTestNotifier(t, nil)

	var seen []Action
	require.NoError(t, n.SetAuthorizer(AuthorizerFunc(func(a Action) Decision {
		seen = append(seen, a)
		if a.Code == ActionDropTable {
			return Deny
		}
		return Allow
	})))
	require.NotNil(t, reg.authorizer)

	assert.Equal(t, int(Deny), reg.authorizer(int(ActionDropTable), "people", "", "main"))
	assert.Equal(t, int(Allow), reg.authorizer(int(ActionInsert), "people", "", "main"))
	require.Len(t, seen, 2)
	assert.Equal(t, Action{Code: ActionDropTable, Arg1: "people", Arg3: "main"}, seen[0])

	require.NoError(t, n.ClearAuthorizer())
	assert.Nil(t, reg.authorizer)
}

func TestPresets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	assert.False(t, Standard().Verbose)
	assert.Nil(t, Standard().Callback)

	logging := Logging(logger)
	assert.False(t, logging.Verbose)
	logging.Callback(RowChange{RowID: 3, Kind: Insert})
	assert.Contains(t, buf.String(), "kind=insert")
	assert.Contains(t, buf.String(), "rowid=3")

	buf.Reset()
	debug := Debug(logger)
	assert.True(t, debug.Verbose)
	debug.Callback(RowChange{RowID: 4, Kind: Delete, Database: "main", Table: "people"})
	assert.Contains(t, buf.String(), "table=people")
	assert.Contains(t, buf.String(), "kind=delete")
}
