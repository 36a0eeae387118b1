package recstore

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/relay"
	"github.com/roach88/recstore/internal/testutil"
	"github.com/roach88/recstore/internal/value"
)

type changeLog struct {
	mu      sync.Mutex
	changes []RowChange
}

func (l *changeLog) record(c RowChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) forTable(table string) []RowChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []RowChange
	for _, c := range l.changes {
		if c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

func TestDB_NotifierSeesThreeInserts(t *testing.T) {
	ctx := context.Background()
	log := &changeLog{}
	db := createTestDB(t, WithUpdateHook(Hook{Verbose: true, Callback: log.record}))
	people := peopleTable(t, db)

	_, ok := db.LastModified()
	assert.False(t, ok)

	for i, name := range []string{"Jane", "Judy", "George"} {
		require.NoError(t, people.Write(ctx, Person{ID: int64(i + 1), Name: name}))
	}

	changes := log.forTable("people")
	require.Len(t, changes, 3)
	for i, c := range changes {
		assert.Equal(t, Insert, c.Kind)
		assert.Equal(t, int64(i+1), c.RowID)
		assert.Equal(t, "main", c.Database)
	}

	_, ok = db.LastModified()
	assert.True(t, ok)
}

func TestDB_NonVerboseHookGetsNoNames(t *testing.T) {
	ctx := context.Background()
	log := &changeLog{}
	db := createTestDB(t, WithUpdateHook(Hook{Callback: log.record}))
	people := peopleTable(t, db)

	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Jane"}))
	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Janet"}))
	require.NoError(t, people.Delete(ctx, 1))

	changes := log.forTable("")
	require.Len(t, changes, 3)
	assert.Equal(t, []ChangeKind{Insert, Update, Delete}, []ChangeKind{changes[0].Kind, changes[1].Kind, changes[2].Kind})
	for _, c := range changes {
		assert.Empty(t, c.Database)
	}
}

func TestDB_LastModifiedStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	frozen := testutil.FrozenClock(testutil.Epoch)
	db := createTestDB(t, WithClock(frozen))
	people := peopleTable(t, db)

	var last time.Time
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, people.Write(ctx, Person{ID: i, Name: "x"}))
		lm, ok := db.LastModified()
		require.True(t, ok)
		assert.True(t, lm.After(last), "write %d", i)
		last = lm
	}
}

func TestDB_RemoveUpdateHook(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	people := peopleTable(t, db)
	assert.True(t, db.HookRegistered(), "standard hook is registered by default")

	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Jane"}))
	before, ok := db.LastModified()
	require.True(t, ok)

	require.NoError(t, db.RemoveUpdateHook())
	assert.False(t, db.HookRegistered())
	require.NoError(t, people.Write(ctx, Person{ID: 2, Name: "Judy"}))

	after, _ := db.LastModified()
	assert.Equal(t, before, after)

	log := &changeLog{}
	require.NoError(t, db.SetUpdateHook(Hook{Callback: log.record}))
	require.NoError(t, people.Write(ctx, Person{ID: 3, Name: "George"}))
	assert.Len(t, log.forTable(""), 1)
	latest, _ := db.LastModified()
	assert.True(t, latest.After(after))
}

func TestDB_ReplacingHookStopsOldCallback(t *testing.T) {
	ctx := context.Background()
	first, second := &changeLog{}, &changeLog{}
	db := createTestDB(t, WithUpdateHook(Hook{Callback: first.record}))
	people := peopleTable(t, db)

	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Jane"}))
	require.NoError(t, db.SetUpdateHook(Hook{Callback: second.record}))
	require.NoError(t, people.Write(ctx, Person{ID: 2, Name: "Judy"}))

	assert.Len(t, first.forTable(""), 1)
	assert.Len(t, second.forTable(""), 1)
}

func TestDB_TruncateGuardReportsEveryRow(t *testing.T) {
	ctx := context.Background()
	log := &changeLog{}
	db := createTestDB(t,
		WithUpdateHook(Hook{Verbose: true, Callback: log.record}),
		WithAuthorizer(TruncateGuard),
	)
	people := peopleTable(t, db)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, people.Write(ctx, Person{ID: i, Name: "x"}))
	}

	_, err := db.Exec(ctx, "DELETE FROM people")
	require.NoError(t, err)

	var deletes int
	for _, c := range log.forTable("people") {
		if c.Kind == Delete {
			deletes++
		}
	}
	assert.Equal(t, 3, deletes)

	got, err := people.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDB_AuthorizerDeny(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	people := peopleTable(t, db)
	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Jane"}))

	noDrops := AuthorizerFunc(func(a Action) Decision {
		if a.Code == 11 { // drop table
			return Deny
		}
		return Allow
	})
	require.NoError(t, db.SetAuthorizer(noDrops))

	_, err := db.Exec(ctx, "DROP TABLE people")
	require.Error(t, err)

	require.NoError(t, db.RemoveAuthorizer())
	_, err = db.Exec(ctx, "DROP TABLE people")
	require.NoError(t, err)
}

func TestDB_CustomFunctions(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	people := peopleTable(t, db)
	for i, name := range []string{"Jane", "Judy"} {
		require.NoError(t, people.Write(ctx, Person{ID: int64(i + 1), Name: name}))
	}

	rot13 := func(s string) string {
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
	require.NoError(t, db.AddFunction("rot13", rot13, true))
	require.NoError(t, db.AddAggregate("integer_sum", func() *integerSum { return &integerSum{} }, true))

	cur, err := db.Query(ctx, "SELECT rot13(name) AS secret FROM people ORDER BY id")
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Value(value.Text("Wnar")), rows[0]["secret"])

	cur, err = db.Query(ctx, "SELECT integer_sum(id) AS total FROM people")
	require.NoError(t, err)
	defer cur.Close()
	require.True(t, cur.Next())
	total, err := cur.Value(0)
	require.NoError(t, err)
	assert.Equal(t, Value(value.Int(3)), total)

	_, err = cur.Value(5)
	var oob *ColumnOutOfBoundsError
	require.ErrorAs(t, err, &oob)
	assert.Equal(t, 5, oob.Index)
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

func TestDB_Tables(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	people := peopleTable(t, db)
	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Jane"}))
	require.NoError(t, people.EnableHistory(ctx))

	tables, err := db.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"people", "people_history"}, tables)
}

func TestDB_ClosedOperations(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	require.NoError(t, db.Close())
	assert.True(t, db.Closed())

	_, err := db.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.SetUpdateHook(StandardHook()), ErrClosed)
	assert.ErrorIs(t, db.RemoveUpdateHook(), ErrClosed)
	assert.ErrorIs(t, db.SetAuthorizer(AllowAll), ErrClosed)
	assert.ErrorIs(t, db.AddFunction("f", func() int64 { return 1 }, true), ErrClosed)
	_, err = db.Tables(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, db.HookRegistered())
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []relay.Event
	closed atomic.Bool
}

func (s *sinkRecorder) Name() string { return "test" }

func (s *sinkRecorder) Publish(_ context.Context, ev relay.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *sinkRecorder) Close() error {
	s.closed.Store(true)
	return nil
}

func TestDB_Relay(t *testing.T) {
	ctx := context.Background()
	sink := &sinkRecorder{}
	r := relay.New(relay.Options{Logger: testutil.DiscardLogger()}, sink)
	log := &changeLog{}
	db := createTestDB(t, WithRelay(r), WithUpdateHook(Hook{Callback: log.record}))
	people := peopleTable(t, db)

	require.NoError(t, people.Write(ctx, Person{ID: 1, Name: "Jane"}))
	require.NoError(t, people.Write(ctx, Person{ID: 2, Name: "Judy"}))
	require.NoError(t, db.Close())

	var relayed []relay.Event
	for _, ev := range sink.events {
		if ev.Table == "people" {
			relayed = append(relayed, ev)
		}
	}
	require.Len(t, relayed, 2)
	assert.Equal(t, Insert, relayed[0].Kind)
	assert.Equal(t, int64(2), relayed[1].RowID)
	assert.Equal(t, db.ID().String(), relayed[0].Connection)

	// The caller's non-verbose hook still gets no names.
	assert.Len(t, log.forTable(""), 2)
}

func openAndDrop(t *testing.T, r *relay.Relay) {
	_, err := Open(testutil.DBPath(t), WithLogger(testutil.DiscardLogger()), WithRelay(r))
	require.NoError(t, err)
}

func TestDB_CollectedDBClosesRelay(t *testing.T) {
	sink := &sinkRecorder{}
	r := relay.New(relay.Options{Logger: testutil.DiscardLogger()}, sink)
	openAndDrop(t, r)

	assert.Eventually(t, func() bool {
		runtime.GC()
		return sink.closed.Load()
	}, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, r.Close(), relay.ErrClosed)
}

func TestDB_OpenFailure(t *testing.T) {
	_, err := Open(t.TempDir()+"/missing/dir/test.db", WithLogger(testutil.DiscardLogger()))
	require.Error(t, err)
}

func TestDB_Pragmas(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t, WithJournalMode("DELETE"), WithBusyTimeout(time.Second), WithPragmas("cache_size = -4000"))

	cur, err := db.Query(ctx, "PRAGMA journal_mode")
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Value(value.Text("delete")), rows[0]["journal_mode"])

	cur, err = db.Query(ctx, "PRAGMA busy_timeout")
	require.NoError(t, err)
	rows, err = cur.All()
	require.NoError(t, err)
	assert.Equal(t, Value(value.Int(1000)), rows[0]["timeout"])
}
