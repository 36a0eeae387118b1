package sqlgen

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/predicate"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestIdent(t *testing.T) {
	tests := map[string]string{
		"name":       "name",
		"firstName":  "firstName",
		"_x1":        "_x1",
		"set":        `"set"`,
		"Table":      `"Table"`,
		"values":     `"values"`,
		"group":      `"group"`,
		"timestamp":  "timestamp",
		"first name": `"first name"`,
		"1st":        `"1st"`,
		`a"b`:        `"a""b"`,
		"":           `""`,
	}
	for in, want := range tests {
		assert.Equal(t, want, Ident(in), "ident %q", in)
	}
}

func TestCreateTable(t *testing.T) {
	g := newGoldie(t)
	sql := CreateTable("people", []ColumnDef{
		{Name: "id", Affinity: affinity.PrimaryKeyInteger},
		{Name: "firstName", Affinity: affinity.Text},
		{Name: "age", Affinity: affinity.Integer},
		{Name: "ratio", Affinity: affinity.Float},
		{Name: "photo", Affinity: affinity.Blob},
		{Name: "group", Affinity: affinity.Text},
		{Name: "opaque", Affinity: affinity.Null},
	})
	g.Assert(t, "create_table", []byte(sql+"\n"))
}

func TestCreateTable_IDOnly(t *testing.T) {
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)", CreateTable("t", nil))
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)",
		CreateTable("t", []ColumnDef{{Name: "ID", Affinity: affinity.Integer}}))
}

func TestAddColumn(t *testing.T) {
	assert.Equal(t, "ALTER TABLE people ADD COLUMN tag TEXT",
		AddColumn("people", ColumnDef{Name: "tag", Affinity: affinity.Text}))
	assert.Equal(t, `ALTER TABLE people ADD COLUMN "set" INTEGER`,
		AddColumn("people", ColumnDef{Name: "set", Affinity: affinity.Integer}))
	assert.Equal(t, "ALTER TABLE people ADD COLUMN anything",
		AddColumn("people", ColumnDef{Name: "anything", Affinity: affinity.Null}))
	assert.Equal(t, "ALTER TABLE people ADD COLUMN tags JSONBLOB",
		AddColumn("people", ColumnDef{Name: "tags", Affinity: affinity.Blob, JSON: true}))
	assert.Equal(t, "ALTER TABLE people ADD COLUMN photo BLOB",
		AddColumn("people", ColumnDef{Name: "photo", Affinity: affinity.Blob}))
}

func TestTableInfo(t *testing.T) {
	assert.Equal(t, "PRAGMA table_info('people')", TableInfo("people"))
	assert.Equal(t, "PRAGMA table_info('o''brien')", TableInfo("o'brien"))
}

func TestUpsert(t *testing.T) {
	g := newGoldie(t)
	g.Assert(t, "upsert", []byte(Upsert("people", []string{"id", "firstName", "lastName", "age"})+"\n"))
}

func TestUpsert_Shapes(t *testing.T) {
	tests := []struct {
		name string
		cols []string
		want string
	}{
		{
			name: "single non-id column",
			cols: []string{"id", "name"},
			want: "INSERT INTO t (id, name) VALUES (?1, ?2) ON CONFLICT(id) DO UPDATE SET name = ?2",
		},
		{
			name: "id only",
			cols: []string{"id"},
			want: "INSERT INTO t (id) VALUES (?1) ON CONFLICT(id) DO NOTHING",
		},
		{
			name: "no id",
			cols: []string{"name", "age"},
			want: "INSERT INTO t (name, age) VALUES (?1, ?2)",
		},
		{
			name: "no columns",
			cols: nil,
			want: "INSERT INTO t DEFAULT VALUES",
		},
		{
			name: "id not first",
			cols: []string{"a", "id", "b"},
			want: "INSERT INTO t (a, id, b) VALUES (?1, ?2, ?3) ON CONFLICT(id) DO UPDATE SET (a, b) = (?1, ?3)",
		},
		{
			name: "keyword columns",
			cols: []string{"id", "set", "values"},
			want: `INSERT INTO t (id, "set", "values") VALUES (?1, ?2, ?3) ON CONFLICT(id) DO UPDATE SET ("set", "values") = (?2, ?3)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Upsert("t", tt.cols))
		})
	}
}

func TestSelect(t *testing.T) {
	sql, args, err := Select(Query{Table: "people"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM people", sql)
	assert.Empty(t, args)

	sql, args, err = Select(Query{Table: "people", Where: predicate.Raw{SQL: "age > 30"}, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM people WHERE age > 30", sql)
	assert.Empty(t, args)
}

func TestSelect_Structured(t *testing.T) {
	g := newGoldie(t)
	sql, args, err := Select(Query{
		Table: "people",
		Where: predicate.AllOf(
			predicate.Eq("lastName", "Doe"),
			predicate.AnyOf(predicate.Gt("age", 30), predicate.IsNull{Field: "age"}),
			predicate.Negate(predicate.OneOf("firstName", "Judy", "George")),
		),
		OrderBy: []Order{{Column: "age", Desc: true}, {Column: "id"}},
		Limit:   10,
	})
	require.NoError(t, err)
	g.Assert(t, "select_structured", []byte(sql+"\n"))
	assert.Equal(t, []any{"Doe", 30, "Judy", "George"}, args)
	assert.NotContains(t, sql, "Doe")
}

func TestSelect_InvalidPredicate(t *testing.T) {
	_, _, err := Select(Query{Table: "people", Where: predicate.Eq("", 1)})
	require.Error(t, err)
	assert.True(t, predicate.IsValidationError(err))
}

func TestDelete(t *testing.T) {
	assert.Equal(t, "DELETE FROM people WHERE id = ?", Delete("people"))
	assert.Equal(t, `DELETE FROM "group" WHERE id = ?`, Delete("group"))
}

func TestHistory(t *testing.T) {
	g := newGoldie(t)
	assert.Equal(t, "people_history", HistoryTable("people"))
	g.Assert(t, "create_history", []byte(CreateHistory("people")+"\n"))
	g.Assert(t, "snapshot", []byte(Snapshot("people", []string{"id", "firstName", "age"})+"\n"))
}

func TestRecall(t *testing.T) {
	g := newGoldie(t)
	asOf := time.Date(2024, 3, 1, 12, 0, 0, 5, time.FixedZone("CET", 3600))

	sql, args, err := Recall(Query{Table: "people", Where: predicate.Eq("lastName", "Doe"), Limit: 5}, asOf)
	require.NoError(t, err)
	g.Assert(t, "recall", []byte(sql+"\n"))
	assert.Equal(t, []any{"2024-03-01T11:00:00.000000005Z", "Doe"}, args)
}

func TestFormatTimestamp_FixedWidth(t *testing.T) {
	a := FormatTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := FormatTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 100, time.UTC))
	assert.Len(t, b, len(a))
	assert.Less(t, a, b)
	assert.Equal(t, "2024-01-01T00:00:00.000000000Z", a)
}

func TestTableList(t *testing.T) {
	assert.Contains(t, TableList(), "sqlite_master")
}
