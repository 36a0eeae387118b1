package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/sqlgen"
)

// Execer is the subset of the connection the manager needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Column is one live column of a table.
type Column struct {
	Name     string
	Affinity affinity.Affinity

	// LogicalType is the Go type that introduced the column, when known.
	LogicalType reflect.Type

	// JSON marks a Blob column declared to hold JSON documents.
	JSON bool
}

// Manager tracks and migrates the schema of one table.
//
// Columns are only ever appended. The cache lives as long as the manager and
// is not safe for concurrent use.
type Manager struct {
	table  string
	db     Execer
	logger *slog.Logger

	columns []Column
	index   map[string]int
}

// NewManager creates a manager for table. A nil logger uses slog.Default().
func NewManager(db Execer, table string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		table:  table,
		db:     db,
		logger: logger,
		index:  make(map[string]int),
	}
}

// Table returns the table name.
func (m *Manager) Table() string {
	return m.table
}

// Columns returns the table's columns in table order, introspecting the live
// table while nothing is cached. A missing table has no columns.
func (m *Manager) Columns(ctx context.Context) ([]Column, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	out := make([]Column, len(m.columns))
	copy(out, m.columns)
	return out, nil
}

// Exists reports whether the table has been seen with at least one column.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	if err := m.load(ctx); err != nil {
		return false, err
	}
	return len(m.columns) > 0, nil
}

// Has reports whether the cached schema has column name, ignoring case as
// the engine does.
func (m *Manager) Has(name string) bool {
	_, ok := m.index[strings.ToLower(name)]
	return ok
}

// Column returns the cached column named name, ignoring case.
func (m *Manager) Column(name string) (Column, bool) {
	i, ok := m.index[strings.ToLower(name)]
	if !ok {
		return Column{}, false
	}
	return m.columns[i], true
}

// Ensure makes every field in fields exist as a column, creating the table
// when needed. It returns the names of columns it added.
//
// An engine error stops further additions; the cache keeps what succeeded
// and a later call retries the rest.
func (m *Manager) Ensure(ctx context.Context, fields []Field) ([]string, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}

	if len(m.columns) == 0 {
		return m.create(ctx, fields)
	}

	var added []string
	for _, f := range fields {
		if m.Has(f.Name) {
			continue
		}
		col := columnFor(f)
		if _, err := m.db.ExecContext(ctx, sqlgen.AddColumn(m.table, col.def())); err != nil {
			return added, fmt.Errorf("add column %s.%s: %w", m.table, f.Name, err)
		}
		m.append(col)
		added = append(added, col.Name)
	}
	if len(added) > 0 {
		m.logger.Info("columns added", "table", m.table, "columns", strings.Join(added, ","))
	}
	return added, nil
}

func (m *Manager) create(ctx context.Context, fields []Field) ([]string, error) {
	cols := []Column{{Name: affinity.PrimaryKey, Affinity: affinity.PrimaryKeyInteger}}
	seen := map[string]bool{affinity.PrimaryKey: true}
	for _, f := range fields {
		if affinity.IsPrimaryKey(f.Name) {
			cols[0].LogicalType = f.LogicalType
			continue
		}
		if seen[strings.ToLower(f.Name)] {
			continue
		}
		seen[strings.ToLower(f.Name)] = true
		cols = append(cols, columnFor(f))
	}

	defs := make([]sqlgen.ColumnDef, 0, len(cols)-1)
	for _, c := range cols[1:] {
		defs = append(defs, c.def())
	}
	if _, err := m.db.ExecContext(ctx, sqlgen.CreateTable(m.table, defs)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", m.table, err)
	}

	// Another handle may have created the table first with other columns.
	live, err := Introspect(ctx, m.db, m.table)
	if err != nil {
		return nil, err
	}
	if len(live) > 0 && !sameNames(live, cols) {
		for _, c := range live {
			m.append(c)
		}
		return m.Ensure(ctx, fields)
	}

	added := make([]string, 0, len(cols))
	for _, c := range cols {
		m.append(c)
		added = append(added, c.Name)
	}
	m.logger.Info("table created", "table", m.table, "columns", strings.Join(added, ","))
	return added, nil
}

func (m *Manager) load(ctx context.Context) error {
	if len(m.columns) > 0 {
		return nil
	}
	live, err := Introspect(ctx, m.db, m.table)
	if err != nil {
		return err
	}
	for _, c := range live {
		m.append(c)
	}
	return nil
}

func (m *Manager) append(c Column) {
	key := strings.ToLower(c.Name)
	if _, ok := m.index[key]; ok {
		return
	}
	m.index[key] = len(m.columns)
	m.columns = append(m.columns, c)
}

func columnFor(f Field) Column {
	aff := f.Affinity
	if aff == affinity.PrimaryKeyInteger && !affinity.IsPrimaryKey(f.Name) {
		aff = affinity.Integer
	}
	return Column{Name: f.Name, Affinity: aff, LogicalType: f.LogicalType, JSON: f.JSON && aff == affinity.Blob}
}

func (c Column) def() sqlgen.ColumnDef {
	return sqlgen.ColumnDef{Name: c.Name, Affinity: c.Affinity, JSON: c.JSON}
}

func sameNames(live, want []Column) bool {
	if len(live) != len(want) {
		return false
	}
	for i := range live {
		if !strings.EqualFold(live[i].Name, want[i].Name) {
			return false
		}
	}
	return true
}

// Introspect reads the live column list of table. A missing table yields an
// empty list.
func Introspect(ctx context.Context, db Execer, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, sqlgen.TableInfo(table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid      int
			name     string
			declType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		aff := affinity.FromDecl(declType)
		if pk == 1 && aff == affinity.Integer && strings.EqualFold(strings.TrimSpace(declType), "INTEGER") {
			aff = affinity.PrimaryKeyInteger
		}
		cols = append(cols, Column{
			Name:     name,
			Affinity: aff,
			JSON:     strings.EqualFold(strings.TrimSpace(declType), affinity.JSONDecl),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}
