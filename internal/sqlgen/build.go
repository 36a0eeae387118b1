package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/predicate"
)

// HistorySuffix is appended to a table name to form its history table.
const HistorySuffix = "_history"

// TimestampColumn is the extra column history rows carry.
const TimestampColumn = "timestamp"

// TimestampLayout formats history timestamps. The fixed-width fraction keeps
// lexical and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ColumnDef is a column name with its affinity.
type ColumnDef struct {
	Name     string
	Affinity affinity.Affinity

	// JSON marks a Blob column holding JSON documents.
	JSON bool
}

// Declaration renders "name TYPE". Null columns get no type.
func Declaration(c ColumnDef) string {
	decl := c.Affinity.Decl()
	if c.JSON && c.Affinity == affinity.Blob {
		decl = affinity.JSONDecl
	}
	if decl == "" {
		return Ident(c.Name)
	}
	return Ident(c.Name) + " " + decl
}

// CreateTable renders the create statement. The primary key column is always
// first; an "id" entry in cols is skipped.
func CreateTable(table string, cols []ColumnDef) string {
	parts := []string{Declaration(ColumnDef{Name: affinity.PrimaryKey, Affinity: affinity.PrimaryKeyInteger})}
	for _, c := range cols {
		if affinity.IsPrimaryKey(c.Name) {
			continue
		}
		parts = append(parts, Declaration(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Ident(table), strings.Join(parts, ", "))
}

// AddColumn renders an ALTER TABLE ... ADD COLUMN statement.
func AddColumn(table string, c ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", Ident(table), Declaration(c))
}

// TableInfo renders the column introspection pragma.
func TableInfo(table string) string {
	return fmt.Sprintf("PRAGMA table_info(%s)", quoteString(table))
}

// TableList lists user tables, history tables included.
func TableList() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

// Upsert renders an insert that updates on primary key conflict. Parameters
// are numbered in column order; args must be bound in the same order.
func Upsert(table string, cols []string) string {
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", Ident(table))
	}

	params := make([]string, len(cols))
	var setCols, setParams []string
	hasID := false
	for i, c := range cols {
		params[i] = "?" + strconv.Itoa(i+1)
		if c == affinity.PrimaryKey {
			hasID = true
			continue
		}
		setCols = append(setCols, Ident(c))
		setParams = append(setParams, params[i])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Ident(table), identList(cols), strings.Join(params, ", "))
	if !hasID {
		return sql
	}

	conflict := " ON CONFLICT(" + Ident(affinity.PrimaryKey) + ") DO "
	switch len(setCols) {
	case 0:
		return sql + conflict + "NOTHING"
	case 1:
		return sql + conflict + fmt.Sprintf("UPDATE SET %s = %s", setCols[0], setParams[0])
	default:
		return sql + conflict + fmt.Sprintf("UPDATE SET (%s) = (%s)", strings.Join(setCols, ", "), strings.Join(setParams, ", "))
	}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select.
type Query struct {
	Table   string
	Where   predicate.Predicate
	OrderBy []Order
	Limit   int // <= 0 means no limit
}

// Select renders a select over q.Table.
func Select(q Query) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(Ident(q.Table))

	var args []any
	if q.Where != nil {
		cond, condArgs, err := Compile(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile where: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(cond)
		args = condArgs
	}
	writeTail(&b, q.OrderBy, q.Limit)
	return b.String(), args, nil
}

func writeTail(b *strings.Builder, order []Order, limit int) {
	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range order {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Ident(o.Column))
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
}

// Delete renders a delete by primary key. Bind the id as the only argument.
func Delete(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", Ident(table), Ident(affinity.PrimaryKey))
}

// HistoryTable returns the history table name for table.
func HistoryTable(table string) string {
	return table + HistorySuffix
}

// CreateHistory renders the statement that creates an empty history table
// shaped like table plus a timestamp column.
func CreateHistory(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT *, NULL AS %s FROM %s WHERE 0",
		Ident(HistoryTable(table)), Ident(TimestampColumn), Ident(table))
}

// Snapshot renders the copy of one row into history. Bind the timestamp
// then the id.
func Snapshot(table string, cols []string) string {
	list := identList(cols)
	return fmt.Sprintf("INSERT INTO %s (%s, %s) SELECT %s, ? FROM %s WHERE %s = ?",
		Ident(HistoryTable(table)), list, Ident(TimestampColumn), list, Ident(table), Ident(affinity.PrimaryKey))
}

// Recall renders a read of history rows recorded at or before asOf, newest
// first.
func Recall(q Query, asOf time.Time) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(Ident(HistoryTable(q.Table)))
	b.WriteString(" WHERE ")
	b.WriteString(Ident(TimestampColumn))
	b.WriteString(" <= ?")
	args := []any{FormatTimestamp(asOf)}

	if q.Where != nil {
		cond, condArgs, err := Compile(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile where: %w", err)
		}
		b.WriteString(" AND (")
		b.WriteString(cond)
		b.WriteString(")")
		args = append(args, condArgs...)
	}

	order := append([]Order{{Column: TimestampColumn, Desc: true}}, q.OrderBy...)
	writeTail(&b, order, q.Limit)
	return b.String(), args, nil
}

// FormatTimestamp formats t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
