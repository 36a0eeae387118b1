package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/value"
)

// Cursor steps through the rows of a query. Column values are typed by
// their storage class.
type Cursor struct {
	rows    *sql.Rows
	names   []string
	decls   []string
	text    []bool
	current []value.Value
	err     error
}

func newCursor(rows *sql.Rows) (*Cursor, error) {
	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read column types: %w", err)
	}

	c := &Cursor{
		rows:  rows,
		names: names,
		decls: make([]string, len(types)),
		text:  make([]bool, len(types)),
	}
	for i, ct := range types {
		c.decls[i] = ct.DatabaseTypeName()
		c.text[i] = affinity.FromDecl(c.decls[i]) == affinity.Text
	}
	return c, nil
}

// Next advances to the next row. It returns false at the end of the rows or
// on error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.current = nil
		return false
	}

	raw := make([]any, len(c.names))
	ptrs := make([]any, len(c.names))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		c.current = nil
		return false
	}

	c.current = make([]value.Value, len(raw))
	for i, r := range raw {
		c.current[i] = value.FromDriver(r, c.text[i])
	}
	return true
}

// ColumnCount returns the number of result columns.
func (c *Cursor) ColumnCount() int {
	return len(c.names)
}

// ColumnName returns the name of column i.
func (c *Cursor) ColumnName(i int) (string, error) {
	if i < 0 || i >= len(c.names) {
		return "", &ColumnOutOfBoundsError{Index: i, Count: len(c.names)}
	}
	return c.names[i], nil
}

// Columns returns all column names.
func (c *Cursor) Columns() []string {
	return append([]string(nil), c.names...)
}

// DeclType returns the declared type of column i, empty for expressions and
// untyped columns.
func (c *Cursor) DeclType(i int) (string, error) {
	if i < 0 || i >= len(c.decls) {
		return "", &ColumnOutOfBoundsError{Index: i, Count: len(c.decls)}
	}
	return c.decls[i], nil
}

// Value returns column i of the current row.
func (c *Cursor) Value(i int) (value.Value, error) {
	if i < 0 || i >= len(c.names) {
		return nil, &ColumnOutOfBoundsError{Index: i, Count: len(c.names)}
	}
	if c.current == nil {
		return nil, fmt.Errorf("no current row")
	}
	return c.current[i], nil
}

// Row returns the current row keyed by column name. When a name repeats the
// last column wins.
func (c *Cursor) Row() value.Object {
	if c.current == nil {
		return nil
	}
	row := make(value.Object, len(c.names))
	for i, name := range c.names {
		row[name] = c.current[i]
	}
	return row
}

// Err returns the error, if any, that stopped iteration.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying statement.
func (c *Cursor) Close() error {
	return c.rows.Close()
}

// All drains the cursor into rows and closes it.
func (c *Cursor) All() ([]value.Object, error) {
	defer c.Close()
	var out []value.Object
	for c.Next() {
		out = append(out, c.Row())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
