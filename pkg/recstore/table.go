package recstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"weak"

	"github.com/roach88/recstore/internal/affinity"
	"github.com/roach88/recstore/internal/codec"
	"github.com/roach88/recstore/internal/schema"
	"github.com/roach88/recstore/internal/sqlgen"
	"github.com/roach88/recstore/internal/value"
)

var documentType = reflect.TypeFor[Document]()

// Table is a handle on one table whose rows are records of type T.
//
// T is a struct, a pointer to a struct, or Document. Handles for different
// types on the same table share its schema.
type Table[T any] struct {
	db       weak.Pointer[DB]
	name     string
	fields   []schema.Field
	document bool
}

// TableOf returns the handle for table name holding records of type T. The
// table itself is created on first write.
func TableOf[T any](db *DB, name string) (*Table[T], error) {
	if db == nil || db.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, errors.New("table name is required")
	}

	typ := reflect.TypeFor[T]()
	key := tableKey{name: name, typ: typ}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tables == nil {
		return nil, ErrClosed
	}
	if t, ok := db.tables[key]; ok {
		return t.(*Table[T]), nil
	}

	t := &Table[T]{db: weak.Make(db), name: name}
	if typ == documentType {
		t.document = true
	} else {
		fields, err := schema.FieldsOf(typ)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		t.fields = fields
	}
	db.tables[key] = t
	return t, nil
}

// Documents returns the handle for table name holding dynamic records.
func Documents(db *DB, name string) (*Table[Document], error) {
	return TableOf[Document](db, name)
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// live returns the DB and the table's schema, or ErrClosed.
func (t *Table[T]) live() (*DB, *schema.Manager, error) {
	db := t.db.Value()
	if db == nil || db.closed.Load() {
		return nil, nil, ErrClosed
	}
	m, err := db.schemaFor(t.name)
	if err != nil {
		return nil, nil, err
	}
	return db, m, nil
}

// Write inserts rec, or replaces the row with the same id. Missing columns
// are added first.
func (t *Table[T]) Write(ctx context.Context, rec T) error {
	_, err := t.Save(ctx, rec)
	return err
}

// Save is Write returning the row id, which the engine assigns when rec has
// no id.
func (t *Table[T]) Save(ctx context.Context, rec T) (int64, error) {
	db, m, err := t.live()
	if err != nil {
		return 0, err
	}

	if _, err := m.Ensure(ctx, t.fieldsOf(rec)); err != nil {
		return 0, fmt.Errorf("write %s: %w", t.name, err)
	}
	entries, err := t.encode(db, rec)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", t.name, err)
	}

	res, err := db.conn.ExecContext(ctx, sqlgen.Upsert(t.name, codec.Columns(entries)), codec.Args(entries)...)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", t.name, err)
	}

	id, ok := explicitID(entries)
	if !ok {
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("write %s: %w", t.name, err)
		}
	}

	if db.autoSnapshot {
		if err := t.snapshot(ctx, db, m, id); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (t *Table[T]) fieldsOf(rec T) []schema.Field {
	if t.document {
		doc, _ := any(rec).(Document)
		return schema.FieldsOfDocument(doc)
	}
	return t.fields
}

func (t *Table[T]) encode(db *DB, rec T) ([]codec.Entry, error) {
	if t.document {
		doc, _ := any(rec).(Document)
		return db.codec.EncodeDocument(doc)
	}
	return db.codec.EncodeFields(reflect.ValueOf(&rec).Elem(), t.fields)
}

func explicitID(entries []codec.Entry) (int64, bool) {
	for _, e := range entries {
		if affinity.IsPrimaryKey(e.Column) {
			id, ok := e.Value.(int64)
			return id, ok
		}
	}
	return 0, false
}

// Read returns the records matching opts. Reading a table that was never
// written returns no records.
func (t *Table[T]) Read(ctx context.Context, opts ...ReadOption) ([]T, error) {
	db, m, err := t.live()
	if err != nil {
		return nil, err
	}
	exists, err := m.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	if !exists {
		return nil, nil
	}

	query, args, err := sqlgen.Select(buildQuery(t.name, opts))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	cols, err := m.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	out, err := t.query(ctx, db, cols, query, args)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	return out, nil
}

// ReadByID returns the record with id, reporting false when there is none.
func (t *Table[T]) ReadByID(ctx context.Context, id int64) (T, bool, error) {
	var zero T
	recs, err := t.Read(ctx, Where(Eq(affinity.PrimaryKey, id)), Limit(1))
	if err != nil || len(recs) == 0 {
		return zero, false, err
	}
	return recs[0], true, nil
}

// query runs a select and decodes each row. cols are the source table's
// columns, which say how document blobs are read.
func (t *Table[T]) query(ctx context.Context, db *DB, cols []Column, query string, args []any) ([]T, error) {
	cur, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []T
	for cur.Next() {
		rec, err := t.decode(db, cols, cur.Row())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Table[T]) decode(db *DB, cols []Column, row value.Object) (T, error) {
	if t.document {
		out, _ := any(db.codec.DecodeDocument(row, cols)).(T)
		return out, nil
	}
	return codec.DecodeAs[T](db.codec, row)
}

// Delete removes the row with id. Deleting a missing row is not an error.
func (t *Table[T]) Delete(ctx context.Context, id int64) error {
	db, m, err := t.live()
	if err != nil {
		return err
	}
	exists, err := m.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	if _, err := db.conn.ExecContext(ctx, sqlgen.Delete(t.name), id); err != nil {
		return fmt.Errorf("delete %s %d: %w", t.name, id, err)
	}
	return nil
}

// Columns returns the table's live columns. A table that was never written
// has none.
func (t *Table[T]) Columns(ctx context.Context) ([]Column, error) {
	_, m, err := t.live()
	if err != nil {
		return nil, err
	}
	return m.Columns(ctx)
}

// EnableHistory creates the history table and brings its columns in line
// with the table's. It does nothing before the table's first write.
func (t *Table[T]) EnableHistory(ctx context.Context) error {
	db, m, err := t.live()
	if err != nil {
		return err
	}
	_, err = t.ensureHistory(ctx, db, m)
	return err
}

// Snapshot copies the current row with id into history, stamped with the
// DB clock. A missing row copies nothing.
func (t *Table[T]) Snapshot(ctx context.Context, id int64) error {
	db, m, err := t.live()
	if err != nil {
		return err
	}
	return t.snapshot(ctx, db, m, id)
}

func (t *Table[T]) snapshot(ctx context.Context, db *DB, m *schema.Manager, id int64) error {
	cols, err := t.ensureHistory(ctx, db, m)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	stamp := sqlgen.FormatTimestamp(db.clock())
	if _, err := db.conn.ExecContext(ctx, sqlgen.Snapshot(t.name, names), stamp, id); err != nil {
		return fmt.Errorf("snapshot %s %d: %w", t.name, id, err)
	}
	return nil
}

// ensureHistory returns the table's columns after making sure the history
// table holds each of them.
func (t *Table[T]) ensureHistory(ctx context.Context, db *DB, m *schema.Manager) ([]Column, error) {
	cols, err := m.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", t.name, err)
	}
	if len(cols) == 0 {
		return nil, nil
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, sqlgen.TimestampColumn) {
			return nil, fmt.Errorf("history %s: column %q: %w", t.name, c.Name, ErrReservedColumn)
		}
	}

	hm, err := db.schemaFor(sqlgen.HistoryTable(t.name))
	if err != nil {
		return nil, err
	}
	exists, err := hm.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", t.name, err)
	}
	if !exists {
		if _, err := db.conn.ExecContext(ctx, sqlgen.CreateHistory(t.name)); err != nil {
			return nil, fmt.Errorf("create history %s: %w", t.name, err)
		}
	}

	fields := make([]schema.Field, 0, len(cols)+1)
	for _, c := range cols {
		aff := c.Affinity
		if aff == affinity.PrimaryKeyInteger {
			aff = affinity.Integer
		}
		fields = append(fields, schema.Field{Name: c.Name, Affinity: aff})
	}
	fields = append(fields, schema.Field{Name: sqlgen.TimestampColumn, Affinity: affinity.Text})
	if _, err := hm.Ensure(ctx, fields); err != nil {
		return nil, fmt.Errorf("history %s: %w", t.name, err)
	}
	return cols, nil
}

// Recall returns history records stamped at or before asOf, newest first.
// Without history it returns no records.
func (t *Table[T]) Recall(ctx context.Context, asOf time.Time, opts ...ReadOption) ([]T, error) {
	db, m, err := t.live()
	if err != nil {
		return nil, err
	}
	hm, err := db.schemaFor(sqlgen.HistoryTable(t.name))
	if err != nil {
		return nil, err
	}
	exists, err := hm.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("recall %s: %w", t.name, err)
	}
	if !exists {
		return nil, nil
	}

	query, args, err := sqlgen.Recall(buildQuery(t.name, opts), asOf)
	if err != nil {
		return nil, fmt.Errorf("recall %s: %w", t.name, err)
	}
	cols, err := m.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("recall %s: %w", t.name, err)
	}
	out, err := t.query(ctx, db, cols, query, args)
	if err != nil {
		return nil, fmt.Errorf("recall %s: %w", t.name, err)
	}
	return out, nil
}
