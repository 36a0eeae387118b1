package recstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/recstore/internal/codec"
	"github.com/roach88/recstore/internal/notify"
	"github.com/roach88/recstore/internal/relay"
	"github.com/roach88/recstore/internal/schema"
	"github.com/roach88/recstore/internal/sqlgen"
	"github.com/roach88/recstore/internal/sqlite"
)

// DB is an open database with change tracking.
type DB struct {
	conn     *sqlite.Conn
	notifier *notify.Notifier
	relay    *relay.Relay
	codec    *codec.Codec
	logger   *slog.Logger
	clock    func() time.Time

	autoSnapshot bool

	mu      sync.Mutex
	schemas map[string]*schema.Manager
	tables  map[tableKey]any

	closed atomic.Bool
}

type tableKey struct {
	name string
	typ  reflect.Type
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
//
// Unless WithUpdateHook says otherwise, StandardHook is registered so
// LastModified is kept current.
func Open(path string, opts ...Option) (*DB, error) {
	return OpenContext(context.Background(), path, opts...)
}

// OpenContext is Open with a context for the initial connection setup.
func OpenContext(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.conn.Logger = o.logger

	conn, err := sqlite.Open(ctx, path, o.conn)
	if err != nil {
		return nil, err
	}

	db := &DB{
		conn:         conn,
		relay:        o.relay,
		codec:        codec.New(codec.Options{Strict: o.strict, Logger: o.logger}),
		logger:       o.logger.With("conn", conn.ID()),
		clock:        o.clock,
		autoSnapshot: o.autoSnapshot,
		schemas:      make(map[string]*schema.Manager),
		tables:       make(map[tableKey]any),
	}
	db.notifier = notify.New(binder(conn), notify.NewState(o.clock), db.logger)

	hook := notify.Standard()
	if o.hook != nil {
		hook = *o.hook
	}
	if err := db.SetUpdateHook(hook); err != nil {
		conn.Close()
		return nil, err
	}
	if o.authorizer != nil {
		if err := db.SetAuthorizer(o.authorizer); err != nil {
			conn.Close()
			return nil, err
		}
	}

	// Tables only hold weak references, so a DB dropped without Close still
	// releases its connection and relay.
	runtime.AddCleanup(db, release, owned{conn: conn, relay: o.relay})

	db.logger.Debug("database opened", "path", path)
	return db, nil
}

// owned is what a collected DB must still release.
type owned struct {
	conn  *sqlite.Conn
	relay *relay.Relay
}

func release(o owned) {
	o.conn.Close()
	if o.relay != nil {
		// Draining can block on sinks; cleanups must not.
		go o.relay.Close()
	}
}

func binder(conn *sqlite.Conn) notify.Binder {
	return func(fn func(notify.Registrar) error) error {
		return conn.Raw(func(sc *sqlite3.SQLiteConn) error {
			return fn(sc)
		})
	}
}

// ID identifies the connection.
func (db *DB) ID() uuid.UUID {
	return db.conn.ID()
}

// Path returns the path the DB was opened with.
func (db *DB) Path() string {
	return db.conn.Path()
}

// Closed reports whether Close has been called.
func (db *DB) Closed() bool {
	return db.closed.Load()
}

// Close unregisters hooks, drains the relay and closes the connection. It
// is safe to call more than once.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	errs := new(multierror.Error)
	if err := db.notifier.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if db.relay != nil {
		if err := db.relay.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close relay: %w", err))
		}
	}
	if err := db.conn.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	db.mu.Lock()
	db.schemas = nil
	db.tables = nil
	db.mu.Unlock()

	db.logger.Debug("database closed")
	return errs.ErrorOrNil()
}

// LastModified returns the time of the most recent row change seen by the
// update hook.
func (db *DB) LastModified() (time.Time, bool) {
	return db.notifier.State().LastModified()
}

// SetUpdateHook replaces the registered update hook.
func (db *DB) SetUpdateHook(hook Hook) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.notifier.Register(db.relayed(hook))
}

// RemoveUpdateHook unregisters the update hook. LastModified stops
// advancing until a hook is registered again.
func (db *DB) RemoveUpdateHook() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.notifier.Unregister()
}

// HookRegistered reports whether an update hook is registered.
func (db *DB) HookRegistered() bool {
	return db.notifier.Status() == notify.Registered
}

// relayed wraps hook so every change also reaches the relay. The wrapper
// must not capture db, or the engine's hook registry would keep it alive.
func (db *DB) relayed(hook Hook) Hook {
	r := db.relay
	if r == nil {
		return hook
	}
	state := db.notifier.State()
	connID := db.conn.ID().String()
	return Hook{
		Verbose: true,
		Callback: func(c RowChange) {
			at, _ := state.LastModified()
			r.Offer(relay.NewEvent(connID, c, at))
			if hook.Callback == nil {
				return
			}
			if !hook.Verbose {
				c.Database, c.Table = "", ""
			}
			hook.Callback(c)
		},
	}
}

// SetAuthorizer registers a statement authorizer.
func (db *DB) SetAuthorizer(a Authorizer) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.notifier.SetAuthorizer(a)
}

// RemoveAuthorizer unregisters the statement authorizer.
func (db *DB) RemoveAuthorizer() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.notifier.ClearAuthorizer()
}

// Exec runs a statement that returns no rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return db.conn.ExecContext(ctx, query, args...)
}

// Query runs a statement and returns a cursor over its rows. The caller
// must close the cursor.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*Cursor, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return db.conn.Query(ctx, query, args...)
}

// AddFunction registers a scalar SQL function. impl is a Go function whose
// arguments and results follow go-sqlite3's RegisterFunc rules. pure marks
// it deterministic.
func (db *DB) AddFunction(name string, impl any, pure bool) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.conn.AddFunction(name, impl, pure)
}

// AddAggregate registers an aggregate SQL function. ctor returns a value
// with Step and Done methods.
func (db *DB) AddAggregate(name string, ctor any, pure bool) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.conn.AddAggregate(name, ctor, pure)
}

// Tables lists user tables, history tables included.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	cur, err := db.Query(ctx, sqlgen.TableList())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer cur.Close()

	var names []string
	for cur.Next() {
		v, err := cur.Value(0)
		if err != nil {
			return nil, err
		}
		names = append(names, fmt.Sprint(v))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// schemaFor returns the shared schema manager for table.
func (db *DB) schemaFor(table string) (*schema.Manager, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.schemas == nil {
		return nil, ErrClosed
	}
	m, ok := db.schemas[table]
	if !ok {
		m = schema.NewManager(db.conn, table, db.logger)
		db.schemas[table] = m
	}
	return m, nil
}
