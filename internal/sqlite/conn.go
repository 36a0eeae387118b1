package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-sqlite3"
)

// Options configures a connection.
type Options struct {
	// JournalMode is applied with PRAGMA journal_mode. Empty leaves the
	// engine default.
	JournalMode string

	// Synchronous is applied with PRAGMA synchronous. Empty leaves the engine
	// default.
	Synchronous string

	// BusyTimeout is applied with PRAGMA busy_timeout. Zero disables it.
	BusyTimeout time.Duration

	ForeignKeys bool

	// Pragmas are extra "name = value" settings applied after the above.
	Pragmas []string

	Logger *slog.Logger
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5 * time.Second,
		ForeignKeys: true,
	}
}

// Conn is a single pinned SQLite connection.
type Conn struct {
	id     uuid.UUID
	path   string
	db     *sql.DB
	conn   *sql.Conn
	logger *slog.Logger
	closed atomic.Bool
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One engine connection: hooks and functions are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, wrapError("connect", err, 1)
	}

	c := &Conn{
		id:     uuid.Must(uuid.NewV7()),
		path:   path,
		db:     db,
		conn:   conn,
		logger: logger,
	}

	if err := c.applyPragmas(ctx, opts); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	logger.Debug("connection opened", "conn", c.id, "path", path)
	return c, nil
}

func (c *Conn) applyPragmas(ctx context.Context, opts Options) error {
	var pragmas []string
	if opts.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+opts.JournalMode)
	}
	if opts.Synchronous != "" {
		pragmas = append(pragmas, "PRAGMA synchronous = "+opts.Synchronous)
	}
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()))
	}
	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	for _, p := range opts.Pragmas {
		pragmas = append(pragmas, "PRAGMA "+p)
	}

	for _, pragma := range pragmas {
		if _, err := c.conn.ExecContext(ctx, pragma); err != nil {
			return wrapError(fmt.Sprintf("execute %q", pragma), err, 1)
		}
	}
	return nil
}

// ID identifies the connection in logs.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Path returns the path the connection was opened with.
func (c *Conn) Path() string {
	return c.path
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// ExecContext runs a statement that returns no rows.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("exec", err, 1)
	}
	return res, nil
}

// QueryContext runs a query. Callers must close the rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("query", err, 1)
	}
	return rows, nil
}

// Query runs a query and returns a cursor over its rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*Cursor, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("query", err, 1)
	}
	return newCursor(rows)
}

// Raw runs fn with the driver connection. fn must not retain it.
func (c *Conn) Raw(fn func(*sqlite3.SQLiteConn) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	err := c.conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return fn(sc)
	})
	if errors.Is(err, sql.ErrConnDone) {
		return ErrClosed
	}
	return err
}

// AddFunction registers a scalar SQL function. impl follows the
// go-sqlite3 RegisterFunc conventions. pure functions must be
// deterministic.
func (c *Conn) AddFunction(name string, impl any, pure bool) error {
	err := c.Raw(func(sc *sqlite3.SQLiteConn) error {
		return sc.RegisterFunc(name, impl, pure)
	})
	if err != nil {
		return fmt.Errorf("register function %s: %w", name, err)
	}
	c.logger.Debug("function registered", "conn", c.id, "name", name)
	return nil
}

// AddAggregate registers an aggregate SQL function. ctor must return a
// pointer to a type with Step and Done methods.
func (c *Conn) AddAggregate(name string, ctor any, pure bool) error {
	err := c.Raw(func(sc *sqlite3.SQLiteConn) error {
		return sc.RegisterAggregator(name, ctor, pure)
	})
	if err != nil {
		return fmt.Errorf("register aggregate %s: %w", name, err)
	}
	c.logger.Debug("aggregate registered", "conn", c.id, "name", name)
	return nil
}

// Close releases the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	errs := new(multierror.Error)
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("release connection: %w", err))
		}
	}
	if err := c.db.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close database: %w", err))
	}
	c.logger.Debug("connection closed", "conn", c.id)
	return errs.ErrorOrNil()
}
