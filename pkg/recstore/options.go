package recstore

import (
	"log/slog"
	"time"

	"github.com/roach88/recstore/internal/notify"
	"github.com/roach88/recstore/internal/relay"
	"github.com/roach88/recstore/internal/sqlite"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	strict       bool
	hook         *notify.Hook
	authorizer   notify.Authorizer
	relay        *relay.Relay
	clock        func() time.Time
	autoSnapshot bool
	conn         sqlite.Options
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		clock:  time.Now,
		conn:   sqlite.DefaultOptions(),
	}
}

// WithLogger sets the logger used by the DB and its tables.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStrictEncoding makes writes fail with *UnsupportedValueError instead
// of storing NULL for values that have no column representation.
func WithStrictEncoding() Option {
	return func(o *options) { o.strict = true }
}

// WithUpdateHook registers hook instead of StandardHook at open.
func WithUpdateHook(hook Hook) Option {
	return func(o *options) { o.hook = &hook }
}

// WithAuthorizer registers a statement authorizer at open.
func WithAuthorizer(a Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// WithRelay forwards every row change to r. The DB closes r on Close.
func WithRelay(r *relay.Relay) Option {
	return func(o *options) { o.relay = r }
}

// WithClock sets the clock used for last-modified tracking and history
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithAutoSnapshot copies every written row into the table's history.
func WithAutoSnapshot() Option {
	return func(o *options) { o.autoSnapshot = true }
}

// WithJournalMode sets PRAGMA journal_mode. The default is WAL.
func WithJournalMode(mode string) Option {
	return func(o *options) { o.conn.JournalMode = mode }
}

// WithSynchronous sets PRAGMA synchronous. The default is NORMAL.
func WithSynchronous(level string) Option {
	return func(o *options) { o.conn.Synchronous = level }
}

// WithBusyTimeout sets PRAGMA busy_timeout. The default is five seconds.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.conn.BusyTimeout = d }
}

// WithForeignKeys toggles PRAGMA foreign_keys. The default is on.
func WithForeignKeys(on bool) Option {
	return func(o *options) { o.conn.ForeignKeys = on }
}

// WithPragmas applies extra "name = value" pragmas after the defaults.
func WithPragmas(pragmas ...string) Option {
	return func(o *options) { o.conn.Pragmas = append(o.conn.Pragmas, pragmas...) }
}
