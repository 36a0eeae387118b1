// Package sqlite owns the engine connection.
//
// A Conn is one SQLite connection pinned out of a database/sql pool limited
// to a single open connection. Everything that must see the same engine
// handle (update hooks, authorizers, custom functions, temp state) goes
// through that pinned connection.
//
// # Database Configuration
//
// Defaults applied on open:
//   - WAL journal mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// # Errors
//
// Engine failures are returned as *EngineError carrying the SQLite result
// code, extended code, message and the call site that issued the statement.
// Operations on a closed Conn return ErrClosed.
//
// A Conn is not safe for concurrent use; callers serialize access.
package sqlite
