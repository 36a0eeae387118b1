// Package notify turns engine row mutations into change callbacks and keeps
// a connection's last-modified time current.
//
// A Notifier moves between two states:
//
//	Unregistered --Register--> Registered
//	Registered --Register--> Registered (previous hook released)
//	Registered --Unregister/Close--> Unregistered
//
// Each registration owns a box holding the hook. The box is released exactly
// once: on Unregister, when replaced by a later Register, or on Close. A
// callback arriving for a released box is dropped.
//
// Authorizers are registered independently of hooks. TruncateGuard makes
// whole-table deletes run row by row so that every deleted row is reported.
//
// Callbacks run synchronously inside the engine's statement step. They must
// not call back into the connection.
package notify
