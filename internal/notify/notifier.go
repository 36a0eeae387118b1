package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Registrar is the engine surface hooks are installed on.
// *sqlite3.SQLiteConn satisfies it.
type Registrar interface {
	RegisterUpdateHook(callback func(op int, db string, table string, rowid int64))
	RegisterAuthorizer(callback func(action int, arg1, arg2, arg3 string) int)
}

// Binder runs fn against the live engine connection.
type Binder func(fn func(Registrar) error) error

// Status is the registration state of a Notifier.
type Status int

const (
	Unregistered Status = iota
	Registered
)

func (s Status) String() string {
	if s == Registered {
		return "registered"
	}
	return "unregistered"
}

// box holds one registered hook. It is released exactly once.
type box struct {
	hook     Hook
	state    *State
	released atomic.Bool
	onFree   func()
}

func (b *box) fire(op int, db, table string, rowid int64) {
	if b.released.Load() {
		return
	}
	b.state.Touch()
	if b.hook.Callback == nil {
		return
	}
	change := RowChange{RowID: rowid, Kind: KindFromOp(op)}
	if b.hook.Verbose {
		change.Database = db
		change.Table = table
	}
	b.hook.Callback(change)
}

func (b *box) release() {
	if b.released.CompareAndSwap(false, true) && b.onFree != nil {
		b.onFree()
	}
}

// Notifier manages the update hook and authorizer of one connection.
type Notifier struct {
	bind   Binder
	state  *State
	logger *slog.Logger

	mu         sync.Mutex
	active     *box
	authorizer Authorizer
	releases   atomic.Int64
}

// New creates an unregistered notifier. A nil logger uses slog.Default().
func New(bind Binder, state *State, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if state == nil {
		state = NewState(nil)
	}
	return &Notifier{bind: bind, state: state, logger: logger}
}

// State returns the change state the notifier updates.
func (n *Notifier) State() *State {
	return n.state
}

// Status reports whether a hook is registered.
func (n *Notifier) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active != nil {
		return Registered
	}
	return Unregistered
}

// Releases returns how many hook boxes have been released.
func (n *Notifier) Releases() int64 {
	return n.releases.Load()
}

// Register installs hook, replacing and releasing any previous one.
func (n *Notifier) Register(hook Hook) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	b := &box{hook: hook, state: n.state, onFree: func() { n.releases.Add(1) }}
	err := n.bind(func(r Registrar) error {
		r.RegisterUpdateHook(b.fire)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register update hook: %w", err)
	}

	if n.active != nil {
		n.active.release()
	}
	n.active = b
	n.logger.Debug("update hook registered", "verbose", hook.Verbose)
	return nil
}

// Unregister removes the hook. It is a no-op when none is registered.
func (n *Notifier) Unregister() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unregisterLocked()
}

func (n *Notifier) unregisterLocked() error {
	if n.active == nil {
		return nil
	}
	err := n.bind(func(r Registrar) error {
		r.RegisterUpdateHook(nil)
		return nil
	})
	// The box is released even if the engine is already gone.
	n.active.release()
	n.active = nil
	if err != nil {
		return fmt.Errorf("unregister update hook: %w", err)
	}
	n.logger.Debug("update hook unregistered")
	return nil
}

// SetAuthorizer installs a statement authorizer.
func (n *Notifier) SetAuthorizer(a Authorizer) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.bind(func(r Registrar) error {
		r.RegisterAuthorizer(func(action int, arg1, arg2, arg3 string) int {
			return int(a.Authorize(Action{Code: ActionCode(action), Arg1: arg1, Arg2: arg2, Arg3: arg3}))
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("register authorizer: %w", err)
	}
	n.authorizer = a
	return nil
}

// ClearAuthorizer removes the statement authorizer.
func (n *Notifier) ClearAuthorizer() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clearAuthorizerLocked()
}

func (n *Notifier) clearAuthorizerLocked() error {
	if n.authorizer == nil {
		return nil
	}
	n.authorizer = nil
	err := n.bind(func(r Registrar) error {
		r.RegisterAuthorizer(nil)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear authorizer: %w", err)
	}
	return nil
}

// Authorizer returns the installed authorizer, or nil.
func (n *Notifier) Authorizer() Authorizer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authorizer
}

// Close unregisters the hook and authorizer. Errors from an engine that is
// already gone are reported but the hook box is still released.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	hookErr := n.unregisterLocked()
	authErr := n.clearAuthorizerLocked()
	if hookErr != nil {
		return hookErr
	}
	return authErr
}
