package notify

import "strings"

// ActionCode is the engine's authorizer action code.
type ActionCode int

const (
	ActionCopy              ActionCode = 0
	ActionCreateIndex       ActionCode = 1
	ActionCreateTable       ActionCode = 2
	ActionCreateTempIndex   ActionCode = 3
	ActionCreateTempTable   ActionCode = 4
	ActionCreateTempTrigger ActionCode = 5
	ActionCreateTempView    ActionCode = 6
	ActionCreateTrigger     ActionCode = 7
	ActionCreateView        ActionCode = 8
	ActionDelete            ActionCode = 9
	ActionDropIndex         ActionCode = 10
	ActionDropTable         ActionCode = 11
	ActionDropTempIndex     ActionCode = 12
	ActionDropTempTable     ActionCode = 13
	ActionDropTempTrigger   ActionCode = 14
	ActionDropTempView      ActionCode = 15
	ActionDropTrigger       ActionCode = 16
	ActionDropView          ActionCode = 17
	ActionInsert            ActionCode = 18
	ActionPragma            ActionCode = 19
	ActionRead              ActionCode = 20
	ActionSelect            ActionCode = 21
	ActionTransaction       ActionCode = 22
	ActionUpdate            ActionCode = 23
	ActionAttach            ActionCode = 24
	ActionDetach            ActionCode = 25
	ActionAlterTable        ActionCode = 26
	ActionReindex           ActionCode = 27
	ActionAnalyze           ActionCode = 28
	ActionCreateVTable      ActionCode = 29
	ActionDropVTable        ActionCode = 30
	ActionFunction          ActionCode = 31
	ActionSavepoint         ActionCode = 32
	ActionRecursive         ActionCode = 33
)

// Action is one authorization request. The meaning of the arguments depends
// on Code; for ActionDelete Arg1 is the table name.
type Action struct {
	Code ActionCode
	Arg1 string
	Arg2 string
	Arg3 string
}

// Decision is an authorizer verdict.
type Decision int

const (
	// Allow lets the action proceed.
	Allow Decision = 0
	// Deny aborts the statement with an authorization error.
	Deny Decision = 1
	// Ignore disables the action; for deletes it forces row-by-row deletion.
	Ignore Decision = 2
)

// Authorizer decides whether statement actions may proceed.
type Authorizer interface {
	Authorize(Action) Decision
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(Action) Decision

// Authorize calls f.
func (f AuthorizerFunc) Authorize(a Action) Decision {
	return f(a)
}

// AllowAll permits every action.
var AllowAll Authorizer = AuthorizerFunc(func(Action) Decision { return Allow })

// TruncateGuard answers Ignore for deletes on user tables. That turns off
// the engine's truncate shortcut, so an unfiltered DELETE runs row by row and
// every row reaches the update hook. Schema table deletes are allowed.
var TruncateGuard Authorizer = AuthorizerFunc(func(a Action) Decision {
	if a.Code == ActionDelete && !strings.HasPrefix(a.Arg1, "sqlite_") {
		return Ignore
	}
	return Allow
})
