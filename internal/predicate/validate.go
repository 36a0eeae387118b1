package predicate

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError describes a malformed predicate.
type ValidationError struct {
	Path   string // location within the tree, e.g. "and[1].not"
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid predicate: " + e.Reason
	}
	return fmt.Sprintf("invalid predicate at %s: %s", e.Path, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true, OpLike: true,
}

// Validate checks the structure of p. A nil predicate is valid and matches
// every row.
func Validate(p Predicate) error {
	return validate(p, "")
}

func validate(p Predicate, path string) error {
	switch pred := Deref(p).(type) {
	case nil:
		if path != "" {
			return &ValidationError{Path: path, Reason: "nil predicate"}
		}
		return nil
	case Compare:
		if err := checkField(pred.Field, path); err != nil {
			return err
		}
		if !validOps[pred.Op] {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown operator %q", pred.Op)}
		}
		if _, err := Bindable(pred.Value); err != nil {
			return &ValidationError{Path: path, Reason: err.Error()}
		}
	case In:
		if err := checkField(pred.Field, path); err != nil {
			return err
		}
		for i, v := range pred.Values {
			if _, err := Bindable(v); err != nil {
				return &ValidationError{Path: join(path, fmt.Sprintf("in[%d]", i)), Reason: err.Error()}
			}
		}
	case IsNull:
		return checkField(pred.Field, path)
	case NotNull:
		return checkField(pred.Field, path)
	case And:
		for i, child := range pred.Predicates {
			if err := validate(child, join(path, fmt.Sprintf("and[%d]", i))); err != nil {
				return err
			}
		}
	case Or:
		for i, child := range pred.Predicates {
			if err := validate(child, join(path, fmt.Sprintf("or[%d]", i))); err != nil {
				return err
			}
		}
	case Not:
		return validate(pred.Predicate, join(path, "not"))
	case Raw:
		if strings.TrimSpace(pred.SQL) == "" {
			return &ValidationError{Path: path, Reason: "empty raw condition"}
		}
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unsupported predicate type %T", p)}
	}
	return nil
}

func checkField(field, path string) error {
	if field == "" {
		return &ValidationError{Path: path, Reason: "empty field name"}
	}
	if strings.ContainsRune(field, 0) {
		return &ValidationError{Path: path, Reason: "field name contains NUL"}
	}
	return nil
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}
