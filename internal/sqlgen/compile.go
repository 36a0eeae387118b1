package sqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/predicate"
)

// Compile converts a predicate to an SQL boolean expression and its bound
// arguments. Values are never interpolated; Raw text is the one exception.
func Compile(p predicate.Predicate) (string, []any, error) {
	if err := predicate.Validate(p); err != nil {
		return "", nil, err
	}
	return compile(p)
}

func compile(p predicate.Predicate) (string, []any, error) {
	switch pred := predicate.Deref(p).(type) {
	case nil:
		return "1 = 1", nil, nil
	case predicate.Compare:
		return compileCompare(pred)
	case predicate.In:
		return compileIn(pred)
	case predicate.IsNull:
		return Ident(pred.Field) + " IS NULL", nil, nil
	case predicate.NotNull:
		return Ident(pred.Field) + " IS NOT NULL", nil, nil
	case predicate.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case predicate.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	case predicate.Not:
		inner, args, err := compile(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", args, nil
	case predicate.Raw:
		return pred.SQL, append([]any(nil), pred.Args...), nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileCompare(c predicate.Compare) (string, []any, error) {
	param, err := predicate.Bindable(c.Value)
	if err != nil {
		return "", nil, fmt.Errorf("bind %s: %w", c.Field, err)
	}
	return fmt.Sprintf("%s %s ?", Ident(c.Field), c.Op), []any{param}, nil
}

func compileIn(in predicate.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	marks := make([]string, len(in.Values))
	args := make([]any, len(in.Values))
	for i, v := range in.Values {
		param, err := predicate.Bindable(v)
		if err != nil {
			return "", nil, fmt.Errorf("bind %s[%d]: %w", in.Field, i, err)
		}
		marks[i] = "?"
		args[i] = param
	}
	return fmt.Sprintf("%s IN (%s)", Ident(in.Field), strings.Join(marks, ", ")), args, nil
}

func compileJunction(preds []predicate.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var args []any
	for _, child := range preds {
		sql, childArgs, err := compile(child)
		if err != nil {
			return "", nil, err
		}
		if len(preds) > 1 {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		args = append(args, childArgs...)
	}
	return strings.Join(parts, sep), args, nil
}
