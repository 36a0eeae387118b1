package recstore

import (
	"github.com/roach88/recstore/internal/predicate"
	"github.com/roach88/recstore/internal/sqlgen"
)

// ReadOption narrows a Read or Recall.
type ReadOption func(*readOptions)

type readOptions struct {
	where []predicate.Predicate
	order []sqlgen.Order
	limit int
}

// Where keeps rows matching p. Repeated filters are combined with AND.
func Where(p Predicate) ReadOption {
	return func(o *readOptions) {
		if p != nil {
			o.where = append(o.where, p)
		}
	}
}

// Condition keeps rows matching a raw SQL expression. The text is inserted
// verbatim; never build it from untrusted input. Prefer Where.
func Condition(sql string, args ...any) ReadOption {
	return Where(predicate.Raw{SQL: sql, Args: args})
}

// Limit returns at most n rows. Zero or less means no limit.
func Limit(n int) ReadOption {
	return func(o *readOptions) { o.limit = n }
}

// OrderBy sorts by column. Repeated orderings apply in sequence.
func OrderBy(column string, desc bool) ReadOption {
	return func(o *readOptions) {
		o.order = append(o.order, sqlgen.Order{Column: column, Desc: desc})
	}
}

func buildQuery(table string, opts []ReadOption) sqlgen.Query {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := sqlgen.Query{Table: table, OrderBy: o.order, Limit: o.limit}
	switch len(o.where) {
	case 0:
	case 1:
		q.Where = o.where[0]
	default:
		q.Where = predicate.And{Predicates: o.where}
	}
	return q
}
