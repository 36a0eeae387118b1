// Package predicate defines structured row filters for reads.
//
// Predicates are a sealed set of nodes compiled to SQL by package sqlgen.
// Field names are validated and quoted; values are always bound as
// parameters, never interpolated:
//
//	predicate.AllOf(
//	    predicate.Eq("firstName", "Jane"),
//	    predicate.Gt("age", 30),
//	)
//
// compiles to
//
//	firstName = ? AND age > ?   -- args: ["Jane", 30]
//
// Raw is the one escape hatch: its SQL text is passed through verbatim and
// must never contain untrusted input.
package predicate
