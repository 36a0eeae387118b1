// Package value provides the typed intermediate that sits between engine
// rows and Go records.
//
// A row read from the engine is first assembled into an Object (column name
// to Value) and only then resolved into a caller's type. The same values are
// used for canonical JSON, which is how composite record fields are stored in
// BLOB columns and how scenario traces are written.
//
// Canonical JSON here follows RFC 8785 ordering and escaping rules:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping
//   - strings NFC normalized
//
// Unlike RFC 8785, NaN and infinities are rejected rather than coerced.
//
// value imports nothing internal.
package value
