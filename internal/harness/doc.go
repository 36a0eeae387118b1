// Package harness runs declarative conformance scenarios against recstore.
//
// Each scenario opens a fresh database, applies a list of steps to document
// tables, records every step and every row change in a trace, and evaluates
// assertions against the trace and the final table contents.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: jane_judy
//	description: "Records read back in insertion order"
//	table: people
//	steps:
//	  - op: write
//	    record: { id: 1, name: Jane }
//	  - op: read
//	    limit: 10
//	    expect:
//	      rows:
//	        - { id: 1, name: Jane }
//	assertions:
//	  - type: row_count
//	    count: 1
//	  - type: changes
//	    kind: insert
//	    count: 1
//
// # Step Operations
//
//   - write: upsert record; the trace carries the id that was written
//   - delete: remove the row with id
//   - read: read rows, narrowed by where (equality), order_by, desc and limit
//   - recall: read history as of an offset from the scenario clock's start
//   - snapshot: copy the row with id into history
//   - enable_history: create the history table
//   - columns: list the table's columns with their affinities
//   - advance: move the scenario clock forward by a duration
//
// A step's expect clause may list the exact rows (subset match per row), a
// row count, the column list, or an error substring the step must fail with.
//
// # Assertion Types
//
//   - rows: the table's rows, ordered by id, match the expected rows
//   - row_count: the table holds exactly count rows
//   - changes: exactly count row changes of kind were seen on the table
//
// # Deterministic Testing
//
// The scenario clock starts at testutil.Epoch and only moves on advance
// steps, so history timestamps and traces are identical across runs. Traces
// are compared against golden files with RunWithGolden.
package harness
