// Package harness runs end-to-end versioning scenarios.
//
// A scenario compiles an entity schema, drives the history engine, the
// revert engine, the diff engine and the merge layer through a list of
// steps, then checks the trace and the final state.
//
// # Scenario Format
//
// Scenarios are YAML files validated against an embedded JSON Schema:
//
//	name: edit_conflict
//	description: "Two editors open the same page"
//	schema: wiki.cue
//	merge: default
//	steps:
//	  - op: create
//	    type: Page
//	    as: home
//	    values: { name: Home, content: "Welcome" }
//	  - op: open
//	    entity: home
//	    session: alice
//	  - op: submit
//	    session: alice
//	    values: { content: "Welcome back" }
//	    expect:
//	      case: ok
//	      result: { state: clean }
//	assertions:
//	  - type: state
//	    path: entities.home.fields.content
//	    equals: "Welcome back"
//	  - type: trace_count
//	    op: submit
//	    case: conflict
//	    count: 0
//
// # Operations
//
//   - create: create an entity of type and remember it under as
//   - update, delete, get: change or read the entity named by entity
//   - open, submit: start an edit session and submit values through it
//   - revert: revert entity to history version (optionally delete_newer)
//   - diff: compare history versions from and to
//   - tick: advance the clock by count steps
//
// Every step produces a trace event with a case: "ok" on success, or the
// lowercased fault code ("conflict", "not_found", ...) on failure. A step
// without an expect clause must succeed.
//
// # Assertion Types
//
//   - state: a gjson path into the final state equals a value
//   - trace_order: ops appear in the given order
//   - trace_count: op (optionally with case) occurs exactly count times
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory SQLite store and a
// testutil.DeterministicClock, so traces are identical across runs and can
// be compared against golden files with RunWithGolden.
package harness
