// Package history implements the history store and revert engine.
//
// Every create, update, delete and revert of an entity whose type is
// versioned appends an immutable snapshot to the entity's history log. The
// log supports point-in-time reconstruction (SnapshotAsOf), relation
// resolution as of a historical moment (ResolveRelation) and reverting a live
// entity to any earlier snapshot (RevertTo).
//
// IDENTITY:
//
// Snapshots are keyed by the entity's stable key, not its primary key. The
// stable key is the canonical encoding of the type's unique fields, or the
// primary key at the time when none are declared. Primary keys can be
// reassigned after a delete, stable keys cannot drift onto another entity.
//
// TRANSACTIONS:
//
// Engine methods each run in their own store transaction. Callers that need
// several steps to be atomic, such as the merge layer's compare-then-write,
// use Engine.Atomic and call the same operations on the *Tx it provides.
//
// CAVEAT:
//
// Version numbers are derived by counting snapshots with a timestamp at or
// before the snapshot's own. They are display values, not identities; with
// concurrent writers on separate databases they can repeat.
package history
