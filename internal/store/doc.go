// Package store provides SQLite-backed storage for live entities and their
// append-only snapshot history.
//
// Tables:
//   - entities: the current state of every live entity, keyed by (type, pk)
//   - snapshots: the history log, one row per create/update/delete/revert
//   - snapshot_links: relation fields of each snapshot, keyed by the target's
//     stable key so historical relations survive delete/recreate cycles
//
// # Ordering
//
// Snapshot reads are ordered by (ts ASC, id ASC). Timestamps are stored as
// integer nanoseconds since the Unix epoch.
//
// # Transactions
//
// Every data method is defined once and is available on both *Store and *Tx.
// Reverts, prunes and merge submissions run inside WithTx so a failure cannot
// leave a live entity out of step with its history.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one open connection: compare-then-write sequences are serialized
package store
