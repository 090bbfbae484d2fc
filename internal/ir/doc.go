// Package ir holds the data model shared by every verso package: field values,
// records, entity type declarations, live entities and history snapshots.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float field values - canonical encoding must be byte-stable
//   - Snapshots hold relation targets as stable keys, never raw primary keys
//   - All JSON tags use snake_case
package ir
