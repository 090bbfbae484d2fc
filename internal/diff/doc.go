// Package diff compares field values and whole records.
//
// A Registry maps field kinds to Strategies. Lookup walks the kind's
// supertype chain and falls back to a generic strategy, so every kind has a
// strategy as long as the generic one is set. The Engine applies the
// registry to records: entities and snapshots of the same type.
//
// A nil Result means "no difference". Equal values never reach a strategy.
package diff
