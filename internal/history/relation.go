package history

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
)

// Cardinality of a resolved relation.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Relation is the result of ResolveRelation. Exactly one of Snapshot and
// Snapshots is meaningful, depending on Cardinality.
type Relation struct {
	Name        string        `json:"name"`
	Cardinality Cardinality   `json:"cardinality"`
	Snapshot    *ir.Snapshot  `json:"snapshot,omitempty"`
	Snapshots   []ir.Snapshot `json:"snapshots,omitempty"`
}

// ResolveRelation returns the related entities of snap as they were at
// snap.Moment().
//
// Forward relations (a relation field declared on snap's own type) resolve
// to the target's snapshot as of that moment. Reverse relations resolve to
// the snapshots of entities whose relation field pointed at snap's entity:
// a single snapshot for one-to-one relations, one snapshot per distinct
// related entity for one-to-many relations.
//
// Matching uses stable keys, so a related entity that was deleted and
// recreated under a new primary key is still found.
//
// Fails with NotFound for a one-to-one relation without a match. A
// one-to-many relation without matches returns an empty set.
func (t *Tx) ResolveRelation(ctx context.Context, snap ir.Snapshot, name string) (Relation, error) {
	ctx, span := getTracer().Start(ctx, "history.ResolveRelation", spanAttrs(snap.Ref, snap.ID)...)
	defer span.End()
	span.SetAttributes(attribute.String("relation", name))

	rel, err := t.resolveRelation(ctx, snap, name)
	if err != nil && !fault.IsNotFound(err) {
		recordSpanError(span, err)
	}
	return rel, err
}

func (t *Tx) resolveRelation(ctx context.Context, snap ir.Snapshot, name string) (Relation, error) {
	et, err := t.Type(snap.Ref.Type)
	if err != nil {
		return Relation{}, err
	}
	at := snap.Moment()

	if f, ok := et.Field(name); ok && f.Relation != nil {
		key, ok := snap.Fields.Get(name).(ir.String)
		if !ok {
			return Relation{}, fault.NotFound(f.Relation.Target, "", "relation %q is empty in snapshot %d", name, snap.ID)
		}
		target, err := t.SnapshotAsOf(ctx, ir.EntityRef{Type: f.Relation.Target, Key: string(key)}, at)
		if err != nil {
			return Relation{}, err
		}
		return Relation{Name: name, Cardinality: One, Snapshot: &target}, nil
	}

	for _, rev := range t.e.types.ReverseRelations(et.Name) {
		if rev.Name != name {
			continue
		}
		matches, err := t.db.LinkedSnapshotsAsOf(ctx, rev.Source, rev.Field, snap.Ref, at)
		if err != nil {
			return Relation{}, err
		}
		for i := range matches {
			matches[i].AsOf = at
		}
		if !rev.Unique {
			return Relation{Name: name, Cardinality: Many, Snapshots: matches}, nil
		}
		if len(matches) == 0 {
			return Relation{}, fault.NotFound(rev.Source, "", "no %s related to %s as of %s", rev.Source, snap.Ref, at.Format(time.RFC3339Nano))
		}
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Timestamp.After(best.Timestamp) || (m.Timestamp.Equal(best.Timestamp) && m.ID > best.ID) {
				best = m
			}
		}
		return Relation{Name: name, Cardinality: One, Snapshot: &best}, nil
	}

	return Relation{}, fault.Invalid(et.Name, "unknown relation %q", name)
}
