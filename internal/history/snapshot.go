package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/store"
)

// RecordSnapshot appends a snapshot of ent's current field values to its
// history log. ent must be live. Relation fields are stored as the target's
// history key.
//
// The timestamp comes from the engine clock. If the clock has not moved past
// the ref's latest snapshot the new one is stamped 1ns later, so every
// history log stays strictly time-ordered.
func (t *Tx) RecordSnapshot(ctx context.Context, ent ir.Entity, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (ir.Snapshot, error) {
	et, err := t.Type(ent.Type)
	if err != nil {
		return ir.Snapshot{}, err
	}
	ref, err := t.Ref(ctx, ent)
	if err != nil {
		return ir.Snapshot{}, err
	}
	key, err := lookupKey(et, ent)
	if err != nil {
		return ir.Snapshot{}, err
	}
	return t.record(ctx, et, ent, ref, key, kind, revertedFrom)
}

func (t *Tx) record(ctx context.Context, et *ir.EntityType, ent ir.Entity, ref ir.EntityRef, key string, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (ir.Snapshot, error) {
	if !kind.Valid() {
		return ir.Snapshot{}, fault.Invalid(ent.Type, "invalid change kind %d", int(kind))
	}

	fields, links, err := t.snapshotFields(ctx, et, ent.Fields)
	if err != nil {
		return ir.Snapshot{}, err
	}
	digest, err := ir.SnapshotDigest(ent.Type, fields)
	if err != nil {
		return ir.Snapshot{}, fault.Invalid(ent.Type, "%v", err)
	}

	ts := t.Now()
	latest, err := t.db.LatestSnapshot(ctx, ref)
	switch {
	case err == nil:
		if !ts.After(latest.Timestamp) {
			ts = latest.Timestamp.Add(time.Nanosecond)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return ir.Snapshot{}, err
	}

	snap := ir.Snapshot{
		Ref:       ref,
		EntityPK:  ent.PK,
		LookupKey: key,
		Fields:    fields,
		Timestamp: ts,
		Kind:      kind,
		Digest:    digest,
	}
	if revertedFrom != nil {
		id := revertedFrom.ID
		snap.RevertedFrom = &id
	}

	snap, err = t.db.AppendSnapshot(ctx, snap, links)
	if err != nil {
		return ir.Snapshot{}, err
	}

	snapshotsRecorded.WithLabelValues(ent.Type, kind.String()).Inc()
	t.e.logger.Debug("snapshot recorded",
		"type", ent.Type,
		"key", ref.Key,
		"id", snap.ID,
		"kind", kind.String(),
	)
	return snap, nil
}

// snapshotFields copies live values, replacing relation primary keys with
// the target's history key. A relation whose target no longer exists is
// recorded as null.
func (t *Tx) snapshotFields(ctx context.Context, et *ir.EntityType, live ir.Record) (ir.Record, []store.Link, error) {
	fields := make(ir.Record, len(et.Fields))
	var links []store.Link
	for _, f := range et.Fields {
		v := live.Get(f.Name)
		if f.Relation == nil {
			fields[f.Name] = v
			continue
		}
		pk, ok := v.(ir.Int)
		if !ok {
			fields[f.Name] = ir.Null{}
			continue
		}
		target, err := t.db.GetEntity(ctx, f.Relation.Target, int64(pk))
		if errors.Is(err, sql.ErrNoRows) {
			t.e.logger.Warn("relation target missing at snapshot time",
				"type", et.Name,
				"field", f.Name,
				"target", f.Relation.Target,
				"pk", int64(pk),
			)
			fields[f.Name] = ir.Null{}
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		ref, err := t.Ref(ctx, target)
		if err != nil {
			return nil, nil, err
		}
		fields[f.Name] = ir.String(ref.Key)
		links = append(links, store.Link{Field: f.Name, TargetType: ref.Type, TargetKey: ref.Key})
	}
	return fields, links, nil
}

// liveFields is the inverse of snapshotFields: relation keys are mapped back
// to the primary key of the live entity writing to that history log. Fields no longer
// declared are dropped; newly declared ones are null.
func (t *Tx) liveFields(ctx context.Context, et *ir.EntityType, snap ir.Snapshot) (ir.Record, error) {
	fields := make(ir.Record, len(et.Fields))
	for _, f := range et.Fields {
		v := snap.Fields.Get(f.Name)
		if f.Relation == nil {
			fields[f.Name] = v
			continue
		}
		key, ok := v.(ir.String)
		if !ok {
			fields[f.Name] = ir.Null{}
			continue
		}
		target, err := t.FindByRef(ctx, ir.EntityRef{Type: f.Relation.Target, Key: string(key)})
		if err != nil {
			return nil, err
		}
		fields[f.Name] = ir.Int(target.PK)
	}
	return fields, nil
}

// LiveValues returns snap's fields in live form, with relation keys mapped
// back to the primary keys of the entities holding them now.
func (t *Tx) LiveValues(ctx context.Context, snap ir.Snapshot) (ir.Record, error) {
	et, err := t.Type(snap.Ref.Type)
	if err != nil {
		return nil, err
	}
	return t.liveFields(ctx, et, snap)
}

// Snapshot returns the snapshot with the given ID.
func (t *Tx) Snapshot(ctx context.Context, id int64) (ir.Snapshot, error) {
	snap, err := t.db.GetSnapshot(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Snapshot{}, &fault.Error{
			Code:    fault.CodeNotFound,
			Message: "no such snapshot",
			Details: map[string]string{"id": formatID(id)},
		}
	}
	return snap, err
}

// SnapshotAsOf returns the newest snapshot of ref taken at or before at. The
// returned snapshot resolves relations as of at.
func (t *Tx) SnapshotAsOf(ctx context.Context, ref ir.EntityRef, at time.Time) (ir.Snapshot, error) {
	snap, err := t.db.SnapshotAsOf(ctx, ref, at)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Snapshot{}, fault.NotFound(ref.Type, ref.Key, "no snapshot at or before %s", at.UTC().Format(time.RFC3339Nano))
	}
	if err != nil {
		return ir.Snapshot{}, err
	}
	snap.AsOf = at.UTC()
	return snap, nil
}

// LatestSnapshot returns the newest snapshot of ref.
func (t *Tx) LatestSnapshot(ctx context.Context, ref ir.EntityRef) (ir.Snapshot, error) {
	snap, err := t.db.LatestSnapshot(ctx, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Snapshot{}, fault.NotFound(ref.Type, ref.Key, "no history")
	}
	return snap, err
}

// History returns ref's history log, oldest first. The version number of
// each entry counts the snapshots at or before its timestamp.
func (t *Tx) History(ctx context.Context, ref ir.EntityRef) ([]ir.VersionedSnapshot, error) {
	snaps, err := t.db.ListSnapshots(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]ir.VersionedSnapshot, len(snaps))
	for i, s := range snaps {
		v := i + 1
		for j := i + 1; j < len(snaps) && snaps[j].Timestamp.Equal(s.Timestamp); j++ {
			v = j + 1
		}
		out[i] = ir.VersionedSnapshot{Snapshot: s, Version: v}
	}
	return out, nil
}

// VersionNumber returns the 1-based position of snap in its history log.
func (t *Tx) VersionNumber(ctx context.Context, snap ir.Snapshot) (int, error) {
	return t.db.CountSnapshotsUpTo(ctx, snap.Ref, snap.Timestamp)
}

// PruneNewerThan deletes ref's snapshots taken strictly after at and returns
// how many were removed.
func (t *Tx) PruneNewerThan(ctx context.Context, ref ir.EntityRef, at time.Time) (int64, error) {
	n, err := t.db.PruneNewerThan(ctx, ref, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.e.logger.Info("history pruned", "type", ref.Type, "key", ref.Key, "after", at, "removed", n)
	}
	return n, nil
}
