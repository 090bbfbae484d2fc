package history

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/store"
)

// backend is implemented by both *store.Store and *store.Tx.
type backend interface {
	NextPK(ctx context.Context, typ string) (int64, error)
	InsertEntity(ctx context.Context, ent ir.Entity, key, historyKey string) error
	UpdateEntity(ctx context.Context, ent ir.Entity, key string) error
	DeleteEntity(ctx context.Context, typ string, pk int64) error
	GetEntity(ctx context.Context, typ string, pk int64) (ir.Entity, error)
	FindEntityByKey(ctx context.Context, typ, key string) (ir.Entity, error)
	FindEntityByHistoryKey(ctx context.Context, typ, historyKey string) (ir.Entity, error)
	EntityHistoryKey(ctx context.Context, typ string, pk int64) (string, error)
	HistoryKeyInUse(ctx context.Context, typ, historyKey string) (bool, error)
	ListEntities(ctx context.Context, typ string) ([]ir.Entity, error)

	AppendSnapshot(ctx context.Context, snap ir.Snapshot, links []store.Link) (ir.Snapshot, error)
	GetSnapshot(ctx context.Context, id int64) (ir.Snapshot, error)
	LatestSnapshot(ctx context.Context, ref ir.EntityRef) (ir.Snapshot, error)
	SnapshotAsOf(ctx context.Context, ref ir.EntityRef, at time.Time) (ir.Snapshot, error)
	ListSnapshots(ctx context.Context, ref ir.EntityRef) ([]ir.Snapshot, error)
	CountSnapshotsUpTo(ctx context.Context, ref ir.EntityRef, at time.Time) (int, error)
	PruneNewerThan(ctx context.Context, ref ir.EntityRef, at time.Time) (int64, error)
	DeletedHistoryKey(ctx context.Context, typ, lookupKey string) (string, error)
	LinkedSnapshotsAsOf(ctx context.Context, sourceType, field string, target ir.EntityRef, at time.Time) ([]ir.Snapshot, error)
}

// Tx is the engine bound to one store scope. Inside Engine.Atomic every call
// shares the same transaction.
type Tx struct {
	e  *Engine
	db backend
}

// Change is the result of a create, update or delete.
type Change struct {
	Entity ir.Entity `json:"entity"`

	// Ref names the entity's history log.
	Ref ir.EntityRef `json:"ref"`

	// Snapshot is nil when the entity type is not versioned.
	Snapshot *ir.Snapshot `json:"snapshot,omitempty"`
}

// Type returns the declaration of the named entity type.
func (t *Tx) Type(name string) (*ir.EntityType, error) {
	typ, ok := t.e.types.Type(name)
	if !ok {
		return nil, fault.Invalid(name, "unknown entity type")
	}
	return typ, nil
}

// Now returns the engine clock's current time in UTC.
func (t *Tx) Now() time.Time {
	return t.e.clock.Now().UTC()
}

// Get returns the live entity of typ with the given primary key.
func (t *Tx) Get(ctx context.Context, typ string, pk int64) (ir.Entity, error) {
	ent, err := t.db.GetEntity(ctx, typ, pk)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, fault.NotFound(typ, ir.PKKey(pk), "no live entity")
	}
	return ent, err
}

// List returns every live entity of typ.
func (t *Tx) List(ctx context.Context, typ string) ([]ir.Entity, error) {
	if _, err := t.Type(typ); err != nil {
		return nil, err
	}
	return t.db.ListEntities(ctx, typ)
}

// FindByRef returns the live entity whose history log is ref.
func (t *Tx) FindByRef(ctx context.Context, ref ir.EntityRef) (ir.Entity, error) {
	ent, err := t.db.FindEntityByHistoryKey(ctx, ref.Type, ref.Key)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, fault.NotFound(ref.Type, ref.Key, "no live entity")
	}
	return ent, err
}

// Ref returns the history log of a live entity. The ref is fixed when the
// entity is inserted and does not follow later edits to unique fields.
func (t *Tx) Ref(ctx context.Context, ent ir.Entity) (ir.EntityRef, error) {
	if _, err := t.Type(ent.Type); err != nil {
		return ir.EntityRef{}, err
	}
	key, err := t.db.EntityHistoryKey(ctx, ent.Type, ent.PK)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.EntityRef{}, fault.NotFound(ent.Type, ir.PKKey(ent.PK), "no live entity")
	}
	if err != nil {
		return ir.EntityRef{}, err
	}
	return ir.EntityRef{Type: ent.Type, Key: key}, nil
}

// lookupKey computes the stable key of ent's current values.
func lookupKey(et *ir.EntityType, ent ir.Entity) (string, error) {
	key, err := ir.StableKey(et, ent.PK, ent.Fields)
	if err != nil {
		return "", fault.Invalid(ent.Type, "%v", err)
	}
	return key, nil
}

// Create inserts a new entity built from fields. Fields must be editable;
// omitted fields are stored as null.
func (t *Tx) Create(ctx context.Context, typ string, fields ir.Record) (Change, error) {
	et, err := t.Type(typ)
	if err != nil {
		return Change{}, err
	}
	values, err := t.checkFields(ctx, et, fields)
	if err != nil {
		return Change{}, err
	}
	for _, f := range et.Fields {
		if _, ok := values[f.Name]; !ok {
			values[f.Name] = ir.Null{}
		}
	}

	pk, err := t.db.NextPK(ctx, typ)
	if err != nil {
		return Change{}, err
	}
	return t.insert(ctx, et, pk, values, "", ir.Added, nil)
}

// Update merges changes into the live entity. Fields not named in changes
// keep their current values.
func (t *Tx) Update(ctx context.Context, typ string, pk int64, changes ir.Record) (Change, error) {
	et, err := t.Type(typ)
	if err != nil {
		return Change{}, err
	}
	checked, err := t.checkFields(ctx, et, changes)
	if err != nil {
		return Change{}, err
	}
	current, err := t.Get(ctx, typ, pk)
	if err != nil {
		return Change{}, err
	}
	values := current.Fields.Clone()
	for k, v := range checked {
		values[k] = v
	}
	return t.save(ctx, et, current, values, ir.Updated, nil)
}

// Delete removes the live entity and records its final state as Deleted.
func (t *Tx) Delete(ctx context.Context, typ string, pk int64) (Change, error) {
	et, err := t.Type(typ)
	if err != nil {
		return Change{}, err
	}
	current, err := t.Get(ctx, typ, pk)
	if err != nil {
		return Change{}, err
	}
	return t.remove(ctx, et, current, ir.Deleted, nil)
}

// insert stores a new live entity with the given primary key. An empty
// historyKey starts a new history log or continues the log of a deleted
// entity with the same unique field values.
func (t *Tx) insert(ctx context.Context, et *ir.EntityType, pk int64, values ir.Record, historyKey string, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (Change, error) {
	ent := ir.Entity{Type: et.Name, PK: pk, Fields: values}
	t.stamp(et, &ent, ir.Null{})

	key, err := lookupKey(et, ent)
	if err != nil {
		return Change{}, err
	}
	if err := t.ensureKeyFree(ctx, et.Name, key, pk); err != nil {
		return Change{}, err
	}
	if historyKey == "" {
		if historyKey, err = t.allocateHistoryKey(ctx, et, key); err != nil {
			return Change{}, err
		}
	}
	if err := t.db.InsertEntity(ctx, ent, key, historyKey); err != nil {
		return Change{}, err
	}
	ref := ir.EntityRef{Type: et.Name, Key: historyKey}
	return t.track(ctx, et, ent, ref, key, kind, revertedFrom)
}

// save overwrites an existing live entity with values.
func (t *Tx) save(ctx context.Context, et *ir.EntityType, current ir.Entity, values ir.Record, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (Change, error) {
	ent := ir.Entity{Type: et.Name, PK: current.PK, Fields: values}
	t.stamp(et, &ent, current.Fields.Get(et.VersionField))

	ref, err := t.Ref(ctx, current)
	if err != nil {
		return Change{}, err
	}
	key, err := lookupKey(et, ent)
	if err != nil {
		return Change{}, err
	}
	if err := t.ensureKeyFree(ctx, et.Name, key, current.PK); err != nil {
		return Change{}, err
	}
	if err := t.db.UpdateEntity(ctx, ent, key); err != nil {
		return Change{}, err
	}
	return t.track(ctx, et, ent, ref, key, kind, revertedFrom)
}

// remove deletes a live entity and records the deletion.
func (t *Tx) remove(ctx context.Context, et *ir.EntityType, current ir.Entity, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (Change, error) {
	ref, err := t.Ref(ctx, current)
	if err != nil {
		return Change{}, err
	}
	key, err := lookupKey(et, current)
	if err != nil {
		return Change{}, err
	}
	if err := t.db.DeleteEntity(ctx, et.Name, current.PK); err != nil {
		return Change{}, err
	}
	return t.track(ctx, et, current, ref, key, kind, revertedFrom)
}

// track records a snapshot when the type participates in history.
func (t *Tx) track(ctx context.Context, et *ir.EntityType, ent ir.Entity, ref ir.EntityRef, key string, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (Change, error) {
	out := Change{Entity: ent, Ref: ref}
	if !et.Versioned {
		return out, nil
	}
	snap, err := t.record(ctx, et, ent, ref, key, kind, revertedFrom)
	if err != nil {
		return Change{}, err
	}
	out.Snapshot = &snap
	return out, nil
}

// allocateHistoryKey picks the history log for a newly inserted entity.
//
// When the type has unique fields and a deleted entity last recorded the
// same values, its log is continued. Otherwise the log is named after key,
// with a "#n" suffix if an older log already uses that name.
func (t *Tx) allocateHistoryKey(ctx context.Context, et *ir.EntityType, key string) (string, error) {
	if et.Versioned && len(et.UniqueFields) > 0 {
		prev, err := t.db.DeletedHistoryKey(ctx, et.Name, key)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}
	candidate := key
	for n := 2; ; n++ {
		used, err := t.db.HistoryKeyInUse(ctx, et.Name, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = key + "#" + strconv.Itoa(n)
	}
}

// stamp fills generated fields: the identity field, auto-now fields and the
// version field, which counts saves starting at 1.
func (t *Tx) stamp(et *ir.EntityType, ent *ir.Entity, prevVersion ir.Value) {
	now := ""
	for _, f := range et.Fields {
		switch {
		case f.AutoID:
			ent.Fields[f.Name] = ir.Int(ent.PK)
		case f.AutoNow:
			if now == "" {
				now = t.Now().Format(time.RFC3339Nano)
			}
			ent.Fields[f.Name] = ir.String(now)
		}
	}
	if et.VersionField != "" {
		next := ir.Int(1)
		if v, ok := prevVersion.(ir.Int); ok {
			next = v + 1
		}
		ent.Fields[et.VersionField] = next
	}
}

// ensureKeyFree fails when another live entity of typ already holds key.
func (t *Tx) ensureKeyFree(ctx context.Context, typ, key string, pk int64) error {
	other, err := t.db.FindEntityByKey(ctx, typ, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.PK != pk {
		return fault.Invalid(typ, "unique fields %s already used by pk %d", key, other.PK)
	}
	return nil
}
