package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/store"
)

// Clock supplies snapshot timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Engine is the history store and revert engine for one database and one
// set of entity types.
//
// Thread-safety: Engine is safe for concurrent use. The underlying store
// serializes transactions on a single connection.
type Engine struct {
	store  *store.Store
	types  *ir.TypeSet
	clock  Clock
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over s for the given entity types.
func New(s *store.Store, types *ir.TypeSet, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		types:  types,
		clock:  SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Types returns the engine's entity types.
func (e *Engine) Types() *ir.TypeSet {
	return e.types
}

// Atomic runs fn in a single store transaction. Everything fn does through
// tx commits together or not at all. fn's error is returned unchanged.
func (e *Engine) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	return e.store.WithTx(ctx, func(stx *store.Tx) error {
		return fn(&Tx{e: e, db: stx})
	})
}

// view returns a non-transactional scope for reads.
func (e *Engine) view() *Tx {
	return &Tx{e: e, db: e.store}
}

// Get returns the live entity of typ with the given primary key.
func (e *Engine) Get(ctx context.Context, typ string, pk int64) (ir.Entity, error) {
	return e.view().Get(ctx, typ, pk)
}

// List returns every live entity of typ ordered by primary key.
func (e *Engine) List(ctx context.Context, typ string) ([]ir.Entity, error) {
	return e.view().List(ctx, typ)
}

// FindByRef returns the live entity whose history log is ref.
func (e *Engine) FindByRef(ctx context.Context, ref ir.EntityRef) (ir.Entity, error) {
	return e.view().FindByRef(ctx, ref)
}

// Ref returns the history log of a live entity.
func (e *Engine) Ref(ctx context.Context, ent ir.Entity) (ir.EntityRef, error) {
	return e.view().Ref(ctx, ent)
}

// Create inserts a new entity and records an Added snapshot.
func (e *Engine) Create(ctx context.Context, typ string, fields ir.Record) (Change, error) {
	var out Change
	err := e.Atomic(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Create(ctx, typ, fields)
		return err
	})
	return out, err
}

// Update applies changes to a live entity and records an Updated snapshot.
func (e *Engine) Update(ctx context.Context, typ string, pk int64, changes ir.Record) (Change, error) {
	var out Change
	err := e.Atomic(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Update(ctx, typ, pk, changes)
		return err
	})
	return out, err
}

// Delete removes a live entity and records a Deleted snapshot.
func (e *Engine) Delete(ctx context.Context, typ string, pk int64) (Change, error) {
	var out Change
	err := e.Atomic(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Delete(ctx, typ, pk)
		return err
	})
	return out, err
}

// RecordSnapshot appends a snapshot of ent's current field values.
func (e *Engine) RecordSnapshot(ctx context.Context, ent ir.Entity, kind ir.ChangeKind, revertedFrom *ir.Snapshot) (ir.Snapshot, error) {
	var out ir.Snapshot
	err := e.Atomic(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.RecordSnapshot(ctx, ent, kind, revertedFrom)
		return err
	})
	return out, err
}

// Snapshot returns the snapshot with the given ID.
func (e *Engine) Snapshot(ctx context.Context, id int64) (ir.Snapshot, error) {
	return e.view().Snapshot(ctx, id)
}

// SnapshotAsOf returns the newest snapshot of ref taken at or before at.
func (e *Engine) SnapshotAsOf(ctx context.Context, ref ir.EntityRef, at time.Time) (ir.Snapshot, error) {
	return e.view().SnapshotAsOf(ctx, ref, at)
}

// LatestSnapshot returns the newest snapshot of ref.
func (e *Engine) LatestSnapshot(ctx context.Context, ref ir.EntityRef) (ir.Snapshot, error) {
	return e.view().LatestSnapshot(ctx, ref)
}

// History returns ref's history log, oldest first, with version numbers.
func (e *Engine) History(ctx context.Context, ref ir.EntityRef) ([]ir.VersionedSnapshot, error) {
	return e.view().History(ctx, ref)
}

// VersionNumber returns the 1-based position of snap in its history log.
func (e *Engine) VersionNumber(ctx context.Context, snap ir.Snapshot) (int, error) {
	return e.view().VersionNumber(ctx, snap)
}

// ResolveRelation resolves a relation of snap as of snap.Moment().
func (e *Engine) ResolveRelation(ctx context.Context, snap ir.Snapshot, name string) (Relation, error) {
	return e.view().ResolveRelation(ctx, snap, name)
}

// PruneNewerThan deletes ref's snapshots taken strictly after at.
func (e *Engine) PruneNewerThan(ctx context.Context, ref ir.EntityRef, at time.Time) (int64, error) {
	var n int64
	err := e.Atomic(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.PruneNewerThan(ctx, ref, at)
		return err
	})
	return n, err
}

// RevertTo restores the live entity to snap's state.
func (e *Engine) RevertTo(ctx context.Context, snap ir.Snapshot, opts RevertOptions) (RevertResult, error) {
	ctx, span := getTracer().Start(ctx, "history.RevertTo", spanAttrs(snap.Ref, snap.ID)...)
	defer span.End()

	var out RevertResult
	err := e.Atomic(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.RevertTo(ctx, snap, opts)
		return err
	})
	if err != nil {
		recordSpanError(span, err)
		revertsTotal.WithLabelValues("failed").Inc()
		return RevertResult{}, err
	}
	revertsTotal.WithLabelValues(out.Outcome.String()).Inc()
	return out, nil
}
