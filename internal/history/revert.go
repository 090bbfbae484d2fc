package history

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/verso/internal/ir"
)

// RevertOptions controls RevertTo.
type RevertOptions struct {
	// DeleteNewer prunes every snapshot newer than the target before
	// reverting, so the history ends at the target plus the revert itself.
	DeleteNewer bool
}

// RevertOutcome says what RevertTo did to the live entity.
type RevertOutcome int

const (
	// RevertUpdated: the live entity was overwritten (Reverted snapshot).
	RevertUpdated RevertOutcome = iota
	// RevertRecreated: no live entity existed; it was recreated
	// (Reverted/Added snapshot).
	RevertRecreated
	// RevertDeleted: the target recorded a deletion; the live entity was
	// deleted (Reverted/Deleted snapshot).
	RevertDeleted
	// RevertNoop: the target recorded a deletion and no live entity exists.
	RevertNoop
)

func (o RevertOutcome) String() string {
	switch o {
	case RevertUpdated:
		return "updated"
	case RevertRecreated:
		return "recreated"
	case RevertDeleted:
		return "deleted"
	case RevertNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// RevertResult describes a completed revert.
type RevertResult struct {
	Outcome RevertOutcome `json:"outcome"`

	// Entity is the live entity after the revert; nil when it was deleted or
	// never existed.
	Entity *ir.Entity `json:"entity,omitempty"`

	// Snapshot is the snapshot appended by the revert; nil for RevertNoop or
	// when the type is not versioned.
	Snapshot *ir.Snapshot `json:"snapshot,omitempty"`

	// Pruned counts snapshots removed by DeleteNewer.
	Pruned int64 `json:"pruned"`
}

// MarshalText renders the outcome by name.
func (o RevertOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// RevertTo brings the live entity back to the state recorded in snap.
//
// The live entity is the one writing to the snapshot's history log, even if
// its unique fields changed since; it keeps its current primary key. If none
// exists, the entity is recreated on the same history log, reusing the
// snapshot's primary key when it is free. A target that recorded a deletion
// deletes the live entity instead.
//
// The target is re-read by ID first; a pruned or unknown snapshot fails with
// NotFound. Relation fields whose target no longer exists live also fail
// with NotFound.
func (t *Tx) RevertTo(ctx context.Context, snap ir.Snapshot, opts RevertOptions) (RevertResult, error) {
	target, err := t.Snapshot(ctx, snap.ID)
	if err != nil {
		return RevertResult{}, err
	}
	et, err := t.Type(target.Ref.Type)
	if err != nil {
		return RevertResult{}, err
	}

	live, err := t.db.FindEntityByHistoryKey(ctx, target.Ref.Type, target.Ref.Key)
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return RevertResult{}, err
	}

	var out RevertResult
	if opts.DeleteNewer {
		out.Pruned, err = t.PruneNewerThan(ctx, target.Ref, target.Timestamp)
		if err != nil {
			return RevertResult{}, err
		}
	}

	if target.Kind.IsDeletion() {
		if !found {
			out.Outcome = RevertNoop
			t.logReverted(target, out)
			return out, nil
		}
		ch, err := t.remove(ctx, et, live, ir.RevertedDeleted, &target)
		if err != nil {
			return RevertResult{}, err
		}
		out.Outcome = RevertDeleted
		out.Snapshot = ch.Snapshot
		t.logReverted(target, out)
		return out, nil
	}

	values, err := t.liveFields(ctx, et, target)
	if err != nil {
		return RevertResult{}, err
	}

	var ch Change
	if found {
		ch, err = t.save(ctx, et, live, values, ir.Reverted, &target)
		out.Outcome = RevertUpdated
	} else {
		pk, perr := t.recreatePK(ctx, et.Name, target.EntityPK)
		if perr != nil {
			return RevertResult{}, perr
		}
		ch, err = t.insert(ctx, et, pk, values, target.Ref.Key, ir.RevertedAdded, &target)
		out.Outcome = RevertRecreated
	}
	if err != nil {
		return RevertResult{}, err
	}

	out.Entity = &ch.Entity
	out.Snapshot = ch.Snapshot
	t.logReverted(target, out)
	return out, nil
}

// recreatePK reuses the snapshot's primary key if no live entity holds it.
func (t *Tx) recreatePK(ctx context.Context, typ string, pk int64) (int64, error) {
	_, err := t.db.GetEntity(ctx, typ, pk)
	if errors.Is(err, sql.ErrNoRows) {
		return pk, nil
	}
	if err != nil {
		return 0, err
	}
	return t.db.NextPK(ctx, typ)
}

func (t *Tx) logReverted(target ir.Snapshot, out RevertResult) {
	t.e.logger.Info("entity reverted",
		"type", target.Ref.Type,
		"key", target.Ref.Key,
		"target", target.ID,
		"outcome", out.Outcome.String(),
		"pruned", out.Pruned,
	)
}
