package merge

import (
	"context"
	"time"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
)

type source int

const (
	fromVersionField source = iota
	fromHistory
	fromAutoNow
)

// fingerprintSource picks how et is fingerprinted: its version field, then
// its history, then its auto-now field.
func fingerprintSource(et *ir.EntityType) (source, error) {
	switch {
	case et.VersionField != "":
		return fromVersionField, nil
	case et.Versioned:
		return fromHistory, nil
	}
	if _, ok := et.AutoNowField(); ok {
		return fromAutoNow, nil
	}
	return 0, fault.Configuration(et.Name, "no version field, history or auto-updated field to fingerprint")
}

func fingerprint(ctx context.Context, tx *history.Tx, et *ir.EntityType, ent ir.Entity) (string, error) {
	src, err := fingerprintSource(et)
	if err != nil {
		return "", err
	}
	switch src {
	case fromVersionField:
		return ir.Text(ent.Fields.Get(et.VersionField)), nil
	case fromHistory:
		ref, err := tx.Ref(ctx, ent)
		if err != nil {
			return "", err
		}
		snap, err := tx.LatestSnapshot(ctx, ref)
		if err != nil {
			return "", err
		}
		return snap.Timestamp.UTC().Format(time.RFC3339Nano), nil
	default:
		f, _ := et.AutoNowField()
		return ir.Text(ent.Fields.Get(f.Name)), nil
	}
}

// ancestor returns the live-form field values the fingerprint was taken
// from, or nil when history cannot supply them.
func ancestor(ctx context.Context, tx *history.Tx, et *ir.EntityType, current ir.Entity, fp string) ir.Record {
	if !et.Versioned {
		return nil
	}
	src, err := fingerprintSource(et)
	if err != nil {
		return nil
	}
	ref, err := tx.Ref(ctx, current)
	if err != nil {
		return nil
	}

	var snap ir.Snapshot
	switch src {
	case fromHistory:
		at, err := time.Parse(time.RFC3339Nano, fp)
		if err != nil {
			return nil
		}
		if snap, err = tx.SnapshotAsOf(ctx, ref, at); err != nil {
			return nil
		}
	case fromVersionField:
		log, err := tx.History(ctx, ref)
		if err != nil {
			return nil
		}
		found := false
		for _, vs := range log {
			if ir.Text(vs.Fields.Get(et.VersionField)) == fp {
				snap, found = vs.Snapshot, true
			}
		}
		if !found {
			return nil
		}
	default:
		return nil
	}

	values, err := tx.LiveValues(ctx, snap)
	if err != nil {
		return nil
	}
	return values
}
