package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/verso/internal/ir"
)

// Link records that a snapshot's relation field pointed at the entity with
// the given stable key.
type Link struct {
	Field      string `json:"field"`
	TargetType string `json:"target_type"`
	TargetKey  string `json:"target_key"`
}

const snapshotColumns = `id, entity_type, entity_key, entity_pk, lookup_key, fields, digest, ts, change_kind, reverted_from`

// AppendSnapshot appends a snapshot and its relation links and returns the
// snapshot with its assigned ID. Snapshot rows are never updated afterwards.
// An empty LookupKey is stored as the ref key.
func (o ops) AppendSnapshot(ctx context.Context, snap ir.Snapshot, links []Link) (ir.Snapshot, error) {
	fields, err := marshalFields(snap.Fields)
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("append snapshot: %w", err)
	}
	if snap.LookupKey == "" {
		snap.LookupKey = snap.Ref.Key
	}

	res, err := o.q.ExecContext(ctx, `
		INSERT INTO snapshots
		(entity_type, entity_key, entity_pk, lookup_key, fields, digest, ts, change_kind, reverted_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.Ref.Type,
		snap.Ref.Key,
		snap.EntityPK,
		snap.LookupKey,
		fields,
		snap.Digest,
		encodeTime(snap.Timestamp),
		int(snap.Kind),
		nullableID(snap.RevertedFrom),
	)
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("append snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("append snapshot: %w", err)
	}
	snap.ID = id

	for _, l := range links {
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO snapshot_links (snapshot_id, field, target_type, target_key)
			VALUES (?, ?, ?, ?)
		`, id, l.Field, l.TargetType, l.TargetKey)
		if err != nil {
			return ir.Snapshot{}, fmt.Errorf("append snapshot link %s: %w", l.Field, err)
		}
	}

	return snap, nil
}

// GetSnapshot retrieves a snapshot by ID.
// Returns sql.ErrNoRows if not found.
func (o ops) GetSnapshot(ctx context.Context, id int64) (ir.Snapshot, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?
	`, id)
	return scanSnapshot(row)
}

// LatestSnapshot retrieves the newest snapshot of ref.
// Returns sql.ErrNoRows if the ref has no history.
func (o ops) LatestSnapshot(ctx context.Context, ref ir.EntityRef) (ir.Snapshot, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE entity_type = ? AND entity_key = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, ref.Type, ref.Key)
	return scanSnapshot(row)
}

// SnapshotAsOf retrieves the newest snapshot of ref taken at or before at.
// Returns sql.ErrNoRows if there is none.
func (o ops) SnapshotAsOf(ctx context.Context, ref ir.EntityRef, at time.Time) (ir.Snapshot, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE entity_type = ? AND entity_key = ? AND ts <= ?
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, ref.Type, ref.Key, encodeTime(at))
	return scanSnapshot(row)
}

// ListSnapshots returns the history log of ref, oldest first.
// Returns an empty slice (not nil) if the ref has no history.
func (o ops) ListSnapshots(ctx context.Context, ref ir.EntityRef) ([]ir.Snapshot, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE entity_type = ? AND entity_key = ?
		ORDER BY ts ASC, id ASC
	`, ref.Type, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// CountSnapshotsUpTo counts the snapshots of ref taken at or before at.
func (o ops) CountSnapshotsUpTo(ctx context.Context, ref ir.EntityRef, at time.Time) (int, error) {
	var n int
	err := o.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM snapshots
		WHERE entity_type = ? AND entity_key = ? AND ts <= ?
	`, ref.Type, ref.Key, encodeTime(at)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// PruneNewerThan deletes every snapshot of ref taken strictly after at and
// returns how many were removed.
func (o ops) PruneNewerThan(ctx context.Context, ref ir.EntityRef, at time.Time) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE entity_type = ? AND entity_key = ? AND ts > ?
	`, ref.Type, ref.Key, encodeTime(at))
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}

// DeletedHistoryKey finds the history log of a deleted entity whose last
// snapshot recorded the stable key lookupKey. The newest such log wins.
// Returns sql.ErrNoRows if there is none.
func (o ops) DeletedHistoryKey(ctx context.Context, typ, lookupKey string) (string, error) {
	var key string
	err := o.q.QueryRowContext(ctx, `
		SELECT s.entity_key FROM snapshots s
		WHERE s.entity_type = ?
		  AND s.lookup_key = ?
		  AND s.change_kind IN (?, ?)
		  AND NOT EXISTS (
			SELECT 1 FROM snapshots n
			WHERE n.entity_type = s.entity_type
			  AND n.entity_key = s.entity_key
			  AND (n.ts > s.ts OR (n.ts = s.ts AND n.id > s.id))
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM entities e
			WHERE e.entity_type = s.entity_type AND e.history_key = s.entity_key
		  )
		ORDER BY s.ts DESC, s.id DESC
		LIMIT 1
	`, typ, lookupKey, int(ir.Deleted), int(ir.RevertedDeleted)).Scan(&key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("find deleted history: %w", err)
	}
	return key, nil
}

// LinkedSnapshotsAsOf finds the entities of sourceType whose relation field
// pointed at target as of at. For every source entity that ever linked to
// target, its newest snapshot at or before at is kept when that snapshot
// still links to target and does not record a deletion.
//
// Ordered by stable key for deterministic output. Returns an empty slice
// (not nil) when nothing matches.
func (o ops) LinkedSnapshotsAsOf(ctx context.Context, sourceType, field string, target ir.EntityRef, at time.Time) ([]ir.Snapshot, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE id IN (
			SELECT MAX(s.id)
			FROM snapshots s
			WHERE s.entity_type = ?
			  AND s.ts <= ?
			  AND s.entity_key IN (
				SELECT DISTINCT ls.entity_key
				FROM snapshots ls
				JOIN snapshot_links l ON l.snapshot_id = ls.id
				WHERE ls.entity_type = ?
				  AND l.field = ?
				  AND l.target_type = ?
				  AND l.target_key = ?
			  )
			GROUP BY s.entity_key
		)
		AND change_kind NOT IN (?, ?)
		AND EXISTS (
			SELECT 1 FROM snapshot_links l
			WHERE l.snapshot_id = snapshots.id
			  AND l.field = ?
			  AND l.target_type = ?
			  AND l.target_key = ?
		)
		ORDER BY entity_key COLLATE BINARY ASC, id ASC
	`,
		sourceType, encodeTime(at),
		sourceType, field, target.Type, target.Key,
		int(ir.Deleted), int(ir.RevertedDeleted),
		field, target.Type, target.Key,
	)
	if err != nil {
		return nil, fmt.Errorf("query linked snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// SnapshotLinks returns the relation links recorded for a snapshot, ordered
// by field name.
func (o ops) SnapshotLinks(ctx context.Context, id int64) ([]Link, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT field, target_type, target_key FROM snapshot_links
		WHERE snapshot_id = ?
		ORDER BY field COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query snapshot links: %w", err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.Field, &l.TargetType, &l.TargetKey); err != nil {
			return nil, fmt.Errorf("scan snapshot link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot links: %w", err)
	}
	return links, nil
}

func collectSnapshots(rows *sql.Rows) ([]ir.Snapshot, error) {
	defer rows.Close()

	snaps := []ir.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

func scanSnapshot(row rowScanner) (ir.Snapshot, error) {
	var (
		snap     ir.Snapshot
		fields   string
		ts       int64
		kind     int
		reverted sql.NullInt64
	)
	err := row.Scan(
		&snap.ID,
		&snap.Ref.Type,
		&snap.Ref.Key,
		&snap.EntityPK,
		&snap.LookupKey,
		&fields,
		&snap.Digest,
		&ts,
		&kind,
		&reverted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return ir.Snapshot{}, err
		}
		return ir.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	r, err := unmarshalFields(fields)
	if err != nil {
		return ir.Snapshot{}, err
	}
	snap.Fields = r
	snap.Timestamp = decodeTime(ts)
	snap.Kind = ir.ChangeKind(kind)
	if reverted.Valid {
		id := reverted.Int64
		snap.RevertedFrom = &id
	}
	return snap, nil
}
