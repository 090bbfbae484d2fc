package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/verso/internal/ir"
)

// NextPK returns the primary key the next inserted entity of typ should use.
// Keys are max+1, so the key of a deleted entity may be handed out again.
func (o ops) NextPK(ctx context.Context, typ string) (int64, error) {
	var pk int64
	err := o.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(pk), 0) + 1 FROM entities WHERE entity_type = ?
	`, typ).Scan(&pk)
	if err != nil {
		return 0, fmt.Errorf("next pk: %w", err)
	}
	return pk, nil
}

// InsertEntity stores a new live entity under its stable key. historyKey
// names the entity's history log and never changes afterwards.
func (o ops) InsertEntity(ctx context.Context, ent ir.Entity, key, historyKey string) error {
	fields, err := marshalFields(ent.Fields)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO entities (entity_type, pk, entity_key, history_key, fields)
		VALUES (?, ?, ?, ?, ?)
	`, ent.Type, ent.PK, key, historyKey, fields)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// UpdateEntity overwrites a live entity's fields and stable key. The history
// key is left alone.
// Returns sql.ErrNoRows if the entity does not exist.
func (o ops) UpdateEntity(ctx context.Context, ent ir.Entity, key string) error {
	fields, err := marshalFields(ent.Fields)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	res, err := o.q.ExecContext(ctx, `
		UPDATE entities SET entity_key = ?, fields = ?
		WHERE entity_type = ? AND pk = ?
	`, key, fields, ent.Type, ent.PK)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	return requireOneRow(res, "update entity")
}

// DeleteEntity removes a live entity. Its history is untouched.
// Returns sql.ErrNoRows if the entity does not exist.
func (o ops) DeleteEntity(ctx context.Context, typ string, pk int64) error {
	res, err := o.q.ExecContext(ctx, `
		DELETE FROM entities WHERE entity_type = ? AND pk = ?
	`, typ, pk)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return requireOneRow(res, "delete entity")
}

// GetEntity retrieves a live entity by primary key.
// Returns sql.ErrNoRows if not found.
func (o ops) GetEntity(ctx context.Context, typ string, pk int64) (ir.Entity, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT entity_type, pk, fields FROM entities
		WHERE entity_type = ? AND pk = ?
	`, typ, pk)
	return scanEntity(row)
}

// FindEntityByKey retrieves a live entity by stable key.
// Returns sql.ErrNoRows if not found.
func (o ops) FindEntityByKey(ctx context.Context, typ, key string) (ir.Entity, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT entity_type, pk, fields FROM entities
		WHERE entity_type = ? AND entity_key = ?
	`, typ, key)
	return scanEntity(row)
}

// FindEntityByHistoryKey retrieves the live entity writing to the history
// log historyKey.
// Returns sql.ErrNoRows if not found.
func (o ops) FindEntityByHistoryKey(ctx context.Context, typ, historyKey string) (ir.Entity, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT entity_type, pk, fields FROM entities
		WHERE entity_type = ? AND history_key = ?
	`, typ, historyKey)
	return scanEntity(row)
}

// EntityHistoryKey returns the history key of a live entity.
// Returns sql.ErrNoRows if the entity does not exist.
func (o ops) EntityHistoryKey(ctx context.Context, typ string, pk int64) (string, error) {
	var key string
	err := o.q.QueryRowContext(ctx, `
		SELECT history_key FROM entities WHERE entity_type = ? AND pk = ?
	`, typ, pk).Scan(&key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("get history key: %w", err)
	}
	return key, nil
}

// HistoryKeyInUse reports whether historyKey names a live entity or any
// recorded snapshot of typ.
func (o ops) HistoryKeyInUse(ctx context.Context, typ, historyKey string) (bool, error) {
	var used bool
	err := o.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM entities WHERE entity_type = ? AND history_key = ?)
		    OR EXISTS (SELECT 1 FROM snapshots WHERE entity_type = ? AND entity_key = ?)
	`, typ, historyKey, typ, historyKey).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check history key: %w", err)
	}
	return used, nil
}

// ListEntities returns every live entity of typ ordered by primary key.
// Returns an empty slice (not nil) when there are none.
func (o ops) ListEntities(ctx context.Context, typ string) ([]ir.Entity, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT entity_type, pk, fields FROM entities
		WHERE entity_type = ?
		ORDER BY pk ASC
	`, typ)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []ir.Entity{}
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (ir.Entity, error) {
	var (
		ent    ir.Entity
		fields string
	)
	if err := row.Scan(&ent.Type, &ent.PK, &fields); err != nil {
		if err == sql.ErrNoRows {
			return ir.Entity{}, err
		}
		return ir.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	r, err := unmarshalFields(fields)
	if err != nil {
		return ir.Entity{}, err
	}
	ent.Fields = r
	return ent, nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
