package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/store"
	"github.com/roach88/verso/internal/testutil"
)

func testTypes(t *testing.T) *ir.TypeSet {
	t.Helper()
	page := &ir.EntityType{
		Name: "Page",
		Fields: []ir.FieldSpec{
			{Name: "id", Kind: ir.KindAuto, AutoID: true},
			{Name: "name", Kind: ir.KindText},
			{Name: "content", Kind: ir.KindHTML},
		},
		UniqueFields: []string{"name"},
		Versioned:    true,
	}
	upload := &ir.EntityType{
		Name: "Upload",
		Fields: []ir.FieldSpec{
			{Name: "id", Kind: ir.KindAuto, AutoID: true},
			{Name: "page", Kind: ir.KindRelation, Relation: &ir.RelationSpec{Target: "Page", RelatedName: "uploads"}},
			{Name: "file", Kind: ir.KindImage},
		},
		Versioned: true,
	}
	mapData := &ir.EntityType{
		Name: "MapData",
		Fields: []ir.FieldSpec{
			{Name: "id", Kind: ir.KindAuto, AutoID: true},
			{Name: "page", Kind: ir.KindRelation, Relation: &ir.RelationSpec{Target: "Page", Unique: true, RelatedName: "mapdata"}},
			{Name: "points", Kind: ir.KindText},
		},
		Versioned: true,
	}
	note := &ir.EntityType{
		Name: "Note",
		Fields: []ir.FieldSpec{
			{Name: "id", Kind: ir.KindAuto, AutoID: true},
			{Name: "body", Kind: ir.KindText},
			{Name: "modified", Kind: ir.KindDatetime, AutoNow: true},
		},
		Versioned: true,
	}
	counter := &ir.EntityType{
		Name: "Counter",
		Fields: []ir.FieldSpec{
			{Name: "id", Kind: ir.KindAuto, AutoID: true},
			{Name: "label", Kind: ir.KindText},
			{Name: "revision", Kind: ir.KindInt},
		},
		VersionField: "revision",
	}
	ts, err := ir.NewTypeSet([]*ir.EntityType{page, upload, mapData, note, counter}, nil)
	require.NoError(t, err)
	return ts
}

func newTestEngine(t *testing.T) (*Engine, *testutil.DeterministicClock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, testTypes(t), WithClock(clock), WithLogger(logger)), clock
}

func mustCreate(t *testing.T, e *Engine, typ string, fields ir.Record) Change {
	t.Helper()
	ch, err := e.Create(context.Background(), typ, fields)
	require.NoError(t, err)
	return ch
}

func mustUpdate(t *testing.T, e *Engine, typ string, pk int64, changes ir.Record) Change {
	t.Helper()
	ch, err := e.Update(context.Background(), typ, pk, changes)
	require.NoError(t, err)
	return ch
}

func mustRef(t *testing.T, e *Engine, ent ir.Entity) ir.EntityRef {
	t.Helper()
	ref, err := e.Ref(context.Background(), ent)
	require.NoError(t, err)
	return ref
}
