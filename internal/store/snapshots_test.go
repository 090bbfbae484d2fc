package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/ir"
)

func TestAppendAndGetSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := createTestSnapshot("pk:1", 1, at(0), ir.Added, ir.Record{"title": ir.String("a"), "n": ir.Int(2)})
	out, err := s.AppendSnapshot(ctx, in, nil)
	require.NoError(t, err)
	assert.NotZero(t, out.ID)

	got, err := s.GetSnapshot(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Ref, got.Ref)
	assert.Equal(t, in.Timestamp, got.Timestamp)
	assert.Equal(t, ir.Added, got.Kind)
	assert.Nil(t, got.RevertedFrom)
	assert.True(t, ir.RecordsEqual(in.Fields, got.Fields))
	assert.Equal(t, in.Digest, got.Digest)

	_, err = s.GetSnapshot(ctx, 999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRevertedFromRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.AppendSnapshot(ctx, createTestSnapshot("pk:1", 1, at(0), ir.Added, ir.Record{}), nil)
	require.NoError(t, err)

	rev := createTestSnapshot("pk:1", 1, at(1), ir.Reverted, ir.Record{})
	rev.RevertedFrom = &first.ID
	rev, err = s.AppendSnapshot(ctx, rev, nil)
	require.NoError(t, err)

	got, err := s.GetSnapshot(ctx, rev.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevertedFrom)
	assert.Equal(t, first.ID, *got.RevertedFrom)
}

func TestSnapshotAsOf(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ref := ir.EntityRef{Type: "Page", Key: "pk:1"}

	for i, body := range []string{"v1", "v2", "v3"} {
		_, err := s.AppendSnapshot(ctx, createTestSnapshot("pk:1", 1, at(i*10), ir.Updated, ir.Record{"body": ir.String(body)}), nil)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		sec  int
		want string
	}{
		{"exact first", 0, "v1"},
		{"between", 15, "v2"},
		{"exact last", 20, "v3"},
		{"after last", 99, "v3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SnapshotAsOf(ctx, ref, at(tt.sec))
			require.NoError(t, err)
			assert.Equal(t, ir.String(tt.want), got.Fields["body"])
		})
	}

	_, err := s.SnapshotAsOf(ctx, ref, at(-1))
	assert.ErrorIs(t, err, sql.ErrNoRows)

	latest, err := s.LatestSnapshot(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ir.String("v3"), latest.Fields["body"])

	n, err := s.CountSnapshotsUpTo(ctx, ref, at(10))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListSnapshotsOrderedAndScoped(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AppendSnapshot(ctx, createTestSnapshot("pk:1", 1, at(2), ir.Updated, ir.Record{}), nil)
	require.NoError(t, err)
	_, err = s.AppendSnapshot(ctx, createTestSnapshot("pk:1", 1, at(1), ir.Added, ir.Record{}), nil)
	require.NoError(t, err)
	_, err = s.AppendSnapshot(ctx, createTestSnapshot("pk:2", 2, at(0), ir.Added, ir.Record{}), nil)
	require.NoError(t, err)

	snaps, err := s.ListSnapshots(ctx, ir.EntityRef{Type: "Page", Key: "pk:1"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, ir.Added, snaps[0].Kind)
	assert.Equal(t, ir.Updated, snaps[1].Kind)

	empty, err := s.ListSnapshots(ctx, ir.EntityRef{Type: "Page", Key: "pk:9"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPruneNewerThan(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ref := ir.EntityRef{Type: "Page", Key: "pk:1"}

	for i := 0; i < 4; i++ {
		_, err := s.AppendSnapshot(ctx, createTestSnapshot("pk:1", 1, at(i), ir.Updated, ir.Record{}), nil)
		require.NoError(t, err)
	}
	_, err := s.AppendSnapshot(ctx, createTestSnapshot("pk:2", 2, at(9), ir.Added, ir.Record{}), nil)
	require.NoError(t, err)

	n, err := s.PruneNewerThan(ctx, ref, at(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snaps, err := s.ListSnapshots(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	other, err := s.ListSnapshots(ctx, ir.EntityRef{Type: "Page", Key: "pk:2"})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestLinkedSnapshotsAsOf(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	parent := ir.EntityRef{Type: "Page", Key: `{"name":"Home"}`}

	child := func(key string, sec int, kind ir.ChangeKind, target string) {
		t.Helper()
		snap := ir.Snapshot{
			Ref:       ir.EntityRef{Type: "Upload", Key: key},
			Fields:    ir.Record{"page": ir.String(target)},
			Timestamp: at(sec),
			Kind:      kind,
		}
		_, err := s.AppendSnapshot(ctx, snap, []Link{{Field: "page", TargetType: "Page", TargetKey: target}})
		require.NoError(t, err)
	}

	child("pk:1", 1, ir.Added, parent.Key)
	child("pk:1", 3, ir.Updated, parent.Key)
	child("pk:2", 2, ir.Added, parent.Key)
	child("pk:2", 4, ir.Deleted, parent.Key)
	child("pk:3", 1, ir.Added, `{"name":"Other"}`)

	got, err := s.LinkedSnapshotsAsOf(ctx, "Upload", "page", parent, at(2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pk:1", got[0].Ref.Key)
	assert.Equal(t, at(1), got[0].Timestamp)
	assert.Equal(t, "pk:2", got[1].Ref.Key)

	got, err = s.LinkedSnapshotsAsOf(ctx, "Upload", "page", parent, at(5))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, at(3), got[0].Timestamp)

	child("pk:1", 6, ir.Updated, `{"name":"Other"}`)
	got, err = s.LinkedSnapshotsAsOf(ctx, "Upload", "page", parent, at(7))
	require.NoError(t, err)
	assert.Empty(t, got, "upload moved to another page")

	got, err = s.LinkedSnapshotsAsOf(ctx, "Upload", "page", parent, at(0))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSnapshotLinksCascadeOnPrune(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap, err := s.AppendSnapshot(ctx, ir.Snapshot{
		Ref:       ir.EntityRef{Type: "Upload", Key: "pk:1"},
		Fields:    ir.Record{"page": ir.String("pk:7")},
		Timestamp: at(5),
		Kind:      ir.Added,
	}, []Link{{Field: "page", TargetType: "Page", TargetKey: "pk:7"}})
	require.NoError(t, err)

	links, err := s.SnapshotLinks(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []Link{{Field: "page", TargetType: "Page", TargetKey: "pk:7"}}, links)

	_, err = s.PruneNewerThan(ctx, snap.Ref, at(0))
	require.NoError(t, err)

	links, err = s.SnapshotLinks(ctx, snap.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDeletedHistoryKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appendAs := func(logKey, lookupKey string, sec int, kind ir.ChangeKind) {
		t.Helper()
		snap := createTestSnapshot(logKey, 1, at(sec), kind, ir.Record{})
		snap.LookupKey = lookupKey
		_, err := s.AppendSnapshot(ctx, snap, nil)
		require.NoError(t, err)
	}

	appendAs("a", "home", 0, ir.Added)
	appendAs("a", "home", 1, ir.Deleted)
	key, err := s.DeletedHistoryKey(ctx, "Page", "home")
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	// Log b was renamed away from "home" before it was deleted.
	appendAs("b", "home", 2, ir.Added)
	appendAs("b", "start", 3, ir.Deleted)
	key, err = s.DeletedHistoryKey(ctx, "Page", "home")
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	// A log that is live again no longer matches.
	appendAs("a", "home", 4, ir.RevertedAdded)
	_, err = s.DeletedHistoryKey(ctx, "Page", "home")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	got, err := s.LatestSnapshot(ctx, ir.EntityRef{Type: "Page", Key: "b"})
	require.NoError(t, err)
	assert.Equal(t, "start", got.LookupKey)
}
