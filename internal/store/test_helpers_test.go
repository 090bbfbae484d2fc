package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/verso/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// at returns baseTime plus n seconds.
func at(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Second)
}

// createTestSnapshot builds a snapshot for a page keyed by name.
func createTestSnapshot(key string, pk int64, ts time.Time, kind ir.ChangeKind, fields ir.Record) ir.Snapshot {
	digest, _ := ir.SnapshotDigest("Page", fields)
	return ir.Snapshot{
		Ref:       ir.EntityRef{Type: "Page", Key: key},
		EntityPK:  pk,
		Fields:    fields,
		Timestamp: ts,
		Kind:      kind,
		Digest:    digest,
	}
}
