package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeKindLabels(t *testing.T) {
	assert.Equal(t, "Added", Added.String())
	assert.Equal(t, "Reverted/Added", RevertedAdded.String())
	assert.Equal(t, "Reverted/Deleted", RevertedDeleted.String())
	assert.Equal(t, "ChangeKind(9)", ChangeKind(9).String())

	k, err := ParseChangeKind("RevertedDeleted")
	require.NoError(t, err)
	assert.Equal(t, RevertedDeleted, k)

	k, err = ParseChangeKind("Reverted/Added")
	require.NoError(t, err)
	assert.Equal(t, RevertedAdded, k)

	_, err = ParseChangeKind("Renamed")
	assert.Error(t, err)
}

func TestChangeKindPredicates(t *testing.T) {
	assert.True(t, Reverted.IsRevert())
	assert.False(t, Updated.IsRevert())
	assert.True(t, RevertedDeleted.IsDeletion())
	assert.False(t, RevertedAdded.IsDeletion())
}

func TestStableKey(t *testing.T) {
	page := &EntityType{Name: "Page", UniqueFields: []string{"slug", "region"}}
	key, err := StableKey(page, 7, Record{"slug": String("front"), "region": Int(2), "body": String("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"region":2,"slug":"front"}`, key)

	plain := &EntityType{Name: "Note"}
	key, err = StableKey(plain, 7, Record{"body": String("x")})
	require.NoError(t, err)
	assert.Equal(t, "pk:7", key)
}

func TestSnapshotDigestIgnoresTime(t *testing.T) {
	a, err := SnapshotDigest("Page", Record{"name": String("x")})
	require.NoError(t, err)
	b, err := SnapshotDigest("Page", Record{"name": String("x")})
	require.NoError(t, err)
	c, err := SnapshotDigest("Page", Record{"name": String("y")})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
