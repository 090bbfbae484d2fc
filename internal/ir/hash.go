package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix leaves room for a
// future algorithm change.
const (
	DomainSnapshot = "verso/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest computes the content digest of a snapshot's field values.
// Two snapshots with the same type and fields have the same digest no matter
// when they were taken.
func SnapshotDigest(typeName string, fields Record) (string, error) {
	canonical, err := MarshalCanonical(Object{
		"type":   String(typeName),
		"fields": Object(fields),
	})
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// RecordsEqual reports whether two records hold the same fields and values.
func RecordsEqual(a, b Record) bool {
	return Equal(Object(a), Object(b))
}
