package ir

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChangeKind records what produced a snapshot.
type ChangeKind int

// Values are persisted; do not renumber.
const (
	Added ChangeKind = iota
	Updated
	Deleted
	Reverted
	RevertedAdded
	RevertedDeleted
)

var changeKindLabels = [...]string{
	Added:           "Added",
	Updated:         "Updated",
	Deleted:         "Deleted",
	Reverted:        "Reverted",
	RevertedAdded:   "Reverted/Added",
	RevertedDeleted: "Reverted/Deleted",
}

// String returns the verbose label, e.g. "Reverted/Added".
func (k ChangeKind) String() string {
	if k < Added || k > RevertedDeleted {
		return "ChangeKind(" + strconv.Itoa(int(k)) + ")"
	}
	return changeKindLabels[k]
}

// Valid reports whether k is one of the defined kinds.
func (k ChangeKind) Valid() bool {
	return k >= Added && k <= RevertedDeleted
}

// IsRevert reports whether k came from a revert rather than an ordinary edit.
func (k ChangeKind) IsRevert() bool {
	return k == Reverted || k == RevertedAdded || k == RevertedDeleted
}

// IsDeletion reports whether the entity no longer existed after the change.
func (k ChangeKind) IsDeletion() bool {
	return k == Deleted || k == RevertedDeleted
}

// ParseChangeKind accepts either the verbose label or the bare name
// ("RevertedAdded").
func ParseChangeKind(s string) (ChangeKind, error) {
	for k, label := range changeKindLabels {
		if s == label || s == strings.ReplaceAll(label, "/", "") {
			return ChangeKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}

// MarshalText encodes the kind by label.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a label produced by MarshalText.
func (k *ChangeKind) UnmarshalText(b []byte) error {
	parsed, err := ParseChangeKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EntityRef names an entity's history log. The key is fixed when the log
// starts and survives edits to unique fields as well as delete and recreate
// cycles.
type EntityRef struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// String renders the ref as Type/Key.
func (r EntityRef) String() string {
	return r.Type + "/" + r.Key
}

// PKKey is the stable key of an entity type without unique fields.
func PKKey(pk int64) string {
	return "pk:" + strconv.FormatInt(pk, 10)
}

// StableKey computes the stable key of an entity of type t. When t declares
// unique fields the key is the canonical JSON of their values; otherwise it is
// the primary key at the time.
func StableKey(t *EntityType, pk int64, fields Record) (string, error) {
	if len(t.UniqueFields) == 0 {
		return PKKey(pk), nil
	}
	obj := make(Object, len(t.UniqueFields))
	for _, name := range t.UniqueFields {
		obj[name] = fields.Get(name)
	}
	b, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("stable key for %s: %w", t.Name, err)
	}
	return string(b), nil
}

// Entity is a live record.
type Entity struct {
	Type   string `json:"type"`
	PK     int64  `json:"pk"`
	Fields Record `json:"fields"`
}

// TypeName implements the record contract used by the diff engine.
func (e Entity) TypeName() string { return e.Type }

// Values implements the record contract used by the diff engine.
func (e Entity) Values() Record { return e.Fields }

// Snapshot is an immutable copy of an entity's fields at one moment.
// Relation fields hold the target's stable key as a String.
type Snapshot struct {
	ID           int64      `json:"id"`
	Ref          EntityRef  `json:"ref"`
	EntityPK     int64      `json:"entity_pk"`
	Fields       Record     `json:"fields"`
	Timestamp    time.Time  `json:"timestamp"`
	Kind         ChangeKind `json:"change_kind"`
	RevertedFrom *int64     `json:"reverted_from,omitempty"`
	Digest       string     `json:"digest"`

	// LookupKey is the entity's stable key when the snapshot was taken. It
	// differs from Ref.Key once a unique field has been edited.
	LookupKey string `json:"-"`

	// AsOf is the moment this snapshot was reconstructed for. Zero when the
	// snapshot was read directly; relations then resolve at Timestamp.
	AsOf time.Time `json:"as_of,omitzero"`
}

// Moment returns the time relations of s resolve at.
func (s Snapshot) Moment() time.Time {
	if s.AsOf.IsZero() {
		return s.Timestamp
	}
	return s.AsOf
}

// TypeName implements the record contract used by the diff engine.
func (s Snapshot) TypeName() string { return s.Ref.Type }

// Values implements the record contract used by the diff engine.
func (s Snapshot) Values() Record { return s.Fields }

// VersionedSnapshot pairs a snapshot with its derived version number.
type VersionedSnapshot struct {
	Snapshot
	Version int `json:"version"`
}
