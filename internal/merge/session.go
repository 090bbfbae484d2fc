package merge

import (
	"fmt"

	"github.com/google/uuid"
)

// State is the position of an edit session in its lifecycle.
type State string

const (
	Opened               State = "opened"
	Clean                State = "clean"
	RejectedWithConflict State = "rejected_with_conflict"
)

// Session is one editor's attempt to change one entity. It is plain data so
// it can round-trip through a client between Open and Submit.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	PK          int64     `json:"pk"`
	Fingerprint string    `json:"fingerprint"`
	State       State     `json:"state"`
}

// Resume rebuilds a session from a fingerprint carried by a client.
func Resume(typ string, pk int64, fingerprint string) (*Session, error) {
	return newSession(typ, pk, fingerprint)
}

func newSession(typ string, pk int64, fingerprint string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return &Session{
		ID:          id,
		Type:        typ,
		PK:          pk,
		Fingerprint: fingerprint,
		State:       Opened,
	}, nil
}
