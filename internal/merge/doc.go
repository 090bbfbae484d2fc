// Package merge guards entity edits against lost updates.
//
// An edit session captures the entity's version fingerprint when opened.
// On submit the fingerprint is compared with the entity's current one
// inside a single store transaction. A match applies the edit. A mismatch
// hands the submitted, current and ancestor values to a merge hook, which
// either returns merged values to apply or signals a conflict. On conflict
// the session's fingerprint is refreshed so the editor can resubmit.
package merge
