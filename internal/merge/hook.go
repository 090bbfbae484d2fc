package merge

import (
	"sort"
	"strings"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
)

// DefaultWarning is the conflict message surfaced by DefaultHook.
const DefaultWarning = "Warning: someone else made changes before you.  Please review the changes and save again."

// Hook resolves a stale submission. yours holds the submitted values,
// theirs the entity's current values and ancestor the values the editor
// started from, or nil when history does not have them.
//
// Returning values applies them. Returning an error rejects the submission
// as a conflict.
type Hook func(yours, theirs, ancestor ir.Record) (ir.Record, error)

// Conflict builds the error a hook returns to reject a submission. The
// layer fills in the entity type and key.
func Conflict(warning string) error {
	return conflictError(warning)
}

func conflictError(warning string) *fault.Error {
	return &fault.Error{Code: fault.CodeConflict, Message: warning}
}

// DefaultHook never merges.
func DefaultHook(yours, theirs, ancestor ir.Record) (ir.Record, error) {
	return nil, Conflict(DefaultWarning)
}

// ThreeWayHook merges field by field. A field takes your value when only you
// changed it, their value when only they did, and either when both agree.
// Any field both sides changed differently is a conflict, as is every
// disagreement when the ancestor is unknown.
func ThreeWayHook(yours, theirs, ancestor ir.Record) (ir.Record, error) {
	merged := make(ir.Record, len(yours))
	var clashes []string
	for name, mine := range yours {
		other := theirs.Get(name)
		switch {
		case ir.Equal(mine, other):
			merged[name] = mine
		case ancestor != nil && ir.Equal(mine, ancestor.Get(name)):
			merged[name] = other
		case ancestor != nil && ir.Equal(other, ancestor.Get(name)):
			merged[name] = mine
		default:
			clashes = append(clashes, name)
		}
	}
	if len(clashes) > 0 {
		sort.Strings(clashes)
		return nil, conflictError(DefaultWarning).With("fields", strings.Join(clashes, ","))
	}
	return merged, nil
}
