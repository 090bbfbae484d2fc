// Package fault defines the error taxonomy shared by the history, diff and
// merge layers.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeNotFound: no snapshot, entity or relation exists for the requested
	// identity and time. Recoverable; the caller decides the fallback.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConfiguration: the entity type lacks information the core needs,
	// e.g. nothing to derive a fingerprint from. Fix the declaration.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeConflict: versions diverged and the merge hook could not merge them.
	// User-correctable.
	CodeConflict Code = "CONFLICT"

	// CodeStrategyNotFound: no diff strategy resolved for a kind even after
	// the generic fallback. Internal invariant violation.
	CodeStrategyNotFound Code = "STRATEGY_NOT_FOUND"

	// CodeInvalid: caller supplied data that does not fit the entity type.
	CodeInvalid Code = "INVALID"
)

// Error is the structured error returned by verso's core packages.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Type and Key identify the affected entity when known.
	Type string
	Key  string

	// Details carries extra context for diagnostics.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Type != "" {
		msg += fmt.Sprintf(" (type=%s", e.Type)
		if e.Key != "" {
			msg += ", key=" + e.Key
		}
		msg += ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// With returns a copy of e with a detail added.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return CodeOf(err) == CodeConfiguration }

// IsConflict reports whether err signals a merge conflict.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsStrategyNotFound reports whether err is a missing diff strategy.
func IsStrategyNotFound(err error) bool { return CodeOf(err) == CodeStrategyNotFound }

// IsInvalid reports whether err is an invalid-input error.
func IsInvalid(err error) bool { return CodeOf(err) == CodeInvalid }

// NotFound creates a NotFound error for an entity.
func NotFound(typ, key, format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Type: typ, Key: key}
}

// Configuration creates a configuration error for an entity type.
func Configuration(typ, format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...), Type: typ}
}

// Conflict creates a conflict error carrying the user-facing warning.
func Conflict(typ, key, warning string) *Error {
	return &Error{Code: CodeConflict, Message: warning, Type: typ, Key: key}
}

// StrategyNotFound creates an error for a kind with no resolvable strategy.
func StrategyNotFound(kind string) *Error {
	return &Error{
		Code:    CodeStrategyNotFound,
		Message: "no diff strategy registered",
		Details: map[string]string{"kind": kind},
	}
}

// Invalid creates an invalid-input error.
func Invalid(typ, format string, args ...any) *Error {
	return &Error{Code: CodeInvalid, Message: fmt.Sprintf(format, args...), Type: typ}
}
