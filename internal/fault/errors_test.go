package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NotFound("Page", `{"name":"Home"}`, "no snapshot at or before %s", "2024-01-01")
	assert.Equal(t, `NOT_FOUND: no snapshot at or before 2024-01-01 (type=Page, key={"name":"Home"})`, err.Error())

	cfg := Configuration("Note", "no fingerprint source")
	assert.Equal(t, "CONFIGURATION: no fingerprint source (type=Note)", cfg.Error())
}

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", Conflict("Page", "k", "warning"))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, CodeConflict, CodeOf(wrapped))

	assert.True(t, IsStrategyNotFound(StrategyNotFound("text")))
	assert.True(t, IsInvalid(Invalid("Page", "unknown field %q", "x")))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Code: CodeNotFound, Message: "lookup failed", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestWithCopiesDetails(t *testing.T) {
	base := StrategyNotFound("text")
	extended := base.With("field", "body")
	assert.Equal(t, "body", extended.Details["field"])
	_, ok := base.Details["field"]
	assert.False(t, ok)
}
