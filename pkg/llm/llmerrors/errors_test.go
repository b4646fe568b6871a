package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypeString(t *testing.T) {
	tests := map[ErrorType]string{
		ErrorTypeTimeout:       "timeout",
		ErrorTypeRateLimit:     "rate_limit",
		ErrorTypeCircuitOpen:   "circuit_open",
		ErrorTypeTransient:     "transient",
		ErrorTypeEmptyResponse: "empty_response",
		ErrorTypeAuth:          "auth",
		ErrorTypeBadPrompt:     "bad_prompt",
		ErrorTypeUnknown:       "unknown",
	}
	for et, want := range tests {
		assert.Equal(t, want, et.String())
	}
}

func TestIsAndTypeOf(t *testing.T) {
	base := NewError(ErrorTypeRateLimit, "quota exceeded")
	wrapped := fmt.Errorf("calling model: %w", base)

	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(wrapped, ErrorTypeTimeout))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.True(t, IsRateLimit(wrapped))
}

func TestTypeOfHeuristics(t *testing.T) {
	assert.Equal(t, ErrorTypeTimeout, TypeOf(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTimeout, TypeOf(errors.New("request timed out")))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(errors.New("429 Too Many Requests")))
	assert.Equal(t, ErrorTypeCircuitOpen, TypeOf(errors.New("circuit breaker is open")))
	assert.Equal(t, ErrorTypeAuth, TypeOf(errors.New("invalid api key provided")))
	assert.Equal(t, ErrorTypeTransient, TypeOf(errors.New("connection reset by peer")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("some novel failure")))
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ErrorTypeRateLimit, ClassifyStatus(429))
	assert.Equal(t, ErrorTypeAuth, ClassifyStatus(401))
	assert.Equal(t, ErrorTypeBadPrompt, ClassifyStatus(400))
	assert.Equal(t, ErrorTypeTimeout, ClassifyStatus(504))
	assert.Equal(t, ErrorTypeTransient, ClassifyStatus(503))
	assert.Equal(t, ErrorTypeUnknown, ClassifyStatus(302))
}

func TestWrapPassThrough(t *testing.T) {
	classified := NewError(ErrorTypeAuth, "bad key")
	wrapped := Wrap(classified, "sending prompt")
	assert.Equal(t, ErrorTypeAuth, TypeOf(wrapped))

	raw := errors.New("request timed out")
	wrapped = Wrap(raw, "sending prompt")
	assert.Equal(t, ErrorTypeTimeout, TypeOf(wrapped))
	assert.True(t, errors.Is(wrapped, raw))

	assert.NoError(t, Wrap(nil, "no-op"))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "upstream")
	assert.True(t, errors.Is(err, cause))
}

func TestSanitizePromptShort(t *testing.T) {
	p := "short prompt"
	assert.Equal(t, p, SanitizePrompt(p, 100))
}

func TestSanitizePromptLong(t *testing.T) {
	p := strings.Repeat("a", 2000) + strings.Repeat("b", 2000)
	out := SanitizePrompt(p, 400)

	assert.Less(t, len(out), len(p))
	assert.True(t, strings.HasPrefix(out, "aaa"))
	assert.True(t, strings.HasSuffix(out, "bbb"))
	assert.Contains(t, out, "4000 chars")
	assert.Contains(t, out, "hash:")
}
