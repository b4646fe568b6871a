// Package llmerrors provides structured error classification for model
// client failures. The execution manager keys its retry and degradation
// policy off these types: only timeouts consume extra timeout-plan
// attempts; everything else degrades immediately.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType classifies a model call failure.
type ErrorType int8

const (
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeTimeout represents a deadline exceeded on the call. The only
	// type that consumes additional timeout-plan attempts.
	ErrorTypeTimeout

	// ErrorTypeRateLimit represents rate limiting (429, quota exceeded).
	ErrorTypeRateLimit

	// ErrorTypeCircuitOpen means the client refused the call without
	// attempting it. Treated identically to a generic non-retryable error.
	ErrorTypeCircuitOpen

	// ErrorTypeTransient represents 5xx, EOF, or connection resets.
	ErrorTypeTransient

	// ErrorTypeEmptyResponse represents a 200 with no usable content.
	ErrorTypeEmptyResponse

	// ErrorTypeAuth represents authentication failures (401/403).
	ErrorTypeAuth

	// ErrorTypeBadPrompt represents malformed requests (too long, policy).
	ErrorTypeBadPrompt
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified model client error.
type Error struct {
	Err        error     // wrapped underlying error
	Message    string    // human-readable message
	BodyStub   string    // first portion of response body (guards PII)
	Type       ErrorType // classified type
	StatusCode int       // HTTP status code if applicable
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("llm error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks whether err carries the given classified type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the classified type of err, falling back to heuristics
// for errors that never passed through a provider client.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return classifyRaw(err)
}

// IsTimeout reports whether the call failed on a deadline.
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsRateLimit reports whether the call was rate-limited.
func IsRateLimit(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

// IsCircuitOpen reports whether the client refused the call outright.
func IsCircuitOpen(err error) bool {
	return TypeOf(err) == ErrorTypeCircuitOpen
}

// NewError creates a classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a classified error with an HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// Wrap classifies err heuristically and wraps it; already-classified
// errors pass through unchanged.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}
	return &Error{Type: classifyRaw(err), Err: err, Message: message}
}

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 400 || statusCode == 413 || statusCode == 422:
		return ErrorTypeBadPrompt
	case statusCode == 408 || statusCode == 504:
		return ErrorTypeTimeout
	case statusCode >= 500:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

// classifyRaw applies heuristics to errors the providers never classified.
func classifyRaw(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "quota"), strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "overloaded"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "circuit breaker"), strings.Contains(msg, "circuit open"):
		return ErrorTypeCircuitOpen
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"), strings.Contains(msg, "forbidden"):
		return ErrorTypeAuth
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "eof"),
		strings.Contains(msg, "connection refused"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "internal server error"):
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

// SanitizePrompt creates a safe preview of a prompt for telemetry. Large
// prompts become first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if len(prompt) <= halfMax*2 {
		return prompt
	}

	first := prompt[:halfMax]
	last := prompt[len(prompt)-halfMax:]
	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s", first, len(prompt), hashStr, last)
}
