// Package llm defines the model client boundary the debate engine talks to,
// plus the provider implementations behind it. A Client owns conversation
// state: CreateSession opens a named history, SendPrompt extends it and
// returns the model's reply. Providers share one classification scheme for
// failures (llmerrors) so the worker execution manager can distinguish
// timeouts and rate limits from terminal errors.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Role identifies the author of a message part.
type Role string

// Message part roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessagePart is one message in a prompt exchange.
type MessagePart struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptRequest describes one model call within an existing session.
type PromptRequest struct {
	// SessionID names the conversation to extend, from CreateSession.
	SessionID string
	// Parts are appended to the session history for this call.
	Parts []MessagePart
	// Model is the model name; config resolves it to a provider.
	Model string
	// MaxTokens is the output budget, clamped to the model's limit.
	MaxTokens int
	// SchemaHint, when set, is a JSON shape appended to the final part so
	// the model answers in the structure the opinion normalizer expects.
	SchemaHint string
}

// Usage reports provider-metered token counts for one call. Zero-valued
// when the provider reports none.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// PromptResult is the reply to one SendPrompt call.
type PromptResult struct {
	// Text is the concatenated text output of the model.
	Text string
	// Structured is the strict parse of Text when the reply is a single
	// valid JSON object, nil otherwise. Tolerant recovery of near-JSON is
	// the opinion normalizer's job, not the client's.
	Structured map[string]any
	// Usage carries token accounting for metrics.
	Usage Usage
}

// Client is the model boundary. Implementations keep per-session history so
// each debate worker holds one coherent thread across rounds, and classify
// failures through llmerrors.
type Client interface {
	// CreateSession opens a conversation and returns its opaque id.
	CreateSession(ctx context.Context, title string) (string, error)
	// SendPrompt extends the session with req.Parts, calls the model, and
	// records the assistant reply in the session history. The history is
	// only extended on success; a failed call leaves the session as it was.
	SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error)
}

// parseObject strict-parses text as a single JSON object. Anything else,
// including arrays and fenced blocks, yields nil.
func parseObject(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil
	}
	return obj
}
