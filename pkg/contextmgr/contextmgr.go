// Package contextmgr provides token counting and prompt compaction for
// model calls. Counting uses the GPT-4 tokenizer as a cross-provider
// approximation. Compaction keeps the head and tail of an oversized prompt
// around an elision marker, so a retry after a timeout carries less weight
// without losing the instructions at either end.
package contextmgr

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting backed by a tiktoken codec.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter. All models are approximated with
// the GPT-4 encoding; Claude and Gemini tokenize similarly enough for
// budgeting purposes.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in the given text.
func (tc *TokenCounter) Count(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// FitsWithin reports whether text is within the given token limit.
func (tc *TokenCounter) FitsWithin(text string, limit int) bool {
	return tc.Count(text) <= limit
}

//nolint:gochecknoglobals // Shared codec, built once
var (
	sharedCounter     *TokenCounter
	sharedCounterOnce sync.Once
)

// CountTokens counts tokens without requiring a TokenCounter instance. The
// codec is built once and shared.
func CountTokens(text string) int {
	sharedCounterOnce.Do(func() {
		counter, err := NewTokenCounter()
		if err != nil {
			counter = &TokenCounter{} // fall back to character estimation
		}
		sharedCounter = counter
	})
	return sharedCounter.Count(text)
}

// CompactPrompt shrinks a prompt to roughly targetTokens by keeping the head
// and the tail around an elision marker. Prompts already within budget are
// returned unchanged. The head gets the larger share: instructions and
// incident framing lead the prompt, while the tail keeps the most recent
// exchange.
func CompactPrompt(prompt string, targetTokens int) string {
	if targetTokens <= 0 {
		return prompt
	}
	if CountTokens(prompt) <= targetTokens {
		return prompt
	}

	// Convert the token budget to characters with the same 4:1 heuristic
	// the fallback counter uses.
	charBudget := targetTokens * 4
	if charBudget >= len(prompt) {
		return prompt
	}

	headLen := runeBoundary(prompt, charBudget*3/5)
	tailStart := runeBoundary(prompt, len(prompt)-(charBudget-headLen))
	elided := tailStart - headLen

	return prompt[:headLen] +
		fmt.Sprintf("\n\n[... %d characters elided ...]\n\n", elided) +
		prompt[tailStart:]
}

// runeBoundary walks i back to the nearest UTF-8 rune start so slicing never
// splits a character.
func runeBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
