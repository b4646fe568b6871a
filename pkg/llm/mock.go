package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockReply is one scripted SendPrompt outcome.
type MockReply struct {
	Result PromptResult
	Err    error
}

// MockClient provides a controllable implementation of Client for testing.
// Replies are served FIFO from the script; when ReplyFn is set it takes
// precedence and receives every request. All requests are recorded for
// assertions.
type MockClient struct {
	// ReplyFn computes a reply per request. Set before first use.
	ReplyFn func(ctx context.Context, req PromptRequest) (PromptResult, error)

	mu       sync.Mutex
	script   []MockReply
	nextID   int
	requests []PromptRequest
	titles   []string
}

// NewMockClient creates a mock client with predefined replies.
func NewMockClient(script ...MockReply) *MockClient {
	return &MockClient{script: script}
}

// CreateSession returns a deterministic session id and records the title.
func (m *MockClient) CreateSession(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.titles = append(m.titles, title)
	return fmt.Sprintf("mock-session-%d", m.nextID), nil
}

// SendPrompt returns the next scripted reply, or delegates to ReplyFn.
func (m *MockClient) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.ReplyFn
	var reply MockReply
	if fn == nil {
		if len(m.script) == 0 {
			m.mu.Unlock()
			return PromptResult{}, fmt.Errorf("mock client: no more replies")
		}
		reply = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	// ReplyFn runs outside the lock so slow or blocking replies do not
	// serialize concurrent callers.
	if fn != nil {
		return fn(ctx, req)
	}
	if reply.Err != nil {
		return PromptResult{}, reply.Err
	}
	res := reply.Result
	if res.Structured == nil {
		res.Structured = parseObject(res.Text)
	}
	return res, nil
}

// Requests returns a copy of every recorded request.
func (m *MockClient) Requests() []PromptRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PromptRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// SessionTitles returns the titles passed to CreateSession, in order.
func (m *MockClient) SessionTitles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.titles))
	copy(out, m.titles)
	return out
}

// CallCount reports how many SendPrompt calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
