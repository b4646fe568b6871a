package llm

import (
	"sync"

	"github.com/google/uuid"

	"inquest/pkg/llm/llmerrors"
)

// sessionStore keeps per-session message history for a provider client.
// Histories grow on successful exchanges only, so a timed-out call can be
// retried against the same session without duplicating the prompt.
type sessionStore struct {
	mu   sync.Mutex
	hist map[string][]MessagePart
}

func newSessionStore() *sessionStore {
	return &sessionStore{hist: make(map[string][]MessagePart)}
}

// open registers a new session and returns its id.
func (s *sessionStore) open() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.hist[id] = nil
	s.mu.Unlock()
	return id
}

// outgoing returns a copy of the session history with parts appended,
// ready to hand to the provider API.
func (s *sessionStore) outgoing(id string, parts []MessagePart) ([]MessagePart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hist[id]
	if !ok {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "unknown session "+id)
	}
	out := make([]MessagePart, 0, len(h)+len(parts))
	out = append(out, h...)
	out = append(out, parts...)
	return out, nil
}

// commit appends the exchanged parts and the assistant reply to the history.
func (s *sessionStore) commit(id string, parts []MessagePart, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hist[id]
	if !ok {
		return
	}
	h = append(h, parts...)
	h = append(h, MessagePart{Role: RoleAssistant, Content: reply})
	s.hist[id] = h
}

// length reports the number of stored parts for a session.
func (s *sessionStore) length(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hist[id])
}
