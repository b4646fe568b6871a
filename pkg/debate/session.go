package debate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"inquest/pkg/logx"
	"inquest/pkg/persistence"
	"inquest/pkg/proto"
)

// Session wraps one controller run with the external control surface:
// start, resume, cancel, snapshot. A Session runs its controller on its
// own goroutine; Snapshot and Cancel are safe from any goroutine.
type Session struct {
	ID string

	ctrl   *Controller
	logger *logx.Logger

	mu     sync.Mutex
	latest SessionState
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewSession wraps an already-wired controller.
func NewSession(ctrl *Controller) *Session {
	s := &Session{
		ID:     ctrl.sessionID,
		ctrl:   ctrl,
		logger: logx.NewLogger("session"),
	}
	ctrl.SetObserver(func(st SessionState) {
		s.mu.Lock()
		s.latest = st
		s.mu.Unlock()
	})
	return s
}

// Start launches the debate. It returns immediately; Wait blocks for the
// result. Calling Start twice is an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("session %s already started", s.ID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer cancel()
		st, err := s.ctrl.Run(runCtx)
		s.mu.Lock()
		s.latest = st
		s.runErr = err
		close(s.done)
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("session %s ended: %v", s.ID, err)
		}
	}()
	return nil
}

// Resume seeds the controller from the session's persisted checkpoints and
// then starts it. The debate continues with a fresh round after the last
// checkpointed one; raw structured outputs are not restored, so resumed
// workers argue from prior conclusions.
func (s *Session) Resume(ctx context.Context, store *persistence.Store) error {
	checkpoints, err := store.Checkpoints(s.ID)
	if err != nil {
		return fmt.Errorf("load checkpoints for %s: %w", s.ID, err)
	}
	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].ID < checkpoints[j].ID
	})
	lastRound := 0
	cards := make([]proto.EvidenceCard, 0, len(checkpoints))
	for _, cp := range checkpoints {
		if cp.Round > lastRound {
			lastRound = cp.Round
		}
		cards = append(cards, cp.Card())
	}
	s.ctrl.SeedCards(cards, lastRound)
	s.logger.Info("session %s resumed: %d checkpoints, continuing after round %d",
		s.ID, len(checkpoints), lastRound)
	return s.Start(ctx)
}

// Cancel requests cooperative cancellation. The controller observes it at
// the next state boundary; in-flight worker calls are abandoned.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a point-in-time copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.snapshot()
}

// Wait blocks until the run finishes and returns the terminal state.
func (s *Session) Wait() (SessionState, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return SessionState{}, fmt.Errorf("session %s not started", s.ID)
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.runErr
}

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session; the id must be unused.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already registered", s.ID)
	}
	r.sessions[s.ID] = s
	return nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// IDs returns the registered session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
