// Package eventlog carries the append-only session event stream to its
// consumers: a daily-rotated JSONL file for audit, an in-memory buffer for
// snapshots and tests, or any fan-out of sinks. Emission is fire-and-forget;
// a failing sink never affects debate control flow.
package eventlog

import (
	"sync"

	"inquest/pkg/proto"
)

// Sink consumes session events. Implementations must tolerate event types
// they do not recognize.
type Sink interface {
	Emit(evt proto.Event)
}

// Fanout delivers every event to each sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(evt proto.Event) {
	for _, s := range f {
		s.Emit(evt)
	}
}

// Discard drops every event. Useful as a default when no sink is wired.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(proto.Event) {}

// Memory buffers events in order, bounded by cap when positive.
type Memory struct {
	mu     sync.Mutex
	events []proto.Event
	cap    int
}

// NewMemory returns a memory sink retaining at most capacity events; zero
// or negative means unbounded.
func NewMemory(capacity int) *Memory {
	return &Memory{cap: capacity}
}

// Emit implements Sink.
func (m *Memory) Emit(evt proto.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	if m.cap > 0 && len(m.events) > m.cap {
		m.events = m.events[len(m.events)-m.cap:]
	}
}

// Events returns a copy of the buffered events, oldest first.
func (m *Memory) Events() []proto.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]proto.Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns the buffered events matching the given type, oldest first.
func (m *Memory) ByType(t proto.EventType) []proto.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []proto.Event
	for _, evt := range m.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}
