package proto

import "time"

// EventType names one entry in the session event stream. Consumers must
// tolerate types they do not recognize.
type EventType string

const (
	EventSessionCreated EventType = "session_created"

	EventRoundStarted   EventType = "round_started"
	EventRoundCompleted EventType = "round_completed"

	EventParallelAnalysisStarted   EventType = "parallel_analysis_started"
	EventParallelAnalysisCompleted EventType = "parallel_analysis_completed"

	EventAgentCommandIssued   EventType = "agent_command_issued"
	EventAgentCommandFeedback EventType = "agent_command_feedback"
	EventAgentRoundSkipped    EventType = "agent_round_skipped"

	EventLLMCallStarted   EventType = "llm_call_started"
	EventLLMCallRetry     EventType = "llm_call_retry"
	EventLLMCallCompleted EventType = "llm_call_completed"
	EventLLMCallFailed    EventType = "llm_call_failed"
	EventLLMCallTimeout   EventType = "llm_call_timeout"

	EventSupervisorDecision EventType = "supervisor_decision"

	EventDebateCompleted EventType = "runtime_debate_completed"
)

// Event is one entry in the append-only session event stream.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Round     int       `json:"round,omitempty"`
	Phase     Phase     `json:"phase,omitempty"`
	Worker    string    `json:"worker,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Fields carries event-specific details (latency, attempt number,
	// truncated previews, decision reason).
	Fields map[string]any `json:"fields,omitempty"`
}

// NewEvent stamps a new event for the given session.
func NewEvent(t EventType, sessionID string) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Fields:    make(map[string]any),
	}
}

// With adds one field and returns the event for chaining.
func (e Event) With(key string, value any) Event {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}
