package debate

import (
	"fmt"
	"time"

	"inquest/pkg/proto"
)

// State is one node of the session state machine.
type State string

// Session controller states.
const (
	StateInit             State = "INIT"
	StateRoundStart       State = "ROUND_START"
	StateSupervisorDecide State = "SUPERVISOR_DECIDE"
	StateWorkerExec       State = "WORKER_EXEC"
	StatePhaseExec        State = "PHASE_EXEC"
	StateRoundEvaluate    State = "ROUND_EVALUATE"
	StateFinalize         State = "FINALIZE"
	StateDone             State = "DONE"
	StateCancelled        State = "CANCELLED"
	StateFailed           State = "FAILED"
)

// sessionTransitions is the canonical transition table for the session
// controller. It is the single source of truth; processState return values
// are validated against it on every step.
var sessionTransitions = map[State][]State{
	StateInit:             {StateRoundStart, StateFailed, StateCancelled},
	StateRoundStart:       {StateSupervisorDecide, StateFinalize, StateFailed, StateCancelled},
	StateSupervisorDecide: {StateWorkerExec, StatePhaseExec, StateRoundEvaluate, StateCancelled},
	StateWorkerExec:       {StateSupervisorDecide, StateRoundEvaluate, StateFailed, StateCancelled},
	StatePhaseExec:        {StateSupervisorDecide, StateRoundEvaluate, StateFailed, StateCancelled},
	StateRoundEvaluate:    {StateRoundStart, StateFinalize, StateCancelled},
	StateFinalize:         {StateDone, StateFailed},
	StateDone:             {},
	StateCancelled:        {},
	StateFailed:           {},
}

// ValidTransition reports whether from → to is allowed by the table.
func ValidTransition(from, to State) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state has no outgoing transitions.
func (s State) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// Valid reports whether s appears in the transition table.
func (s State) Valid() bool {
	_, ok := sessionTransitions[s]
	return ok
}

// RoundState is the per-round bookkeeping, reset at every RoundStart.
type RoundState struct {
	CurrentRound        int
	DiscussionStepCount int
	MaxDiscussionSteps  int

	// RoundStartCardSeq marks the card-store boundary: cards with Seq at
	// or above it belong to the active round.
	RoundStartCardSeq int

	// CommanderCalls counts commander invocations this round, feeding the
	// critique-cycle guardrail.
	CommanderCalls int

	StopRequested bool
	StopReason    proto.StopReason
	StopDetail    string
}

// maxDecisionNotes bounds the observability log of routing decisions.
const maxDecisionNotes = 64

// SessionState is the complete mutable state of one debate session,
// threaded by value through the controller's step functions and returned
// rather than mutated in place. Concurrent sessions therefore share nothing.
type SessionState struct {
	ID         string
	IncidentID string
	Title      string

	Status proto.SessionStatus
	State  State

	Round RoundState

	// Decision is the pending routing proposal consumed by the next
	// SupervisorDecide pass.
	Decision proto.RoutingDecision

	// Commands is the commander's per-worker directive map for the round.
	Commands map[string]string

	// Turns is the full transcript, degraded calls included.
	Turns []proto.Turn

	// Notes is the bounded log of routing decisions, for observability only.
	Notes []string

	ConsensusReached bool
	Verdict          *proto.FinalVerdict

	StartedAt time.Time
}

// note appends one observability line, keeping the log bounded.
func (st SessionState) note(format string, args ...any) SessionState {
	st.Notes = append(st.Notes, fmt.Sprintf(format, args...))
	if len(st.Notes) > maxDecisionNotes {
		st.Notes = st.Notes[len(st.Notes)-maxDecisionNotes:]
	}
	return st
}

// Snapshot is the point-in-time dump returned by the snapshot control
// signal.
type Snapshot struct {
	SessionID  string               `json:"session_id"`
	IncidentID string               `json:"incident_id"`
	Status     proto.SessionStatus  `json:"status"`
	State      State                `json:"state"`
	Round      int                  `json:"round"`
	Step       int                  `json:"step"`
	Commands   map[string]string    `json:"commands,omitempty"`
	Turns      []proto.Turn         `json:"turns,omitempty"`
	Notes      []string             `json:"notes,omitempty"`
	Verdict    *proto.FinalVerdict  `json:"verdict,omitempty"`
}

// snapshot projects the state onto the external snapshot shape. Slices and
// maps are copied so callers cannot reach back into live state.
func (st SessionState) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:  st.ID,
		IncidentID: st.IncidentID,
		Status:     st.Status,
		State:      st.State,
		Round:      st.Round.CurrentRound,
		Step:       st.Round.DiscussionStepCount,
		Verdict:    st.Verdict,
	}
	if len(st.Commands) > 0 {
		snap.Commands = make(map[string]string, len(st.Commands))
		for k, v := range st.Commands {
			snap.Commands[k] = v
		}
	}
	snap.Turns = append(snap.Turns, st.Turns...)
	snap.Notes = append(snap.Notes, st.Notes...)
	return snap
}
