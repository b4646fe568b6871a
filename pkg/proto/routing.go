package proto

import "strings"

// Routing step values understood by the session controller. A step is
// either empty (undecided), a phase batch, or "speak:<WorkerName>".
const (
	StepNone             = ""
	StepParallelAnalysis = "parallel_analysis"
	StepCollaboration    = "collaboration"

	speakPrefix = "speak:"
)

// SpeakStep builds the routing step that makes a single worker speak.
func SpeakStep(worker string) string {
	return speakPrefix + worker
}

// SpeakTarget extracts the worker name from a "speak:<WorkerName>" step.
func SpeakTarget(step string) (string, bool) {
	if !strings.HasPrefix(step, speakPrefix) {
		return "", false
	}
	target := strings.TrimSpace(strings.TrimPrefix(step, speakPrefix))
	if target == "" {
		return "", false
	}
	return target, true
}

// RoutingDecision is the supervisor's answer to "what happens next".
// Produced fresh every decision cycle; retained only in a bounded notes
// log for observability.
type RoutingDecision struct {
	// NextStep is StepNone, StepParallelAnalysis, StepCollaboration,
	// or SpeakStep(worker).
	NextStep string `json:"next_step"`

	ShouldStop bool       `json:"should_stop"`
	StopReason StopReason `json:"stop_reason,omitempty"`

	// Reason is the human-readable explanation recorded with the decision.
	Reason string `json:"reason"`

	// Commands maps worker name to the commander-assigned directive for
	// the round, when the decision came from a commander dispatch.
	Commands map[string]string `json:"commands,omitempty"`
}

// Stop builds a stopping decision with the given reason.
func Stop(reason StopReason, detail string) RoutingDecision {
	return RoutingDecision{ShouldStop: true, StopReason: reason, Reason: detail}
}
