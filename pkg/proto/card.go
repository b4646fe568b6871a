package proto

import (
	"time"
)

// EvidenceCard is the normalized, size-bounded record of one completed
// worker call, used for cross-worker context and verdict synthesis.
type EvidenceCard struct {
	// Seq is the store-assigned append order, monotone across the session.
	Seq int `json:"seq"`

	Worker string     `json:"worker"`
	Role   WorkerRole `json:"-"`
	Phase  Phase      `json:"phase"`

	Summary    string   `json:"summary"`
	Conclusion string   `json:"conclusion"`
	Evidence   []string `json:"evidence,omitempty"`

	// Confidence is clamped to [0,1] during normalization.
	Confidence float64 `json:"confidence"`

	// Raw preserves the structured output the normalizer recovered.
	Raw map[string]any `json:"raw,omitempty"`

	// Degraded marks a card synthesized after terminal worker failure.
	// Routing and synthesis treat its conclusion as filler, not a finding.
	Degraded bool `json:"degraded,omitempty"`
}

// Turn is the audit-grade superset of an EvidenceCard: one executed worker
// call, including degraded and fallback calls.
type Turn struct {
	EvidenceCard

	Round     int    `json:"round"`
	LoopRound int    `json:"loop_round"`
	Prompt    string `json:"prompt,omitempty"`
	Model     string `json:"model,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	DegradeReason string `json:"degrade_reason,omitempty"`
}

// Latency is the wall-clock duration of the call behind this turn.
func (t Turn) Latency() time.Duration {
	if t.CompletedAt.IsZero() || t.StartedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
