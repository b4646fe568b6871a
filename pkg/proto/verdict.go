package proto

import "time"

// Risk levels reported in a verdict's risk assessment.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RootCause is the primary finding of a debate: what broke and how sure
// the debate is about it.
type RootCause struct {
	Summary    string  `json:"summary"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// RiskAssessment grades the residual risk of acting on a verdict.
type RiskAssessment struct {
	Level   string   `json:"level"`
	Factors []string `json:"factors,omitempty"`
}

// FinalVerdict is the immutable outcome of one debate session, built
// exactly once by the verdict synthesizer.
type FinalVerdict struct {
	SessionID  string `json:"session_id"`
	IncidentID string `json:"incident_id,omitempty"`

	RootCause         RootCause      `json:"root_cause"`
	EvidenceChain     []string       `json:"evidence_chain,omitempty"`
	FixRecommendation string         `json:"fix_recommendation,omitempty"`
	ImpactAnalysis    string         `json:"impact_analysis,omitempty"`
	Risk              RiskAssessment `json:"risk_assessment"`

	// DecisionRationale records how the verdict was reached, including
	// whether it was synthesized because the judge was unavailable.
	DecisionRationale string `json:"decision_rationale"`

	ActionItems []string          `json:"action_items,omitempty"`
	Assignments map[string]string `json:"assignments,omitempty"`
	Dissents    []string          `json:"dissenting_opinions,omitempty"`

	ConsensusReached bool `json:"consensus_reached"`
	ExecutedRounds   int  `json:"executed_rounds"`

	// Turns is the full debate transcript, degraded calls included.
	Turns []Turn `json:"turns,omitempty"`

	SynthesizedAt time.Time `json:"synthesized_at"`
}
