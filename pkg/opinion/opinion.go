// Package opinion normalizes raw model replies into typed debate records.
// Models are asked for JSON but routinely return fenced, truncated, or
// prose-wrapped output, so every entry point is best-effort: it always
// returns a usable record and never an error. The recovery chain is
// strict parse, repaired parse, keyed-substring scan, largest balanced
// object, empty record.
package opinion

import (
	"strings"

	"inquest/pkg/proto"
)

// Opinion is the generic normalized record produced by analysis, critique,
// and rebuttal workers.
type Opinion struct {
	Summary    string
	Conclusion string
	Evidence   []string

	// Confidence is clamped to [0,1].
	Confidence float64

	// Raw preserves whatever object the parser recovered, for audit and
	// checkpointing. Nil when nothing object-shaped was found.
	Raw map[string]any
}

// JudgeVerdict is the normalized record for judge output. The embedded
// Opinion carries the card-level fields; the rest mirrors the final
// verdict shape the judge is prompted to produce.
type JudgeVerdict struct {
	Opinion

	RootCause         proto.RootCause
	EvidenceChain     []string
	FixRecommendation string
	ImpactAnalysis    string
	Risk              proto.RiskAssessment
	Rationale         string
	ActionItems       []string
	Assignments       map[string]string
	Dissents          []string
}

// CommanderCommand is the normalized record for commander output: the
// suggested route, per-worker commands, and the commander's own settle
// signals.
type CommanderCommand struct {
	Opinion

	// NextStep is "parallel_analysis", "collaboration", "speak:<worker>",
	// or whatever else the model proposed; the controller validates it.
	NextStep   string
	ShouldStop bool
	StopReason string
	Reason     string

	// Commands maps worker name to the directive assigned for the round.
	Commands map[string]string

	// UnresolvedQuestions is the commander's self-reported count of open
	// questions. A missing field reads as zero; the settle rule also
	// requires a parsed high confidence, so a failed parse cannot fire it.
	UnresolvedQuestions int
}

// Normalize converts raw model text into a generic opinion record. The
// conclusion is never empty: it falls back to the summary, then to the
// raw text itself.
func Normalize(text string) Opinion {
	m, _ := parseLoose(text)
	return opinionFrom(m, text)
}

// NormalizeJudge converts raw judge output into a verdict record. A reply
// with no recoverable root-cause summary yields an unusable verdict, which
// sends synthesis down the fallback path.
func NormalizeJudge(text string) JudgeVerdict {
	m, ok := parseLoose(text)
	v := JudgeVerdict{Opinion: opinionFrom(m, text)}
	if !ok {
		return v
	}
	fillJudge(&v, m)
	return v
}

// JudgeFromCard rebuilds the judge verdict record from an evidence card,
// using the raw object preserved at normalization time. Cards that carried
// no recoverable object keep only their card-level fields.
func JudgeFromCard(card proto.EvidenceCard) JudgeVerdict {
	v := JudgeVerdict{Opinion: Opinion{
		Summary:    card.Summary,
		Conclusion: card.Conclusion,
		Evidence:   card.Evidence,
		Confidence: card.Confidence,
		Raw:        card.Raw,
	}}
	if card.Raw != nil {
		fillJudge(&v, card.Raw)
	}
	if v.RootCause.Summary == "" {
		v.RootCause.Summary = card.Conclusion
	}
	if v.RootCause.Confidence == 0 {
		v.RootCause.Confidence = card.Confidence
	}
	return v
}

func fillJudge(v *JudgeVerdict, m map[string]any) {
	v.RootCause = rootCauseFrom(m)
	v.EvidenceChain = stringsField(m, "evidence_chain", "evidence")
	v.FixRecommendation = stringField(m, "fix_recommendation", "fix")
	v.ImpactAnalysis = stringField(m, "impact_analysis", "impact")
	v.Risk = riskFrom(m)
	v.Rationale = stringField(m, "decision_rationale", "rationale")
	v.ActionItems = stringsField(m, "action_items", "actions")
	v.Assignments = stringMapField(m, "assignments", "responsible_parties")
	v.Dissents = stringsField(m, "dissenting_opinions", "dissents")

	// A judge that answered with only a conclusion still made a finding.
	if v.RootCause.Summary == "" {
		v.RootCause.Summary = stringField(m, "conclusion", "final_conclusion", "summary", "analysis_summary")
	}

	// Confidence may arrive at the top level, inside root_cause, or both;
	// each side defaults to the other.
	if v.RootCause.Confidence == 0 {
		v.RootCause.Confidence = v.Confidence
	}
	if v.Confidence == 0 {
		v.Opinion.Confidence = v.RootCause.Confidence
	}
	if len(v.Opinion.Evidence) == 0 {
		v.Opinion.Evidence = v.EvidenceChain
	}
}

// NormalizeCommander converts raw commander output into a command record.
func NormalizeCommander(text string) CommanderCommand {
	m, ok := parseLoose(text)
	c := CommanderCommand{Opinion: opinionFrom(m, text)}
	if !ok {
		return c
	}
	fillCommander(&c, m)
	return c
}

// CommanderFromCard rebuilds the commander command record from an evidence
// card's preserved raw object.
func CommanderFromCard(card proto.EvidenceCard) CommanderCommand {
	c := CommanderCommand{Opinion: Opinion{
		Summary:    card.Summary,
		Conclusion: card.Conclusion,
		Evidence:   card.Evidence,
		Confidence: card.Confidence,
		Raw:        card.Raw,
	}}
	if card.Raw != nil {
		fillCommander(&c, card.Raw)
	}
	return c
}

func fillCommander(c *CommanderCommand, m map[string]any) {
	c.NextStep = strings.ToLower(stringField(m, "next_step", "next_action"))
	c.ShouldStop = boolField(m, "should_stop", "stop")
	c.StopReason = stringField(m, "stop_reason")
	c.Reason = stringField(m, "reason", "routing_reason")
	c.Commands = stringMapField(m, "commands", "agent_commands")
	c.UnresolvedQuestions = countField(m, "unresolved_questions", "open_questions")

	// Commanders rarely write a conclusion; their reason reads better on
	// the card than the raw reply.
	if stringField(m, "conclusion", "final_conclusion", "summary", "analysis_summary") == "" && c.Reason != "" {
		c.Opinion.Conclusion = c.Reason
	}
}

// Usable reports whether the verdict carries a real root-cause finding
// rather than a placeholder.
func (v JudgeVerdict) Usable() bool {
	return !IsPlaceholder(v.RootCause.Summary)
}

// placeholderSummaries are answers that mean the model did not actually
// decide anything.
var placeholderSummaries = map[string]struct{}{
	"":                       {},
	"needs further analysis": {},
	"pending":                {},
	"unknown":                {},
}

// IsPlaceholder reports whether a summary or conclusion carries no real
// finding. Matching is case-insensitive.
func IsPlaceholder(s string) bool {
	_, ok := placeholderSummaries[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ClampConfidence forces a model-reported confidence into [0,1].
func ClampConfidence(v float64) float64 {
	switch {
	case v != v: // NaN, reachable through string-typed confidence fields
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func opinionFrom(m map[string]any, raw string) Opinion {
	op := Opinion{
		Summary:    stringField(m, "summary", "analysis_summary"),
		Conclusion: stringField(m, "conclusion", "final_conclusion"),
		Evidence:   stringsField(m, "evidence", "evidence_list"),
		Confidence: ClampConfidence(floatField(m, "confidence", "confidence_score")),
		Raw:        m,
	}
	if op.Conclusion == "" {
		op.Conclusion = op.Summary
	}
	if op.Conclusion == "" {
		op.Conclusion = strings.TrimSpace(raw)
	}
	if op.Conclusion == "" {
		op.Conclusion = "no conclusion provided"
	}
	return op
}

func rootCauseFrom(m map[string]any) proto.RootCause {
	switch raw := m["root_cause"].(type) {
	case map[string]any:
		return proto.RootCause{
			Summary:    stringField(raw, "summary", "description"),
			Category:   stringField(raw, "category"),
			Confidence: ClampConfidence(floatField(raw, "confidence")),
		}
	case string:
		return proto.RootCause{Summary: strings.TrimSpace(raw)}
	}
	return proto.RootCause{}
}

func riskFrom(m map[string]any) proto.RiskAssessment {
	switch raw := m["risk_assessment"].(type) {
	case map[string]any:
		return proto.RiskAssessment{
			Level:   strings.ToLower(stringField(raw, "level", "risk_level")),
			Factors: stringsField(raw, "factors", "risk_factors"),
		}
	case string:
		return proto.RiskAssessment{Level: strings.ToLower(strings.TrimSpace(raw))}
	}
	return proto.RiskAssessment{
		Level:   strings.ToLower(stringField(m, "risk_level")),
		Factors: stringsField(m, "risk_factors"),
	}
}
