package debate

import (
	"fmt"
	"time"

	"inquest/pkg/opinion"
	"inquest/pkg/proto"
)

// Fallback confidence is clamped to this band: a synthesized verdict is
// never presented as near-certain, nor as worthless when real evidence
// backed it.
const (
	fallbackConfidenceFloor = 0.55
	fallbackConfidenceCeil  = 0.95
)

// riskHighBelow is the synthesized-confidence line under which fallback
// risk is graded high instead of medium.
const riskHighBelow = 0.75

// Synthesize builds the final verdict for a session. The judge's most
// recent usable card wins verbatim; a judge that is missing, degraded, or
// answering in placeholders sends synthesis to the highest-confidence
// non-judge card; a debate with no usable evidence at all yields a clearly
// marked zero-confidence "no result" verdict.
func Synthesize(sessionID, incidentID string, cards []proto.EvidenceCard, turns []proto.Turn,
	consensusReached bool, executedRounds int) proto.FinalVerdict {
	verdict := proto.FinalVerdict{
		SessionID:        sessionID,
		IncidentID:       incidentID,
		ConsensusReached: consensusReached,
		ExecutedRounds:   executedRounds,
		Turns:            turns,
		SynthesizedAt:    time.Now().UTC(),
	}

	judgeCard, judgePresent := latestJudgeCard(cards)
	if judgePresent {
		if jv := opinion.JudgeFromCard(judgeCard); jv.Usable() {
			return fromJudge(verdict, jv)
		}
	}
	verdict.ConsensusReached = false

	if best, ok := bestFallbackCard(cards); ok {
		return fromFallback(verdict, best, cards, judgePresent)
	}
	return noResult(verdict)
}

// fromJudge adopts the judge's verdict verbatim, defaulting each missing
// sub-object to its documented empty shape.
func fromJudge(verdict proto.FinalVerdict, jv opinion.JudgeVerdict) proto.FinalVerdict {
	verdict.RootCause = proto.RootCause{
		Summary:    jv.RootCause.Summary,
		Category:   jv.RootCause.Category,
		Confidence: opinion.ClampConfidence(jv.RootCause.Confidence),
	}
	if verdict.RootCause.Category == "" {
		verdict.RootCause.Category = CategoryFor(proto.RoleJudge.String())
	}
	verdict.EvidenceChain = jv.EvidenceChain
	verdict.FixRecommendation = jv.FixRecommendation
	verdict.ImpactAnalysis = jv.ImpactAnalysis
	verdict.Risk = jv.Risk
	if verdict.Risk.Level == "" {
		verdict.Risk.Level = proto.RiskMedium
	}
	verdict.DecisionRationale = jv.Rationale
	if verdict.DecisionRationale == "" {
		verdict.DecisionRationale = "adopted the judge's verdict"
	}
	verdict.ActionItems = jv.ActionItems
	verdict.Assignments = jv.Assignments
	verdict.Dissents = jv.Dissents
	return verdict
}

// fromFallback synthesizes a verdict from the best non-judge card when the
// judge produced nothing usable.
func fromFallback(verdict proto.FinalVerdict, best proto.EvidenceCard,
	cards []proto.EvidenceCard, judgePresent bool) proto.FinalVerdict {
	confidence := best.Confidence
	if confidence < fallbackConfidenceFloor {
		confidence = fallbackConfidenceFloor
	}
	if confidence > fallbackConfidenceCeil {
		confidence = fallbackConfidenceCeil
	}

	verdict.RootCause = proto.RootCause{
		Summary:    best.Conclusion,
		Category:   CategoryFor(best.Worker),
		Confidence: confidence,
	}

	verdict.EvidenceChain = best.Evidence
	if len(verdict.EvidenceChain) == 0 && best.Summary != "" {
		verdict.EvidenceChain = []string{best.Summary}
	}

	level := proto.RiskMedium
	switch {
	case !judgePresent:
		level = proto.RiskHigh
	case confidence < riskHighBelow:
		level = proto.RiskHigh
	}
	verdict.Risk = proto.RiskAssessment{
		Level:   level,
		Factors: []string{"verdict synthesized without a usable judge ruling"},
	}
	if degraded := degradedWorkers(cards); len(degraded) > 0 {
		verdict.Risk.Factors = append(verdict.Risk.Factors,
			fmt.Sprintf("degraded workers this session: %v", degraded))
	}

	verdict.DecisionRationale = fmt.Sprintf(
		"judge unavailable; synthesized from %s's highest-confidence conclusion", best.Worker)
	verdict.Dissents = dissentsAgainst(best, cards)
	return verdict
}

// noResult is the zero-confidence verdict for a debate that produced no
// usable evidence at all.
func noResult(verdict proto.FinalVerdict) proto.FinalVerdict {
	verdict.RootCause = proto.RootCause{
		Summary:    "no result: debate produced no usable evidence",
		Category:   "unknown",
		Confidence: 0,
	}
	verdict.Risk = proto.RiskAssessment{
		Level:   proto.RiskHigh,
		Factors: []string{"no worker produced a usable conclusion"},
	}
	verdict.DecisionRationale = "every worker output was missing, degraded, or a placeholder"
	return verdict
}

// latestJudgeCard returns the judge's most recent non-degraded card.
func latestJudgeCard(cards []proto.EvidenceCard) (proto.EvidenceCard, bool) {
	judge := proto.RoleJudge.String()
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i].Worker == judge && !cards[i].Degraded {
			return cards[i], true
		}
	}
	return proto.EvidenceCard{}, false
}

// bestFallbackCard picks the highest-confidence non-judge card carrying a
// real conclusion; among equals the most recent wins.
func bestFallbackCard(cards []proto.EvidenceCard) (proto.EvidenceCard, bool) {
	judge := proto.RoleJudge.String()
	var best proto.EvidenceCard
	found := false
	for i := len(cards) - 1; i >= 0; i-- {
		card := cards[i]
		if card.Worker == judge || card.Degraded || opinion.IsPlaceholder(card.Conclusion) {
			continue
		}
		if !found || card.Confidence > best.Confidence {
			best = card
			found = true
		}
	}
	return best, found
}

// dissentsAgainst collects other workers' conclusions so the synthesized
// verdict preserves the disagreement the judge never resolved.
func dissentsAgainst(best proto.EvidenceCard, cards []proto.EvidenceCard) []string {
	const maxDissents = 3
	var out []string
	seen := map[string]struct{}{best.Worker: {}}
	for i := len(cards) - 1; i >= 0 && len(out) < maxDissents; i-- {
		card := cards[i]
		if card.Degraded || opinion.IsPlaceholder(card.Conclusion) {
			continue
		}
		if _, dup := seen[card.Worker]; dup {
			continue
		}
		if card.Worker == proto.RoleJudge.String() || card.Worker == proto.RoleCommander.String() {
			continue
		}
		seen[card.Worker] = struct{}{}
		out = append(out, fmt.Sprintf("%s: %s", card.Worker, card.Conclusion))
	}
	return out
}

// degradedWorkers lists the distinct workers that degraded this session.
func degradedWorkers(cards []proto.EvidenceCard) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, card := range cards {
		if !card.Degraded {
			continue
		}
		if _, dup := seen[card.Worker]; dup {
			continue
		}
		seen[card.Worker] = struct{}{}
		out = append(out, card.Worker)
	}
	return out
}
