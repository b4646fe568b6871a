package debate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/proto"
)

func judgeCardFixture(conf float64) proto.EvidenceCard {
	return proto.EvidenceCard{
		Worker:     "judge",
		Role:       proto.RoleJudge,
		Phase:      proto.PhaseJudgment,
		Summary:    "verdict",
		Conclusion: "pool cap set below peak load",
		Confidence: conf,
		Raw: map[string]any{
			"root_cause": map[string]any{
				"summary":    "pool cap set below peak load",
				"category":   "code",
				"confidence": conf,
			},
			"evidence_chain":     []any{"pool waits spiked", "deploy lowered the cap"},
			"fix_recommendation": "restore the previous pool cap",
			"risk_assessment":    map[string]any{"level": "low"},
			"decision_rationale": "all three analysts converged",
			"confidence":         conf,
		},
	}
}

func TestSynthesizeAdoptsJudgeVerbatim(t *testing.T) {
	cards := []proto.EvidenceCard{
		{Worker: "log_analyst", Conclusion: "errors correlate with deploy", Confidence: 0.95},
		judgeCardFixture(0.9),
	}

	v := Synthesize("sess-1", "inc-1", cards, nil, true, 1)

	assert.True(t, v.ConsensusReached)
	assert.Equal(t, "pool cap set below peak load", v.RootCause.Summary)
	assert.Equal(t, "code", v.RootCause.Category)
	assert.InDelta(t, 0.9, v.RootCause.Confidence, 1e-9)
	assert.Equal(t, []string{"pool waits spiked", "deploy lowered the cap"}, v.EvidenceChain)
	assert.Equal(t, "restore the previous pool cap", v.FixRecommendation)
	assert.Equal(t, proto.RiskLow, v.Risk.Level)
	assert.Equal(t, "all three analysts converged", v.DecisionRationale)
	assert.Equal(t, 1, v.ExecutedRounds)
}

func TestSynthesizeUsesLatestJudgeCard(t *testing.T) {
	stale := judgeCardFixture(0.6)
	fresh := judgeCardFixture(0.88)
	cards := []proto.EvidenceCard{stale, fresh}

	v := Synthesize("sess-1", "inc-1", cards, nil, true, 2)
	assert.InDelta(t, 0.88, v.RootCause.Confidence, 1e-9)
}

func TestSynthesizeFallsBackWithoutUsableJudge(t *testing.T) {
	cards := []proto.EvidenceCard{
		{Worker: "log_analyst", Conclusion: "errors correlate with deploy", Summary: "timeline", Confidence: 0.7},
		{Worker: "code_analyst", Conclusion: "pool cap reduced in last diff", Evidence: []string{"config diff"}, Confidence: 0.8},
		{Worker: "judge", Conclusion: "judge: call timed out, degraded to continue", Confidence: 0.3, Degraded: true},
	}

	v := Synthesize("sess-1", "inc-1", cards, nil, true, 3)

	// Consensus never survives fallback synthesis.
	assert.False(t, v.ConsensusReached)
	assert.Equal(t, "pool cap reduced in last diff", v.RootCause.Summary)
	assert.Equal(t, "code", v.RootCause.Category)
	assert.InDelta(t, 0.8, v.RootCause.Confidence, 1e-9)
	assert.Equal(t, proto.RiskHigh, v.Risk.Level)
	assert.Contains(t, v.DecisionRationale, "code_analyst")
	require.NotEmpty(t, v.Risk.Factors)
	assert.Contains(t, v.Risk.Factors[0], "without a usable judge ruling")

	// The loser's conclusion is preserved as a dissent.
	require.Len(t, v.Dissents, 1)
	assert.Contains(t, v.Dissents[0], "log_analyst")
}

func TestSynthesizeFallbackClampsConfidence(t *testing.T) {
	cards := []proto.EvidenceCard{
		{Worker: "domain_mapper", Conclusion: "a shaky hunch", Confidence: 0.2},
	}
	v := Synthesize("sess-1", "inc-1", cards, nil, false, 1)
	assert.InDelta(t, fallbackConfidenceFloor, v.RootCause.Confidence, 1e-9)

	cards[0].Confidence = 0.99
	v = Synthesize("sess-1", "inc-1", cards, nil, false, 1)
	assert.InDelta(t, fallbackConfidenceCeil, v.RootCause.Confidence, 1e-9)
}

func TestSynthesizeFallbackSkipsDegradedAndPlaceholders(t *testing.T) {
	cards := []proto.EvidenceCard{
		{Worker: "log_analyst", Conclusion: "log_analyst: call failed, degraded to continue", Confidence: 0.3, Degraded: true},
		{Worker: "code_analyst", Conclusion: "pending", Confidence: 0.9},
		{Worker: "domain_mapper", Conclusion: "cart service contract drift", Confidence: 0.6},
	}

	v := Synthesize("sess-1", "inc-1", cards, nil, false, 1)
	assert.Equal(t, "cart service contract drift", v.RootCause.Summary)
	assert.Equal(t, "design", v.RootCause.Category)

	// Degraded workers are called out as a risk factor.
	found := false
	for _, f := range v.Risk.Factors {
		if strings.Contains(f, "degraded workers") && strings.Contains(f, "log_analyst") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSynthesizeNoResult(t *testing.T) {
	cards := []proto.EvidenceCard{
		{Worker: "log_analyst", Conclusion: "log_analyst: call timed out, degraded to continue", Degraded: true},
		{Worker: "judge", Conclusion: "judge: call timed out, degraded to continue", Degraded: true},
	}

	v := Synthesize("sess-1", "inc-1", cards, nil, false, 3)

	assert.False(t, v.ConsensusReached)
	assert.Zero(t, v.RootCause.Confidence)
	assert.Equal(t, "unknown", v.RootCause.Category)
	assert.Equal(t, proto.RiskHigh, v.Risk.Level)
	assert.Contains(t, v.RootCause.Summary, "no result")
}
