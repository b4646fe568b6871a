package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/config"
	"inquest/pkg/proto"
)

// ruleContext is a quiet mid-round context no guardrail should claim.
func ruleContext() RoutingContext {
	cfg := config.DefaultConfig().Debate
	return RoutingContext{
		Proposed:                  proto.RoutingDecision{NextStep: proto.StepParallelAnalysis},
		CallCounts:                map[string]int{},
		MaxDiscussionSteps:        cfg.MaxDiscussionSteps,
		CritiqueEnabled:           true,
		RebuttalEnabled:           true,
		ConsensusThreshold:        cfg.ConsensusThreshold,
		CommanderSettleConfidence: cfg.CommanderSettleConfidence,
		RevisitSettleConfidence:   cfg.RevisitSettleConfidence,
	}
}

func TestEnginePassThrough(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()

	decision, rule := engine.Decide(rc)
	assert.Empty(t, rule)
	assert.Equal(t, rc.Proposed, decision)
}

func TestEngineIsDeterministic(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.JudgeConfidence = 0.9
	rc.JudgeSpokeThisRound = true

	first, firstRule := engine.Decide(rc)
	second, secondRule := engine.Decide(rc)
	assert.Equal(t, first, second)
	assert.Equal(t, firstRule, secondRule)
}

func TestConsensusRuleStops(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.JudgeConfidence = 0.9
	rc.JudgeSpokeThisRound = true

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "consensus", rule)
	assert.True(t, decision.ShouldStop)
	assert.Equal(t, proto.StopConsensus, decision.StopReason)
}

func TestConsensusRequiresVerificationThisRound(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.JudgeConfidence = 0.9
	rc.JudgeSpokeThisRound = false

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "consensus", rule)
	assert.False(t, decision.ShouldStop)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)
}

func TestBudgetRuleForcesJudge(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.DiscussionStep = rc.MaxDiscussionSteps - 1
	rc.JudgeConfidence = 0.4
	rc.JudgeSpokeThisRound = true // keeps consensus rule out of the way

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "budget", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)
}

func TestRepetitionRuleCapsRevisits(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.Proposed = proto.RoutingDecision{NextStep: proto.SpeakStep("log_analyst")}
	rc.CallCounts = map[string]int{"log_analyst": 2}
	rc.DiscussionStep = 7

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "repetition", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)

	// Early in the round the same revisit is still allowed.
	rc.DiscussionStep = 4
	decision, rule = engine.Decide(rc)
	assert.Empty(t, rule)
	assert.Equal(t, proto.SpeakStep("log_analyst"), decision.NextStep)
}

func TestRepetitionRuleBreaksLoops(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.RecentWorkers = []string{"critic", "rebuttal", "critic"}

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "repetition", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)
}

func TestCritiqueCycleRule(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.CritiqueDone = true
	rc.RebuttalDone = true
	rc.CommanderCalls = 4
	rc.Proposed = proto.RoutingDecision{NextStep: proto.StepParallelAnalysis}

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "critique_cycle", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)

	// Below the commander-call floor the proposal survives.
	rc.CommanderCalls = 3
	_, rule = engine.Decide(rc)
	assert.Empty(t, rule)
}

func TestPostRebuttalSettleRule(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.CritiqueDone = true
	rc.RebuttalDone = true
	rc.DiscussionStep = 8
	rc.RecentWorkers = []string{"log_analyst", "critic", "rebuttal"}
	rc.Proposed = proto.RoutingDecision{NextStep: proto.SpeakStep("domain_mapper")}

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "post_rebuttal_settle", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)
}

func TestCommanderSettleRule(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.CommanderCalls = 1
	rc.CommanderConfidence = 0.8
	rc.CommanderUnresolved = 0

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "commander_settle", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)

	// Open questions keep the debate going.
	rc.CommanderUnresolved = 2
	_, rule = engine.Decide(rc)
	assert.Empty(t, rule)
}

func TestNoCritiqueRevisitRule(t *testing.T) {
	engine := NewEngine()
	rc := ruleContext()
	rc.CritiqueEnabled = false
	rc.Proposed = proto.RoutingDecision{NextStep: proto.SpeakStep("code_analyst")}
	rc.CallCounts = map[string]int{"code_analyst": 2}
	rc.CommanderConfidence = 0.7

	decision, rule := engine.Decide(rc)
	assert.Equal(t, "no_critique_revisit", rule)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)
}

func TestFallbackRouteCycle(t *testing.T) {
	rc := ruleContext()

	decision := FallbackRoute(rc)
	assert.Equal(t, proto.StepParallelAnalysis, decision.NextStep)

	rc.AnalysisDone = true
	decision = FallbackRoute(rc)
	assert.Equal(t, proto.SpeakStep("critic"), decision.NextStep)

	rc.CritiqueDone = true
	decision = FallbackRoute(rc)
	assert.Equal(t, proto.SpeakStep("rebuttal"), decision.NextStep)

	rc.RebuttalDone = true
	decision = FallbackRoute(rc)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)

	rc.JudgeSpokeThisRound = true
	rc.JudgeConfidence = 0.9
	decision = FallbackRoute(rc)
	require.True(t, decision.ShouldStop)
	assert.Equal(t, proto.StopConsensus, decision.StopReason)

	// Without consensus the cycle ends the round, not the session.
	rc.JudgeConfidence = 0.5
	decision = FallbackRoute(rc)
	require.True(t, decision.ShouldStop)
	assert.Equal(t, proto.StopNone, decision.StopReason)
}

func TestFallbackRouteSkipsDisabledPhases(t *testing.T) {
	rc := ruleContext()
	rc.AnalysisDone = true
	rc.CritiqueEnabled = false
	rc.RebuttalEnabled = false

	decision := FallbackRoute(rc)
	assert.Equal(t, proto.SpeakStep("judge"), decision.NextStep)
}
