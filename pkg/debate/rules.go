package debate

import (
	"sort"

	"inquest/pkg/proto"
)

// RoutingContext is the read-only view of round state handed to every rule.
// It is a plain value with no clock or randomness, so rule evaluation is
// deterministic given identical inputs.
type RoutingContext struct {
	// Proposed is the decision under review, usually the commander's.
	Proposed proto.RoutingDecision

	// RoundCards are the evidence cards appended during the active round.
	RoundCards []proto.EvidenceCard

	// CallCounts maps worker name to invocations this round.
	CallCounts map[string]int

	// RecentWorkers lists the workers active this round, most recent last.
	RecentWorkers []string

	DiscussionStep     int
	MaxDiscussionSteps int
	CommanderCalls     int

	// JudgeConfidence is the confidence of the judge's most recent
	// non-degraded card, zero when the judge has not usefully spoken.
	JudgeConfidence     float64
	JudgeSpokeThisRound bool

	CommanderConfidence float64
	CommanderUnresolved int

	CritiqueEnabled bool
	RebuttalEnabled bool
	CritiqueDone    bool
	RebuttalDone    bool

	// AnalysisDone reports that every parallel-analysis worker has spoken
	// this round.
	AnalysisDone bool

	ConsensusThreshold        float64
	CommanderSettleConfidence float64
	RevisitSettleConfidence   float64
}

// Rule is one independent routing guardrail. Evaluate returns its decision
// and true to claim the cycle, or false to pass to the next rule.
type Rule struct {
	Evaluate func(rc RoutingContext) (proto.RoutingDecision, bool)
	Name     string
	Priority int
}

// Engine evaluates rules in priority order and returns the first match;
// when no rule matches, the proposed decision passes through unmodified.
type Engine struct {
	rules []Rule
}

// NewEngine builds the default rule set. Lower priority evaluates first.
func NewEngine() *Engine {
	e := &Engine{rules: defaultRules()}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
	return e
}

// Decide runs the rules and returns the winning decision plus the name of
// the rule that claimed it ("" when the proposal passed through).
func (e *Engine) Decide(rc RoutingContext) (proto.RoutingDecision, string) {
	for _, rule := range e.rules {
		if decision, ok := rule.Evaluate(rc); ok {
			return decision, rule.Name
		}
	}
	return rc.Proposed, ""
}

func speakJudge(reason string) proto.RoutingDecision {
	return proto.RoutingDecision{
		NextStep: proto.SpeakStep(proto.RoleJudge.String()),
		Reason:   reason,
	}
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name:     "consensus",
			Priority: 10,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				if rc.JudgeConfidence < rc.ConsensusThreshold {
					return proto.RoutingDecision{}, false
				}
				// A verdict carried over from an earlier round must be
				// re-verified by the judge before it can stop the debate.
				if !rc.JudgeSpokeThisRound {
					return speakJudge("consensus candidate needs verification this round"), true
				}
				return proto.Stop(proto.StopConsensus, "judge confidence met the consensus threshold"), true
			},
		},
		{
			// Informational pass-through: never claims the cycle.
			Name:     "judge_ready",
			Priority: 15,
			Evaluate: func(RoutingContext) (proto.RoutingDecision, bool) {
				return proto.RoutingDecision{}, false
			},
		},
		{
			Name:     "budget",
			Priority: 20,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				if rc.DiscussionStep < rc.MaxDiscussionSteps-1 {
					return proto.RoutingDecision{}, false
				}
				if rc.JudgeConfidence >= rc.ConsensusThreshold {
					return proto.RoutingDecision{}, false
				}
				return speakJudge("step budget nearly exhausted without a judge verdict"), true
			},
		},
		{
			Name:     "repetition",
			Priority: 30,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				judge := proto.RoleJudge.String()
				if target, ok := proto.SpeakTarget(rc.Proposed.NextStep); ok && target != judge {
					if rc.CallCounts[target] >= 2 && rc.DiscussionStep > 6 {
						return speakJudge("worker " + target + " already spoke twice this round"), true
					}
				}
				if n := len(rc.RecentWorkers); n >= 3 {
					distinct := make(map[string]struct{}, 3)
					for _, w := range rc.RecentWorkers[n-3:] {
						distinct[w] = struct{}{}
					}
					if len(distinct) <= 2 {
						return speakJudge("recent speakers have collapsed to a loop"), true
					}
				}
				return proto.RoutingDecision{}, false
			},
		},
		{
			Name:     "critique_cycle",
			Priority: 40,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				if !rc.CritiqueDone || !rc.RebuttalDone || rc.CommanderCalls < 4 {
					return proto.RoutingDecision{}, false
				}
				if rc.Proposed.NextStep != proto.StepParallelAnalysis {
					return proto.RoutingDecision{}, false
				}
				return speakJudge("critique cycle complete; re-running analysis would not add evidence"), true
			},
		},
		{
			Name:     "post_rebuttal_settle",
			Priority: 45,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				if !rc.RebuttalDone || (rc.CritiqueEnabled && !rc.CritiqueDone) {
					return proto.RoutingDecision{}, false
				}
				if rc.DiscussionStep < 8 || rc.JudgeSpokeThisRound {
					return proto.RoutingDecision{}, false
				}
				if target, ok := proto.SpeakTarget(rc.Proposed.NextStep); ok && target == proto.RoleJudge.String() {
					return proto.RoutingDecision{}, false
				}
				return speakJudge("rebuttal settled and the discussion has run long"), true
			},
		},
		{
			Name:     "commander_settle",
			Priority: 50,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				if rc.CommanderCalls == 0 || rc.JudgeSpokeThisRound {
					return proto.RoutingDecision{}, false
				}
				if rc.CommanderConfidence < rc.CommanderSettleConfidence || rc.CommanderUnresolved != 0 {
					return proto.RoutingDecision{}, false
				}
				return speakJudge("commander reports high confidence with nothing unresolved"), true
			},
		},
		{
			Name:     "no_critique_revisit",
			Priority: 55,
			Evaluate: func(rc RoutingContext) (proto.RoutingDecision, bool) {
				if rc.CritiqueEnabled {
					return proto.RoutingDecision{}, false
				}
				target, ok := proto.SpeakTarget(rc.Proposed.NextStep)
				if !ok {
					return proto.RoutingDecision{}, false
				}
				role, err := proto.ParseWorkerRole(target)
				if err != nil || !role.IsAnalysis() {
					return proto.RoutingDecision{}, false
				}
				if rc.CallCounts[target] < 2 || rc.CommanderConfidence < rc.RevisitSettleConfidence {
					return proto.RoutingDecision{}, false
				}
				return speakJudge("analysis revisits capped in critique-disabled mode"), true
			},
		},
	}
}

// FallbackRoute is the deterministic rule-based router used when the
// commander's own routing output is unusable. It cycles parallel analysis →
// critique → rebuttal → judge → stop-on-consensus, skipping disabled
// phases, and guarantees progress with no model dependency.
func FallbackRoute(rc RoutingContext) proto.RoutingDecision {
	switch {
	case !rc.AnalysisDone:
		return proto.RoutingDecision{
			NextStep: proto.StepParallelAnalysis,
			Reason:   "fallback cycle: analysis wave incomplete",
		}
	case rc.CritiqueEnabled && !rc.CritiqueDone:
		return proto.RoutingDecision{
			NextStep: proto.SpeakStep(proto.RoleCritic.String()),
			Reason:   "fallback cycle: critique pending",
		}
	case rc.RebuttalEnabled && !rc.RebuttalDone:
		return proto.RoutingDecision{
			NextStep: proto.SpeakStep(proto.RoleRebuttal.String()),
			Reason:   "fallback cycle: rebuttal pending",
		}
	case !rc.JudgeSpokeThisRound:
		return speakJudge("fallback cycle: judgment pending")
	case rc.JudgeConfidence >= rc.ConsensusThreshold:
		return proto.Stop(proto.StopConsensus, "fallback cycle: consensus reached")
	default:
		// End the round without forcing the whole debate to stop; the
		// round evaluation decides whether another round is worthwhile.
		return proto.RoutingDecision{
			ShouldStop: true,
			Reason:     "fallback cycle complete without consensus",
		}
	}
}
