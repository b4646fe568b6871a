// Package debate implements the orchestration core: the worker catalog,
// the evidence card store and inter-worker mailbox, the worker execution
// manager, the phase executors, the priority-ordered routing rule engine,
// the round/session controller, and the final verdict synthesizer.
package debate

import (
	"fmt"

	"inquest/pkg/config"
	"inquest/pkg/proto"
	"inquest/pkg/templates"
)

// WorkerSpec is the immutable description of one debate role, constructed
// once at session start from the catalog and never mutated.
type WorkerSpec struct {
	// Name is the routing-visible worker name, always the role string.
	Name string
	Role proto.WorkerRole

	// Description is the role description injected into prompts.
	Description string

	// Phase tags the turns this worker produces.
	Phase proto.Phase

	// Template is the prompt template this worker speaks through.
	Template templates.PromptTemplate

	// Model is the resolved model name for this role class.
	Model string

	// MaxOutputTokens is the output budget by role.
	MaxOutputTokens int

	// Attempts is the timeout-plan length: judge and commander get two
	// increasing attempts, everyone else one.
	Attempts int

	// Category is the root-cause category the synthesizer assigns when
	// this worker's card wins the fallback.
	Category string

	// SchemaHint is the JSON reply shape appended to the prompt.
	SchemaHint string
}

// Reply shapes requested from the model. The normalizer tolerates replies
// that only approximate them.
const (
	opinionSchema = `{"summary": string, "conclusion": string, "evidence": [string], "confidence": number in [0,1]}`

	judgeSchema = `{"root_cause": {"summary": string, "category": string, "confidence": number}, ` +
		`"evidence_chain": [string], "fix_recommendation": string, "impact_analysis": string, ` +
		`"risk_assessment": {"level": "low"|"medium"|"high", "factors": [string]}, ` +
		`"decision_rationale": string, "action_items": [string], "assignments": {worker: string}, ` +
		`"dissenting_opinions": [string], "confidence": number in [0,1]}`

	commanderSchema = `{"commands": {worker: string}, "next_step": "parallel_analysis"|"collaboration"|"speak:<worker>", ` +
		`"should_stop": bool, "reason": string, "unresolved_questions": number, "confidence": number in [0,1], ` +
		`"summary": string}`
)

// Roster is the fixed worker set for one session.
type Roster struct {
	specs  []WorkerSpec
	byName map[string]WorkerSpec
}

// NewRoster builds the session's worker catalog. Critique and rebuttal
// workers are included only when the matching flags are on.
func NewRoster(cfg config.DebateConfig) Roster {
	specs := []WorkerSpec{
		{
			Name:            proto.RoleCommander.String(),
			Role:            proto.RoleCommander,
			Description:     "You coordinate the debate: decompose the incident into per-worker directives and steer who speaks next.",
			Phase:           proto.PhaseCommand,
			Template:        templates.CommanderTemplate,
			Model:           cfg.CommanderModel,
			MaxOutputTokens: 2048,
			Attempts:        2,
			Category:        "coordination",
			SchemaHint:      commanderSchema,
		},
		{
			Name:            proto.RoleLogAnalyst.String(),
			Role:            proto.RoleLogAnalyst,
			Description:     "You read runtime telemetry: log excerpts, error bursts, timing anomalies, and correlate them into a failure timeline.",
			Phase:           proto.PhaseParallelAnalysis,
			Template:        templates.AnalysisTemplate,
			Model:           cfg.AnalysisModel,
			MaxOutputTokens: 3072,
			Attempts:        1,
			Category:        "infrastructure",
			SchemaHint:      opinionSchema,
		},
		{
			Name:            proto.RoleDomainMapper.String(),
			Role:            proto.RoleDomainMapper,
			Description:     "You map the incident onto the system's domain: which business flows, services, and contracts are implicated and how they interact.",
			Phase:           proto.PhaseParallelAnalysis,
			Template:        templates.AnalysisTemplate,
			Model:           cfg.AnalysisModel,
			MaxOutputTokens: 3072,
			Attempts:        1,
			Category:        "design",
			SchemaHint:      opinionSchema,
		},
		{
			Name:            proto.RoleCodeAnalyst.String(),
			Role:            proto.RoleCodeAnalyst,
			Description:     "You inspect the implicated code paths: recent changes, suspicious constructs, and concrete defects that explain the observed behavior.",
			Phase:           proto.PhaseParallelAnalysis,
			Template:        templates.AnalysisTemplate,
			Model:           cfg.AnalysisModel,
			MaxOutputTokens: 3072,
			Attempts:        1,
			Category:        "code",
			SchemaHint:      opinionSchema,
		},
	}

	if cfg.EnableCritique {
		specs = append(specs, WorkerSpec{
			Name:            proto.RoleCritic.String(),
			Role:            proto.RoleCritic,
			Description:     "You challenge the standing conclusions: find unsupported leaps, contradicting evidence, and alternative explanations.",
			Phase:           proto.PhaseCritique,
			Template:        templates.CritiqueTemplate,
			Model:           cfg.CritiqueModel,
			MaxOutputTokens: 2048,
			Attempts:        1,
			Category:        "analysis",
			SchemaHint:      opinionSchema,
		})
	}
	if cfg.EnableRebuttal {
		specs = append(specs, WorkerSpec{
			Name:            proto.RoleRebuttal.String(),
			Role:            proto.RoleRebuttal,
			Description:     "You answer the critique: adopt the points that hold, refute the ones that do not, and restate the strongest surviving conclusion.",
			Phase:           proto.PhaseRebuttal,
			Template:        templates.RebuttalTemplate,
			Model:           cfg.CritiqueModel,
			MaxOutputTokens: 2048,
			Attempts:        1,
			Category:        "analysis",
			SchemaHint:      opinionSchema,
		})
	}

	specs = append(specs, WorkerSpec{
		Name:            proto.RoleJudge.String(),
		Role:            proto.RoleJudge,
		Description:     "You weigh every worker's evidence and deliver the verdict, citing the evidence chain that supports it.",
		Phase:           proto.PhaseJudgment,
		Template:        templates.JudgmentTemplate,
		Model:           cfg.JudgeModel,
		MaxOutputTokens: 4096,
		Attempts:        2,
		Category:        "judgment",
		SchemaHint:      judgeSchema,
	})

	byName := make(map[string]WorkerSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}
	return Roster{specs: specs, byName: byName}
}

// Get returns the spec for a worker name.
func (r Roster) Get(name string) (WorkerSpec, error) {
	spec, ok := r.byName[name]
	if !ok {
		return WorkerSpec{}, fmt.Errorf("unknown worker %q", name)
	}
	return spec, nil
}

// Has reports whether the roster carries the named worker.
func (r Roster) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Analysis returns the parallel-analysis wave in dispatch order.
func (r Roster) Analysis() []WorkerSpec {
	out := make([]WorkerSpec, 0, 3)
	for _, spec := range r.specs {
		if spec.Role.IsAnalysis() {
			out = append(out, spec)
		}
	}
	return out
}

// Commander returns the commander spec.
func (r Roster) Commander() WorkerSpec {
	return r.byName[proto.RoleCommander.String()]
}

// Judge returns the judge spec.
func (r Roster) Judge() WorkerSpec {
	return r.byName[proto.RoleJudge.String()]
}

// All returns every spec in catalog order.
func (r Roster) All() []WorkerSpec {
	out := make([]WorkerSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// categoryByWorker is the fixed worker → root-cause category map used by
// fallback synthesis.
var categoryByWorker = map[string]string{
	proto.RoleLogAnalyst.String():   "infrastructure",
	proto.RoleDomainMapper.String(): "design",
	proto.RoleCodeAnalyst.String():  "code",
	proto.RoleCritic.String():       "analysis",
	proto.RoleRebuttal.String():     "analysis",
	proto.RoleCommander.String():    "coordination",
	proto.RoleJudge.String():        "judgment",
}

// CategoryFor maps a worker name to its root-cause category.
func CategoryFor(worker string) string {
	if cat, ok := categoryByWorker[worker]; ok {
		return cat
	}
	return "unknown"
}
