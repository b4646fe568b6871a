package debate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inquest/pkg/config"
	"inquest/pkg/contextmgr"
	"inquest/pkg/eventlog"
	"inquest/pkg/llm"
	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/logx"
	"inquest/pkg/metrics"
	"inquest/pkg/opinion"
	"inquest/pkg/proto"
)

// previewChars bounds prompt/response previews carried on telemetry events.
const previewChars = 240

// minRetryBudget floors the output budget so a compacted retry can still
// produce a parseable reply.
const minRetryBudget = 256

// Degrade reasons surfaced in degraded-turn conclusions.
const (
	DegradeTimeout   = "call timed out, degraded to continue"
	DegradeRateLimit = "call was rate-limited, degraded to continue"
	DegradeGeneric   = "call failed, degraded to continue"
)

// ClientProvider resolves the model client for a model name. *llm.Factory
// implements it; tests substitute a stub.
type ClientProvider interface {
	ClientFor(model string) (llm.Client, error)
}

// Runner is the worker execution manager: it runs one worker call end to
// end, applying the worker's timeout plan, compacting the prompt between
// timeout attempts, normalizing the reply, and emitting telemetry. Terminal
// failure produces a degraded Turn instead of an error, so the debate
// always proceeds.
type Runner struct {
	sessionID string
	provider  ClientProvider
	sink      eventlog.Sink
	recorder  metrics.Recorder
	exec      config.ExecutionConfig

	degradedConfidence float64
	evidenceCap        int

	logger *logx.Logger

	mu          sync.Mutex
	llmSessions map[string]string // worker name → model session id
}

// NewRunner creates the execution manager for one debate session.
func NewRunner(sessionID string, provider ClientProvider, sink eventlog.Sink,
	recorder metrics.Recorder, cfg config.Config) *Runner {
	if sink == nil {
		sink = eventlog.Discard{}
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Runner{
		sessionID:          sessionID,
		provider:           provider,
		sink:               sink,
		recorder:           recorder,
		exec:               cfg.Execution,
		degradedConfidence: cfg.Debate.DegradedConfidence,
		evidenceCap:        cfg.Debate.EvidenceCap,
		logger:             logx.NewLogger("runner"),
		llmSessions:        make(map[string]string),
	}
}

// RunWorker executes one worker call. The returned Turn is always usable:
// on terminal failure it is a degraded Turn carrying the worker name and a
// human-readable degrade reason.
func (r *Runner) RunWorker(ctx context.Context, spec WorkerSpec, prompt string, round, loopRound int) proto.Turn {
	started := time.Now().UTC()
	plan := r.timeoutPlan(spec)
	budget := spec.MaxOutputTokens

	var lastErr error
	client, err := r.provider.ClientFor(spec.Model)
	if err != nil {
		lastErr = err
	} else {
		var llmSession string
		llmSession, lastErr = r.sessionFor(ctx, client, spec)
		for attempt := 0; lastErr == nil && attempt < len(plan); attempt++ {
			r.emit(proto.EventLLMCallStarted, spec, round, map[string]any{
				"attempt":        attempt + 1,
				"model":          spec.Model,
				"timeout":        plan[attempt].String(),
				"prompt_preview": llmerrors.SanitizePrompt(prompt, previewChars),
			})

			attemptStart := time.Now()
			callCtx, cancel := context.WithTimeout(ctx, plan[attempt])
			result, callErr := client.SendPrompt(callCtx, llm.PromptRequest{
				SessionID:  llmSession,
				Parts:      []llm.MessagePart{{Role: llm.RoleUser, Content: prompt}},
				Model:      spec.Model,
				MaxTokens:  budget,
				SchemaHint: spec.SchemaHint,
			})
			cancel()
			// Measured per attempt so a retried call does not carry the
			// first attempt's timeout into the request telemetry.
			latency := time.Since(attemptStart)

			if callErr == nil {
				turn := r.successTurn(spec, prompt, result, round, loopRound, started)
				r.observe(spec, result.Usage, true, "", latency)
				r.emit(proto.EventLLMCallCompleted, spec, round, map[string]any{
					"attempt":          attempt + 1,
					"latency_ms":       latency.Milliseconds(),
					"confidence":       turn.Confidence,
					"response_preview": llmerrors.SanitizePrompt(result.Text, previewChars),
				})
				return turn
			}

			etype := llmerrors.TypeOf(callErr)
			r.observe(spec, llm.Usage{}, false, etype.String(), latency)
			lastErr = callErr

			// Only timeouts consume further plan attempts; the prompt is
			// compacted and the output budget reduced before the retry.
			if etype == llmerrors.ErrorTypeTimeout && attempt+1 < len(plan) {
				r.emit(proto.EventLLMCallTimeout, spec, round, map[string]any{
					"attempt": attempt + 1,
					"timeout": plan[attempt].String(),
				})
				prompt = contextmgr.CompactPrompt(prompt, r.exec.CompactTargetTokens)
				budget = int(float64(budget) * r.exec.RetryOutputFraction)
				if budget < minRetryBudget {
					budget = minRetryBudget
				}
				r.emit(proto.EventLLMCallRetry, spec, round, map[string]any{
					"next_attempt":   attempt + 2,
					"output_budget":  budget,
					"prompt_preview": llmerrors.SanitizePrompt(prompt, previewChars),
				})
				lastErr = nil
				continue
			}
			break
		}
	}

	return r.degradedTurn(spec, prompt, lastErr, round, loopRound, started)
}

// timeoutPlan builds the per-role attempt timeouts: a short list of
// increasing deadlines, length one for plain workers.
func (r *Runner) timeoutPlan(spec WorkerSpec) []time.Duration {
	if spec.Attempts >= 2 {
		return []time.Duration{r.exec.CallTimeout, r.exec.RetryTimeout}
	}
	return []time.Duration{r.exec.CallTimeout}
}

// sessionFor returns the worker's model session, creating it on first use
// so each worker holds one coherent thread across rounds.
func (r *Runner) sessionFor(ctx context.Context, client llm.Client, spec WorkerSpec) (string, error) {
	r.mu.Lock()
	id, ok := r.llmSessions[spec.Name]
	r.mu.Unlock()
	if ok {
		return id, nil
	}
	id, err := client.CreateSession(ctx, fmt.Sprintf("%s/%s", r.sessionID, spec.Name))
	if err != nil {
		return "", fmt.Errorf("create model session for %s: %w", spec.Name, err)
	}
	r.mu.Lock()
	r.llmSessions[spec.Name] = id
	r.mu.Unlock()
	return id, nil
}

// successTurn normalizes the reply into the worker's record shape and
// builds the audit turn around it.
func (r *Runner) successTurn(spec WorkerSpec, prompt string, result llm.PromptResult,
	round, loopRound int, started time.Time) proto.Turn {
	var op opinion.Opinion
	switch spec.Role {
	case proto.RoleJudge:
		op = opinion.NormalizeJudge(result.Text).Opinion
	case proto.RoleCommander:
		op = opinion.NormalizeCommander(result.Text).Opinion
	default:
		op = opinion.Normalize(result.Text)
	}

	evidence := op.Evidence
	if len(evidence) > r.evidenceCap {
		evidence = evidence[:r.evidenceCap]
	}

	return proto.Turn{
		EvidenceCard: proto.EvidenceCard{
			Worker:     spec.Name,
			Role:       spec.Role,
			Phase:      spec.Phase,
			Summary:    op.Summary,
			Conclusion: op.Conclusion,
			Evidence:   evidence,
			Confidence: op.Confidence,
			Raw:        op.Raw,
		},
		Round:       round,
		LoopRound:   loopRound,
		Prompt:      prompt,
		Model:       spec.Model,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
}

// degradedTurn synthesizes the turn recorded when every attempt failed.
func (r *Runner) degradedTurn(spec WorkerSpec, prompt string, cause error,
	round, loopRound int, started time.Time) proto.Turn {
	reason := DegradeGeneric
	etype := llmerrors.TypeOf(cause)
	switch etype {
	case llmerrors.ErrorTypeTimeout:
		reason = DegradeTimeout
	case llmerrors.ErrorTypeRateLimit:
		reason = DegradeRateLimit
	}

	r.logger.Warn("worker %s degraded (%s): %v", spec.Name, etype, cause)
	r.recorder.IncDegradedTurn(spec.Name, etype.String())
	r.emit(proto.EventLLMCallFailed, spec, round, map[string]any{
		"error_type": etype.String(),
		"reason":     reason,
	})

	return proto.Turn{
		EvidenceCard: proto.EvidenceCard{
			Worker:     spec.Name,
			Role:       spec.Role,
			Phase:      spec.Phase,
			Summary:    reason,
			Conclusion: spec.Name + ": " + reason,
			Confidence: r.degradedConfidence,
			Degraded:   true,
		},
		Round:         round,
		LoopRound:     loopRound,
		Prompt:        prompt,
		Model:         spec.Model,
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
		DegradeReason: reason,
	}
}

func (r *Runner) observe(spec WorkerSpec, usage llm.Usage, success bool, errorType string, latency time.Duration) {
	info, _ := config.GetModelInfo(spec.Model)
	cost := float64(usage.InputTokens)*info.InputCPM/1e6 +
		float64(usage.OutputTokens)*info.OutputCPM/1e6
	r.recorder.ObserveRequest(spec.Model, r.sessionID, spec.Name, string(spec.Phase),
		usage.InputTokens, usage.OutputTokens, cost, success, errorType, latency)
}

func (r *Runner) emit(t proto.EventType, spec WorkerSpec, round int, fields map[string]any) {
	evt := proto.NewEvent(t, r.sessionID)
	evt.Phase = spec.Phase
	evt.Worker = spec.Name
	evt.Round = round
	for k, v := range fields {
		evt.Fields[k] = v
	}
	r.sink.Emit(evt)
}
