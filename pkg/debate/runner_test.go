package debate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/config"
	"inquest/pkg/eventlog"
	"inquest/pkg/llm"
	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/proto"
)

// durationRecorder captures per-request durations for assertions.
type durationRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *durationRecorder) ObserveRequest(_, _, _, _ string, _, _ int, _ float64, _ bool, _ string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations = append(r.durations, d)
}

func (r *durationRecorder) IncThrottle(_, _ string) {}

func (r *durationRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

func (r *durationRecorder) IncDegradedTurn(_, _ string) {}

func (r *durationRecorder) ObserveSession(_ string, _ int, _ time.Duration) {}

// stubProvider hands every worker the same client.
type stubProvider struct {
	client llm.Client
	err    error
}

func (p stubProvider) ClientFor(string) (llm.Client, error) { return p.client, p.err }

func newTestRunner(client llm.Client) (*Runner, Roster) {
	cfg := config.DefaultConfig()
	return NewRunner("sess-1", stubProvider{client: client}, nil, nil, cfg), NewRoster(cfg.Debate)
}

func TestRunWorkerSuccess(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Result: llm.PromptResult{
		Text:  `{"summary": "error burst at 14:02", "conclusion": "connection pool exhausted", "evidence": ["pool wait spikes"], "confidence": 0.72}`,
		Usage: llm.Usage{InputTokens: 100, OutputTokens: 50},
	}})
	runner, roster := newTestRunner(mock)
	spec, err := roster.Get("log_analyst")
	require.NoError(t, err)

	turn := runner.RunWorker(context.Background(), spec, "analyze this", 1, 0)

	assert.False(t, turn.Degraded)
	assert.Equal(t, "log_analyst", turn.Worker)
	assert.Equal(t, proto.PhaseParallelAnalysis, turn.Phase)
	assert.Equal(t, "connection pool exhausted", turn.Conclusion)
	assert.InDelta(t, 0.72, turn.Confidence, 1e-9)
	assert.Equal(t, []string{"pool wait spikes"}, turn.Evidence)
	assert.Equal(t, 1, turn.Round)
}

func TestRunWorkerCapsEvidence(t *testing.T) {
	evidence := ""
	for i := 0; i < 12; i++ {
		if i > 0 {
			evidence += ", "
		}
		evidence += fmt.Sprintf("%q", fmt.Sprintf("item %d", i))
	}
	mock := llm.NewMockClient(llm.MockReply{Result: llm.PromptResult{
		Text: fmt.Sprintf(`{"conclusion": "c", "evidence": [%s], "confidence": 0.5}`, evidence),
	}})
	runner, roster := newTestRunner(mock)
	spec, _ := roster.Get("domain_mapper")

	turn := runner.RunWorker(context.Background(), spec, "p", 1, 0)
	assert.Len(t, turn.Evidence, config.DefaultConfig().Debate.EvidenceCap)
}

func TestRunWorkerRetriesTimeoutWithReducedBudget(t *testing.T) {
	mock := llm.NewMockClient()
	calls := 0
	mock.ReplyFn = func(_ context.Context, req llm.PromptRequest) (llm.PromptResult, error) {
		calls++
		if calls == 1 {
			return llm.PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeTimeout, "deadline exceeded")
		}
		return llm.PromptResult{Text: `{"conclusion": "verdict stands", "confidence": 0.8}`}, nil
	}
	runner, roster := newTestRunner(mock)
	judge := roster.Judge()

	turn := runner.RunWorker(context.Background(), judge, "long judge prompt", 2, 3)

	require.Equal(t, 2, calls)
	assert.False(t, turn.Degraded)
	assert.Equal(t, "verdict stands", turn.Conclusion)

	// The retry runs with half the output budget.
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, judge.MaxOutputTokens, reqs[0].MaxTokens)
	assert.Equal(t, judge.MaxOutputTokens/2, reqs[1].MaxTokens)
}

func TestRunWorkerObservesLatencyPerAttempt(t *testing.T) {
	const firstAttemptDelay = 50 * time.Millisecond
	mock := llm.NewMockClient()
	calls := 0
	mock.ReplyFn = func(_ context.Context, _ llm.PromptRequest) (llm.PromptResult, error) {
		calls++
		if calls == 1 {
			time.Sleep(firstAttemptDelay)
			return llm.PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeTimeout, "deadline exceeded")
		}
		return llm.PromptResult{Text: `{"conclusion": "verdict stands", "confidence": 0.8}`}, nil
	}
	rec := &durationRecorder{}
	cfg := config.DefaultConfig()
	runner := NewRunner("sess-1", stubProvider{client: mock}, nil, rec, cfg)
	judge := NewRoster(cfg.Debate).Judge()

	turn := runner.RunWorker(context.Background(), judge, "long judge prompt", 1, 0)

	require.False(t, turn.Degraded)
	require.Len(t, rec.durations, 2)
	assert.GreaterOrEqual(t, rec.durations[0], firstAttemptDelay)
	// The retry's duration covers only its own attempt, not the first
	// attempt's time.
	assert.Less(t, rec.durations[1], firstAttemptDelay)
}

func TestRunWorkerDoesNotRetryRateLimit(t *testing.T) {
	mock := llm.NewMockClient()
	mock.ReplyFn = func(context.Context, llm.PromptRequest) (llm.PromptResult, error) {
		return llm.PromptResult{}, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "too many requests")
	}
	runner, roster := newTestRunner(mock)
	judge := roster.Judge()

	turn := runner.RunWorker(context.Background(), judge, "p", 1, 0)

	assert.Equal(t, 1, mock.CallCount())
	assert.True(t, turn.Degraded)
	assert.Equal(t, DegradeRateLimit, turn.DegradeReason)
}

func TestRunWorkerSingleAttemptTimeoutDegrades(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{
		Err: llmerrors.NewError(llmerrors.ErrorTypeTimeout, "deadline exceeded"),
	})
	runner, roster := newTestRunner(mock)
	spec, _ := roster.Get("critic")

	turn := runner.RunWorker(context.Background(), spec, "p", 1, 0)

	assert.Equal(t, 1, mock.CallCount())
	assert.True(t, turn.Degraded)
	assert.Equal(t, DegradeTimeout, turn.DegradeReason)
}

func TestRunWorkerDegradedTurnShape(t *testing.T) {
	runner, roster := newTestRunner(nil)
	runner.provider = stubProvider{err: fmt.Errorf("no client for model")}
	spec, _ := roster.Get("code_analyst")

	turn := runner.RunWorker(context.Background(), spec, "p", 2, 1)

	assert.True(t, turn.Degraded)
	assert.Equal(t, DegradeGeneric, turn.DegradeReason)
	assert.Equal(t, "code_analyst: "+DegradeGeneric, turn.Conclusion)
	assert.InDelta(t, config.DefaultConfig().Debate.DegradedConfidence, turn.Confidence, 1e-9)
	assert.Equal(t, 2, turn.Round)
	assert.Equal(t, 1, turn.LoopRound)
}

func TestRunWorkerReusesModelSession(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockReply{Result: llm.PromptResult{Text: `{"conclusion": "a", "confidence": 0.5}`}},
		llm.MockReply{Result: llm.PromptResult{Text: `{"conclusion": "b", "confidence": 0.6}`}},
	)
	runner, roster := newTestRunner(mock)
	spec, _ := roster.Get("log_analyst")

	runner.RunWorker(context.Background(), spec, "round 1", 1, 0)
	runner.RunWorker(context.Background(), spec, "round 2", 2, 0)

	titles := mock.SessionTitles()
	require.Len(t, titles, 1)
	assert.Equal(t, "sess-1/log_analyst", titles[0])

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].SessionID, reqs[1].SessionID)
}

func TestRunWorkerEmitsTelemetry(t *testing.T) {
	mem := eventlog.NewMemory(64)
	cfg := config.DefaultConfig()
	mock := llm.NewMockClient(llm.MockReply{Result: llm.PromptResult{
		Text: `{"conclusion": "c", "confidence": 0.7}`,
	}})
	runner := NewRunner("sess-1", stubProvider{client: mock}, mem, nil, cfg)
	spec, _ := NewRoster(cfg.Debate).Get("log_analyst")

	runner.RunWorker(context.Background(), spec, "prompt text", 1, 0)

	require.Len(t, mem.ByType(proto.EventLLMCallStarted), 1)
	completed := mem.ByType(proto.EventLLMCallCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "log_analyst", completed[0].Worker)
	assert.Equal(t, 1, completed[0].Round)
}
