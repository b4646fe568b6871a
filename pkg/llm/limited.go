package llm

import (
	"context"
	"time"

	"inquest/pkg/contextmgr"
	"inquest/pkg/limiter"
	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/metrics"
)

// LimitedClient gates SendPrompt calls through the shared limiter so the
// global and per-provider bounds hold across every concurrent session.
type LimitedClient struct {
	client   Client
	provider string
	gate     *limiter.Gate
	recorder metrics.Recorder
}

// NewLimitedClient wraps client with admission control for one provider.
// A nil recorder disables throttle/queue-wait instrumentation.
func NewLimitedClient(client Client, provider string, gate *limiter.Gate, recorder metrics.Recorder) *LimitedClient {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LimitedClient{client: client, provider: provider, gate: gate, recorder: recorder}
}

// CreateSession is local bookkeeping, so it bypasses the limiter.
func (c *LimitedClient) CreateSession(ctx context.Context, title string) (string, error) {
	return c.client.CreateSession(ctx, title)
}

// SendPrompt acquires a call slot and the estimated token budget before
// forwarding. Time spent queued at the gate is reported as queue wait;
// failed acquisitions count as throttle events.
func (c *LimitedClient) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	queued := time.Now()
	release, err := c.gate.Acquire(ctx, c.provider, estimatePromptTokens(req))
	if err != nil {
		reason := "rate_limit"
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		c.recorder.IncThrottle(c.provider, reason)
		return PromptResult{}, llmerrors.Wrap(err, "rate limit acquisition failed")
	}
	c.recorder.ObserveQueueWait(c.provider, time.Since(queued))
	defer release()
	return c.client.SendPrompt(ctx, req)
}

// estimatePromptTokens counts the new parts only. Session history replayed
// by the provider is already paid for in earlier acquisitions, and counting
// it again would starve long debates.
func estimatePromptTokens(req PromptRequest) int {
	total := 0
	for i := range req.Parts {
		total += contextmgr.CountTokens(req.Parts[i].Content)
	}
	return total
}
