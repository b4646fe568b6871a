// Package metrics provides metrics recording for debate LLM operations and
// a query service for reading session aggregates back from Prometheus.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording debate operation metrics.
// Recording never affects control flow.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, sessionID, worker, phase string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(provider, reason string)

	// ObserveQueueWait records time spent waiting for rate limit availability.
	ObserveQueueWait(provider string, duration time.Duration)

	// IncDegradedTurn counts a turn synthesized after terminal worker failure.
	IncDegradedTurn(worker, reason string)

	// ObserveSession records a finished debate session.
	ObserveSession(status string, rounds int, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {
	// No-op
}

// ObserveQueueWait does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {
	// No-op
}

// IncDegradedTurn does nothing in the no-op recorder.
func (n *NoopRecorder) IncDegradedTurn(_, _ string) {
	// No-op
}

// ObserveSession does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveSession(_ string, _ int, _ time.Duration) {
	// No-op
}
