package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inquest/pkg/config"
	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/logx"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows all requests through (normal operation).
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks all requests (failing fast).
	CircuitOpen
	// CircuitHalfOpen allows limited probe requests to test recovery.
	CircuitHalfOpen
)

// String returns a human-readable representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerError is the cause chained into the classified error when the
// breaker rejects a call.
type BreakerError struct {
	State CircuitState
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker wraps a Client with a circuit breaker so a failing provider gets
// time to recover instead of being hammered. Rejected calls carry
// llmerrors.ErrorTypeCircuitOpen, which the worker execution manager treats
// as terminal for the attempt.
type Breaker struct {
	client   Client
	provider string
	cfg      config.CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	successCount  int
	halfOpenCalls int
	lastFailure   time.Time
}

// BreakerStats is a point-in-time snapshot for observability.
type BreakerStats struct {
	Provider  string       `json:"provider"`
	State     CircuitState `json:"state"`
	Failures  int          `json:"failures"`
	Successes int          `json:"successes"`
}

// NewBreaker wraps client with a circuit breaker for one provider.
func NewBreaker(client Client, provider string, cfg config.CircuitBreakerConfig) *Breaker {
	return &Breaker{
		client:   client,
		provider: provider,
		cfg:      cfg,
		state:    CircuitClosed,
	}
}

// CreateSession is local bookkeeping on every provider, so it bypasses the
// breaker.
func (b *Breaker) CreateSession(ctx context.Context, title string) (string, error) {
	return b.client.CreateSession(ctx, title)
}

// SendPrompt forwards the call when the circuit allows it and records the
// outcome.
func (b *Breaker) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	if err := b.allow(); err != nil {
		return PromptResult{}, err
	}
	res, err := b.client.SendPrompt(ctx, req)
	b.record(err)
	return res, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(b.lastFailure) >= b.cfg.Timeout {
			b.state = CircuitHalfOpen
			b.successCount = 0
			b.halfOpenCalls = 1
			logx.Infof("circuit breaker for %s half-open, probing recovery", b.provider)
			return nil
		}
		return b.rejection()
	case CircuitHalfOpen:
		// Probe budget: exactly the successes needed to close again.
		if b.halfOpenCalls >= b.cfg.SuccessThreshold {
			return b.rejection()
		}
		b.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) rejection() error {
	return llmerrors.NewErrorWithCause(
		llmerrors.ErrorTypeCircuitOpen,
		&BreakerError{State: b.state},
		fmt.Sprintf("%s calls suspended", b.provider),
	)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case CircuitClosed:
		b.failureCount = 0
	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = CircuitClosed
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenCalls = 0
			logx.Infof("circuit breaker for %s closed, provider recovered", b.provider)
		}
	case CircuitOpen:
		// Success cannot be recorded while open; allow() blocks the call.
	}
}

func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailure = time.Now()

	switch b.state {
	case CircuitClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = CircuitOpen
			logx.Warnf("circuit breaker for %s opened after %d consecutive failures", b.provider, b.failureCount)
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.successCount = 0
		b.halfOpenCalls = 0
		logx.Warnf("circuit breaker for %s reopened, probe failed", b.provider)
	case CircuitOpen:
	}
}

// GetState returns the current circuit state.
func (b *Breaker) GetState() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetStats returns a snapshot of breaker counters.
func (b *Breaker) GetStats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Provider:  b.provider,
		State:     b.state,
		Failures:  b.failureCount,
		Successes: b.successCount,
	}
}

// Reset forces the breaker back to closed. Intended for tests and operator
// intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCalls = 0
}
