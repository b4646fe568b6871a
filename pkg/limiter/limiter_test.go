package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inquest/pkg/config"
)

func testRateLimits() config.RateLimitConfig {
	return config.RateLimitConfig{
		MaxConcurrentCalls: 2,
		Anthropic:          config.ProviderLimits{TokensPerMinute: 10000, MaxConcurrency: 2},
		OpenAI:             config.ProviderLimits{TokensPerMinute: 10000, MaxConcurrency: 2},
		Google:             config.ProviderLimits{},
		Ollama:             config.ProviderLimits{},
	}
}

func TestAcquireConsumesTokens(t *testing.T) {
	g := New(testRateLimits())

	release, err := g.Acquire(context.Background(), config.ProviderAnthropic, 3000)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	var found bool
	for _, s := range g.Stats() {
		if s.Provider == config.ProviderAnthropic {
			found = true
			// Capacity starts at 90% of 10000 = 9000; 3000 consumed.
			if s.AvailableTokens != 6000 {
				t.Errorf("AvailableTokens = %d, want 6000", s.AvailableTokens)
			}
			if s.ActiveRequests != 1 {
				t.Errorf("ActiveRequests = %d, want 1", s.ActiveRequests)
			}
		}
	}
	if !found {
		t.Fatal("no stats for anthropic bucket")
	}
}

func TestReleaseReturnsSlotNotTokens(t *testing.T) {
	g := New(testRateLimits())

	release, err := g.Acquire(context.Background(), config.ProviderAnthropic, 1000)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	release() // second call must be a no-op

	for _, s := range g.Stats() {
		if s.Provider != config.ProviderAnthropic {
			continue
		}
		if s.ActiveRequests != 0 {
			t.Errorf("ActiveRequests after release = %d, want 0", s.ActiveRequests)
		}
		if s.AvailableTokens != 8000 {
			t.Errorf("AvailableTokens = %d, want 8000 (tokens are spent, not refunded)", s.AvailableTokens)
		}
	}
}

func TestGlobalBoundBlocksThirdCall(t *testing.T) {
	g := New(testRateLimits()) // global bound 2

	r1, err := g.Acquire(context.Background(), config.ProviderAnthropic, 10)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	r2, err := g.Acquire(context.Background(), config.ProviderOpenAI, 10)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx, config.ProviderGoogle, 10); err == nil {
		t.Fatal("third Acquire() should block until a slot frees, then fail on ctx timeout")
	}

	r1()
	r2()

	release, err := g.Acquire(context.Background(), config.ProviderGoogle, 10)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release()
}

func TestProviderConcurrencyBound(t *testing.T) {
	cfg := testRateLimits()
	cfg.MaxConcurrentCalls = 10
	cfg.Anthropic.MaxConcurrency = 1
	g := New(cfg)

	r1, err := g.Acquire(context.Background(), config.ProviderAnthropic, 10)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan struct{})
	var second atomic.Bool
	go func() {
		defer close(done)
		r2, err := g.Acquire(context.Background(), config.ProviderAnthropic, 10)
		if err != nil {
			t.Errorf("blocked Acquire() error = %v", err)
			return
		}
		second.Store(true)
		r2()
	}()

	time.Sleep(30 * time.Millisecond)
	if second.Load() {
		t.Fatal("second acquire completed while the only provider slot was held")
	}

	r1()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed after slot release")
	}
}

func TestTokenBudgetBlocksUntilRefill(t *testing.T) {
	cfg := testRateLimits()
	cfg.MaxConcurrentCalls = 10
	g := New(cfg)

	// Drain the bucket: capacity is 9000.
	release, err := g.Acquire(context.Background(), config.ProviderOpenAI, 9000)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx, config.ProviderOpenAI, 500); err == nil {
		t.Fatal("Acquire() should block when the token budget is drained")
	}

	// Manual refill stands in for the ticker.
	g.bucketFor(config.ProviderOpenAI).refill()

	release, err = g.Acquire(context.Background(), config.ProviderOpenAI, 500)
	if err != nil {
		t.Fatalf("Acquire() after refill error = %v", err)
	}
	release()
}

func TestUnlimitedBucketNeverBlocksOnTokens(t *testing.T) {
	cfg := testRateLimits()
	cfg.MaxConcurrentCalls = 64
	g := New(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), config.ProviderOllama, 1_000_000)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			release()
		}()
	}
	wg.Wait()
}

func TestLazyBucketForUnknownProvider(t *testing.T) {
	g := New(testRateLimits())

	release, err := g.Acquire(context.Background(), "someday-provider", 100)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	var found bool
	for _, s := range g.Stats() {
		if s.Provider == "someday-provider" {
			found = true
		}
	}
	if !found {
		t.Error("lazily created bucket missing from stats")
	}
}
