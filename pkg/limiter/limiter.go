// Package limiter provides admission control for outbound model calls with
// token bucket algorithms. A Gate combines one global concurrency bound
// shared by every debate session in the process with per-provider
// token-per-minute budgets and concurrency slots, so a burst of parallel
// analysis fan-outs cannot trip provider rate limits.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"inquest/pkg/config"
	"inquest/pkg/logx"
)

// bufferFactor discounts bucket capacity to absorb token estimation error.
const bufferFactor = 0.9

// refillInterval splits the per-minute budget into ten refill ticks.
const refillInterval = 6 * time.Second

// pollInterval is how often a blocked Acquire rechecks the bucket.
const pollInterval = 100 * time.Millisecond

// maxAcquireWait caps how long one Acquire may block before giving up.
const maxAcquireWait = 2 * time.Minute

// ErrAcquireTimeout is returned when an Acquire waits longer than
// maxAcquireWait, which indicates a configuration error or an impossible
// request rather than ordinary contention.
var ErrAcquireTimeout = fmt.Errorf("rate limit acquisition timed out")

// Gate is the shared admission control for model calls.
type Gate struct {
	global *semaphore.Weighted

	mu      sync.Mutex
	buckets map[string]*bucket
}

// BucketStats is a point-in-time snapshot of one provider bucket.
type BucketStats struct {
	Provider        string `json:"provider"`
	AvailableTokens int    `json:"available_tokens"`
	MaxCapacity     int    `json:"max_capacity"`
	ActiveRequests  int    `json:"active_requests"`
	MaxConcurrency  int    `json:"max_concurrency"`
	TokenWaits      int64  `json:"token_waits"`
	SlotWaits       int64  `json:"slot_waits"`
}

// bucket is the per-provider token budget plus concurrency slots. A zero
// TokensPerMinute or MaxConcurrency leaves that dimension unlimited.
type bucket struct {
	mu        sync.Mutex
	provider  string
	available int
	perRefill int
	capacity  int
	active    int
	maxActive int

	tokenWaits int64
	slotWaits  int64
}

// New builds a Gate from the rate limit configuration. Buckets exist for
// the configured providers up front and are created lazily for any other.
func New(cfg config.RateLimitConfig) *Gate {
	globalBound := cfg.MaxConcurrentCalls
	if globalBound <= 0 {
		globalBound = 1
	}
	g := &Gate{
		global:  semaphore.NewWeighted(globalBound),
		buckets: make(map[string]*bucket),
	}
	g.buckets[config.ProviderAnthropic] = newBucket(config.ProviderAnthropic, cfg.Anthropic)
	g.buckets[config.ProviderOpenAI] = newBucket(config.ProviderOpenAI, cfg.OpenAI)
	g.buckets[config.ProviderGoogle] = newBucket(config.ProviderGoogle, cfg.Google)
	g.buckets[config.ProviderOllama] = newBucket(config.ProviderOllama, cfg.Ollama)
	return g
}

func newBucket(provider string, limits config.ProviderLimits) *bucket {
	capacity := int(float64(limits.TokensPerMinute) * bufferFactor)
	return &bucket{
		provider:  provider,
		available: capacity, // start with a full bucket
		perRefill: limits.TokensPerMinute / 10,
		capacity:  capacity,
		maxActive: limits.MaxConcurrency,
	}
}

// StartRefill launches the background refill loop. It stops when ctx is
// cancelled.
func (g *Gate) StartRefill(ctx context.Context) {
	ticker := time.NewTicker(refillInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, b := range g.snapshotBuckets() {
					b.refill()
				}
			}
		}
	}()
}

// Acquire blocks until the global slot, the provider slot, and the token
// budget are all available, then returns a release function that must be
// called exactly once. Spent tokens are not refunded on release; only the
// concurrency slots are returned.
func (g *Gate) Acquire(ctx context.Context, provider string, tokens int) (func(), error) {
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("global call slot: %w", err)
	}

	release, err := g.bucketFor(provider).acquire(ctx, tokens)
	if err != nil {
		g.global.Release(1)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			g.global.Release(1)
		})
	}, nil
}

// Stats returns a snapshot of every provider bucket.
func (g *Gate) Stats() []BucketStats {
	buckets := g.snapshotBuckets()
	stats := make([]BucketStats, 0, len(buckets))
	for _, b := range buckets {
		stats = append(stats, b.stats())
	}
	return stats
}

func (g *Gate) snapshotBuckets() []*bucket {
	g.mu.Lock()
	defer g.mu.Unlock()
	buckets := make([]*bucket, 0, len(g.buckets))
	for _, b := range g.buckets {
		buckets = append(buckets, b)
	}
	return buckets
}

func (g *Gate) bucketFor(provider string) *bucket {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buckets[provider]
	if !ok {
		b = newBucket(provider, config.ProviderLimits{})
		g.buckets[provider] = b
	}
	return b
}

func (b *bucket) acquire(ctx context.Context, tokens int) (func(), error) {
	if tokens < 0 {
		tokens = 0
	}
	start := time.Now()
	logged := false

	for {
		b.mu.Lock()
		hasTokens := b.capacity == 0 || b.available >= tokens
		hasSlot := b.maxActive == 0 || b.active < b.maxActive

		if hasTokens && hasSlot {
			if b.capacity > 0 {
				b.available -= tokens
			}
			b.active++
			b.mu.Unlock()
			return b.release, nil
		}

		if time.Since(start) > maxAcquireWait {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: %s after %v (requested %d tokens, capacity %d)",
				ErrAcquireTimeout, b.provider, maxAcquireWait, tokens, b.capacity)
		}

		// Record what blocked us, once, to keep the log readable.
		if !logged {
			if !hasTokens {
				b.tokenWaits++
				logx.Infof("rate limit: %s token budget exhausted, waiting for refill (need %d, have %d)",
					b.provider, tokens, b.available)
			}
			if !hasSlot {
				b.slotWaits++
				logx.Infof("rate limit: %s concurrency full, waiting for a slot (%d/%d active)",
					b.provider, b.active, b.maxActive)
			}
			logged = true
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(pollInterval):
		}
	}
}

func (b *bucket) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active > 0 {
		b.active--
	}
}

func (b *bucket) refill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity == 0 {
		return
	}
	b.available += b.perRefill
	if b.available > b.capacity {
		b.available = b.capacity
	}
}

func (b *bucket) stats() BucketStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketStats{
		Provider:        b.provider,
		AvailableTokens: b.available,
		MaxCapacity:     b.capacity,
		ActiveRequests:  b.active,
		MaxConcurrency:  b.maxActive,
		TokenWaits:      b.tokenWaits,
		SlotWaits:       b.slotWaits,
	}
}
