// Package ratelimit gates outbound provider calls to their quoted
// request rates. Excess demand queues briefly, then fails fast as
// Throttled rather than piling onto an already saturated provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// Scope identifies a limited provider.
type Scope string

const (
	ScopeLLM       Scope = "llm"
	ScopeEmbedding Scope = "embedding"
)

// Limiter is a token-bucket limiter with one bucket per scope.
type Limiter struct {
	mu      sync.Mutex
	buckets map[Scope]*bucket
	maxWait time.Duration
	enabled bool

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type bucket struct {
	rps    float64
	tokens float64
	burst  float64
	last   time.Time
}

// New builds a limiter from the configured per-provider rates. A zero
// or negative RPS disables limiting for that scope.
func New(cfg *config.RateLimitConfig) *Limiter {
	l := &Limiter{
		buckets: make(map[Scope]*bucket),
		maxWait: time.Duration(cfg.MaxWaitMS) * time.Millisecond,
		enabled: cfg.Enabled == nil || *cfg.Enabled,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	l.addBucket(ScopeLLM, float64(cfg.LLMRPS))
	l.addBucket(ScopeEmbedding, float64(cfg.EmbeddingRPS))
	return l
}

func (l *Limiter) addBucket(scope Scope, rps float64) {
	if rps <= 0 {
		return
	}
	burst := rps
	if burst < 1 {
		burst = 1
	}
	l.buckets[scope] = &bucket{rps: rps, tokens: burst, burst: burst}
}

// Acquire takes one token for the scope, waiting up to the configured
// maximum. When the wait would exceed it, Acquire fails with Throttled.
func (l *Limiter) Acquire(ctx context.Context, scope Scope) error {
	if !l.enabled {
		return nil
	}
	l.mu.Lock()
	b, ok := l.buckets[scope]
	if !ok {
		l.mu.Unlock()
		return nil
	}

	now := l.now()
	if !b.last.IsZero() {
		b.tokens += now.Sub(b.last).Seconds() * b.rps
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		l.mu.Unlock()
		return nil
	}

	wait := time.Duration((1 - b.tokens) / b.rps * float64(time.Second))
	if wait > l.maxWait {
		l.mu.Unlock()
		return rxerr.Newf(rxerr.KindThrottled, "%s rate limit exceeded", scope)
	}
	// Spend the token before sleeping so concurrent waiters queue
	// behind this one instead of all waking at once.
	b.tokens--
	l.mu.Unlock()

	if err := l.sleep(ctx, wait); err != nil {
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
