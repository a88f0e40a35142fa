package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vigil-labs/vigil/backend/internal/logger"
	"github.com/vigil-labs/vigil/backend/internal/metrics"
	"github.com/vigil-labs/vigil/backend/internal/models"
)

// Result is the uniform outcome of a rate-limit check, independent of which
// backend served it.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	Limit      int           `json:"limit"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Limiter enforces per-(endpoint class, identifier) token buckets. The
// preferred path uses the shared CounterStore with fixed-window semantics;
// when the store is unreachable it degrades to an in-process token bucket
// refilled by wall-clock time. That trade favors availability over strict
// accuracy and is scoped to a single process.
type Limiter struct {
	store CounterStore

	mu       sync.Mutex
	policies map[string]models.RateLimitPolicy
	buckets  map[string]*bucket
	degraded bool // store outage already reported

	now func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	policy     models.RateLimitPolicy
}

// New builds a limiter over the given store and per-class policies. Classes
// without a policy fall back to the "read" policy.
func New(store CounterStore, policies []models.RateLimitPolicy) *Limiter {
	l := &Limiter{
		store:    store,
		policies: make(map[string]models.RateLimitPolicy),
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
	for _, p := range policies {
		l.policies[p.Class] = p
	}
	return l
}

// SetPolicy installs or replaces the policy for one endpoint class.
func (l *Limiter) SetPolicy(p models.RateLimitPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[p.Class] = p
	// Existing fallback buckets for the class pick the new policy up on
	// their next refill.
	for key, b := range l.buckets {
		if b.policy.Class == p.Class {
			delete(l.buckets, key)
		}
	}
}

// Policies returns a snapshot of the installed policies.
func (l *Limiter) Policies() []models.RateLimitPolicy {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.RateLimitPolicy, 0, len(l.policies))
	for _, p := range l.policies {
		out = append(out, p)
	}
	return out
}

func (l *Limiter) policyFor(class string) models.RateLimitPolicy {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.policies[class]; ok {
		return p
	}
	if p, ok := l.policies["read"]; ok {
		return p
	}
	return models.RateLimitPolicy{Class: class, MaxTokens: 100, RefillRate: 100, WindowMs: time.Hour.Milliseconds()}
}

// Check consumes one token for (identifier, class) and reports the outcome.
// It never returns an error: store failures degrade to the fallback path,
// except for fail-closed classes which deny while the store is down.
func (l *Limiter) Check(ctx context.Context, identifier, class string) Result {
	policy := l.policyFor(class)
	now := l.now()
	window := policy.Window()

	if l.store != nil {
		windowStart := now.Truncate(window)
		key := fmt.Sprintf("rl:%s:%s:%d", class, identifier, windowStart.Unix())

		count, err := l.store.Incr(ctx, key, window+window/4)
		if err == nil {
			l.markHealthy()
			return windowResult(policy, windowStart, now, count)
		}

		l.reportOutage(err)
		metrics.IncStoreFallback()

		if policy.FailClosed {
			// High-risk classes prefer denial over the imprecise
			// process-local fallback.
			resetAt := windowStart.Add(window)
			return Result{
				Allowed:    false,
				Remaining:  0,
				Limit:      policy.MaxTokens,
				ResetAt:    resetAt,
				RetryAfter: resetAt.Sub(now),
			}
		}
	}

	return l.checkFallback(identifier, class, policy, now)
}

// windowResult maps a fixed-window counter value onto the uniform Result.
func windowResult(policy models.RateLimitPolicy, windowStart, now time.Time, count int64) Result {
	resetAt := windowStart.Add(policy.Window())
	remaining := policy.MaxTokens - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   count <= int64(policy.MaxTokens),
		Remaining: remaining,
		Limit:     policy.MaxTokens,
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res
}

// checkFallback runs the in-process token bucket. Refill is proportional to
// elapsed wall-clock time, floored to whole tokens and capped at MaxTokens.
func (l *Limiter) checkFallback(identifier, class string, policy models.RateLimitPolicy, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := class + ":" + identifier
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: policy.MaxTokens, lastRefill: now, policy: policy}
		l.buckets[key] = b
	}

	b.refill(now)

	perToken := policy.Window() / time.Duration(policy.RefillRate)
	resetAt := now.Add(perToken * time.Duration(policy.MaxTokens-b.tokens))

	if b.tokens >= 1 {
		b.tokens--
		return Result{
			Allowed:   true,
			Remaining: b.tokens,
			Limit:     policy.MaxTokens,
			ResetAt:   resetAt,
		}
	}

	retryAfter := perToken - now.Sub(b.lastRefill)
	if retryAfter <= 0 {
		retryAfter = perToken
	}

	return Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      policy.MaxTokens,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

// refill adds floor(elapsed/window*rate) tokens, capped at MaxTokens. The
// refill clock only advances by the whole tokens granted so fractional
// progress is never lost.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}

	window := b.policy.Window()
	granted := int(int64(elapsed) * int64(b.policy.RefillRate) / int64(window))
	if granted <= 0 {
		return
	}

	b.tokens += granted
	if b.tokens >= b.policy.MaxTokens {
		b.tokens = b.policy.MaxTokens
		b.lastRefill = now
		return
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(int64(granted) * int64(window) / int64(b.policy.RefillRate)))
}

func (l *Limiter) reportOutage(err error) {
	l.mu.Lock()
	already := l.degraded
	l.degraded = true
	l.mu.Unlock()

	if !already {
		logger.Log().WithError(err).Warn("counter store unreachable, rate limiter degraded to in-memory fallback")
	}
}

func (l *Limiter) markHealthy() {
	l.mu.Lock()
	recovered := l.degraded
	l.degraded = false
	l.mu.Unlock()

	if recovered {
		logger.Log().Info("counter store recovered, rate limiter back on distributed path")
	}
}
