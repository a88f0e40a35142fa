package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-labs/vigil/backend/internal/models"
)

func hourPolicy(class string, maxTokens int) models.RateLimitPolicy {
	return models.RateLimitPolicy{
		Class:      class,
		MaxTokens:  maxTokens,
		RefillRate: maxTokens,
		WindowMs:   time.Hour.Milliseconds(),
	}
}

// failingStore simulates an unreachable distributed store.
type failingStore struct{ calls int }

func (f *failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	f.calls++
	return 0, errors.New("connection refused")
}

func newTestLimiter(store CounterStore, policies ...models.RateLimitPolicy) (*Limiter, *time.Time) {
	l := New(store, policies)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_TokenBucketBudget(t *testing.T) {
	// Fallback path: 10 instantaneous requests all pass, the 11th is
	// rejected with remaining=0 and a positive retryAfter.
	l, _ := newTestLimiter(nil, hourPolicy("expensive", 10))

	for i := 0; i < 10; i++ {
		res := l.Check(context.Background(), "visitor-1", "expensive")
		require.True(t, res.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 10, res.Limit)
		assert.Equal(t, 9-i, res.Remaining)
	}

	res := l.Check(context.Background(), "visitor-1", "expensive")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLimiter_FallbackRefill(t *testing.T) {
	l, now := newTestLimiter(nil, hourPolicy("expensive", 10))

	for i := 0; i < 10; i++ {
		l.Check(context.Background(), "v", "expensive")
	}
	assert.False(t, l.Check(context.Background(), "v", "expensive").Allowed)

	// One token refills every 6 minutes at 10 tokens/hour.
	*now = now.Add(6 * time.Minute)
	res := l.Check(context.Background(), "v", "expensive")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// Not a full token yet.
	*now = now.Add(3 * time.Minute)
	assert.False(t, l.Check(context.Background(), "v", "expensive").Allowed)

	// Long idle: refill caps at MaxTokens, never beyond.
	*now = now.Add(48 * time.Hour)
	res = l.Check(context.Background(), "v", "expensive")
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestBucket_RefillMonotonicity(t *testing.T) {
	policy := hourPolicy("read", 100)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	window := policy.Window()

	for _, elapsed := range []time.Duration{
		0, time.Second, time.Minute, 36 * time.Second,
		30 * time.Minute, time.Hour, 90 * time.Minute, 24 * time.Hour,
	} {
		b := &bucket{tokens: 40, lastRefill: start, policy: policy}
		b.refill(start.Add(elapsed))

		expected := 40 + int(int64(elapsed)*int64(policy.RefillRate)/int64(window))
		if expected > policy.MaxTokens {
			expected = policy.MaxTokens
		}
		assert.Equal(t, expected, b.tokens, "elapsed %s", elapsed)
		assert.GreaterOrEqual(t, b.tokens, 40, "refill must never decrease tokens")
		assert.LessOrEqual(t, b.tokens, policy.MaxTokens)
	}
}

func TestLimiter_DistributedWindow(t *testing.T) {
	store := NewMemoryStore()
	l, now := newTestLimiter(store, hourPolicy("read", 3))

	for i := 0; i < 3; i++ {
		res := l.Check(context.Background(), "v", "read")
		require.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res := l.Check(context.Background(), "v", "read")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.Equal(t, now.Truncate(time.Hour).Add(time.Hour), res.ResetAt)

	// A different identifier owns its own window.
	assert.True(t, l.Check(context.Background(), "other", "read").Allowed)

	// Next window resets the budget.
	*now = now.Truncate(time.Hour).Add(time.Hour + time.Second)
	assert.True(t, l.Check(context.Background(), "v", "read").Allowed)
}

func TestLimiter_StoreOutageFallsBack(t *testing.T) {
	store := &failingStore{}
	l, _ := newTestLimiter(store, hourPolicy("read", 5))

	for i := 0; i < 5; i++ {
		res := l.Check(context.Background(), "v", "read")
		assert.True(t, res.Allowed, "fallback should keep serving during outage")
	}
	assert.False(t, l.Check(context.Background(), "v", "read").Allowed)
	assert.Equal(t, 6, store.calls)
}

func TestLimiter_FailClosedClassDeniesDuringOutage(t *testing.T) {
	policy := hourPolicy("auth", 10)
	policy.FailClosed = true
	l, _ := newTestLimiter(&failingStore{}, policy)

	res := l.Check(context.Background(), "v", "auth")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLimiter_UnknownClassUsesReadPolicy(t *testing.T) {
	l, _ := newTestLimiter(nil, hourPolicy("read", 7))

	res := l.Check(context.Background(), "v", "mystery")
	assert.True(t, res.Allowed)
	assert.Equal(t, 7, res.Limit)
}

func TestLimiter_SetPolicyResetsBuckets(t *testing.T) {
	l, _ := newTestLimiter(nil, hourPolicy("read", 2))

	l.Check(context.Background(), "v", "read")
	l.Check(context.Background(), "v", "read")
	assert.False(t, l.Check(context.Background(), "v", "read").Allowed)

	l.SetPolicy(hourPolicy("read", 50))
	res := l.Check(context.Background(), "v", "read")
	assert.True(t, res.Allowed)
	assert.Equal(t, 50, res.Limit)
}
