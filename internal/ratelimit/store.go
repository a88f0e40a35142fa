package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is an atomic increment-with-expire counter shared by all
// request handlers, potentially across process instances. Incr returns the
// counter value after incrementing; the first increment of a key arms its
// TTL.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// MemoryStore is a mutex-guarded in-process CounterStore. It is not safe
// across multiple processes; it exists as the degraded fallback path and as
// the default for single-instance deployments without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore builds an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// Incr increments the key's counter, creating it with the given TTL on first
// use and pruning it once expired. Never returns an error.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
		s.pruneLocked(now)
	}
	c.count++
	return c.count, nil
}

// pruneLocked drops expired counters so the map does not grow unbounded.
func (s *MemoryStore) pruneLocked(now time.Time) {
	if len(s.counters) < 4096 {
		return
	}
	for k, c := range s.counters {
		if now.After(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}
