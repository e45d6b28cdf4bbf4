package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold triggers a pass over stored counters to drop stale windows.
const sweepThreshold = 4096

type counter struct {
	windowStart time.Time
	count       int
}

// MemoryStore keeps counters in process memory behind a single mutex.
// Cardinality is one entry per (limiter, client) pair, so a coarse lock
// is sufficient; entries from rolled-over windows are dropped lazily.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter)}
}

// Incr implements CounterStore.
func (s *MemoryStore) Incr(_ context.Context, key string, windowStart time.Time, window time.Duration, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !c.windowStart.Equal(windowStart) {
		// Fresh window: the stored counter (if any) is stale and is
		// replaced outright. The triggering attempt is admitted.
		s.counters[key] = &counter{windowStart: windowStart, count: 1}
		s.maybeSweepLocked(windowStart)
		return true, nil
	}

	if c.count >= limit {
		// Full window: reject without charging the attempt.
		return false, nil
	}
	c.count++
	return true, nil
}

// Len reports the number of live counters, for tests and introspection.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) maybeSweepLocked(current time.Time) {
	if len(s.counters) < sweepThreshold {
		return
	}
	for key, c := range s.counters {
		if !c.windowStart.Equal(current) {
			delete(s.counters, key)
		}
	}
}
