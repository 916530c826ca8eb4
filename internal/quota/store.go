// Package quota enforces per-external-API call budgets: a sliding minute
// window plus a UTC calendar-day counter per API, backed by a shared counter
// store. The limiter fails open — protecting product availability is worth
// more than strict spend enforcement when the store is unreachable.
//
// Two store implementations ship here:
//   - MemoryCounterStore: process-local, for development and tests.
//   - GormCounterStore: shared table, safe across server instances.
package quota

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the minimal contract the limiter needs from a counter
// backend: an atomic conditional increment with per-key expiry. A plain
// get-then-set pair cannot implement IncrementIfBelow correctly under
// contention; implementations must make the check-and-increment one step.
type CounterStore interface {
	// IncrementIfBelow increments the counter at key only when its current
	// value is below limit, returning the (possibly incremented) count and
	// whether the increment was admitted. On first increment into a fresh
	// (or expired) bucket, the key's expiry is set to ttl from now.
	IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (count int64, allowed bool, err error)

	// Decrement undoes one increment (used to roll back a minute-bucket
	// admission when the daily bucket subsequently denies). Never drops the
	// counter below zero.
	Decrement(ctx context.Context, key string) error

	// Get returns the current counter value, treating missing or expired
	// buckets as zero.
	Get(ctx context.Context, key string) (int64, error)
}

// memEntry is one bucket in the in-memory store.
type memEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounterStore is a mutex-guarded in-process CounterStore. Buckets are
// lazily expired on access; there is no background sweeper.
//
// This store is correct for a single process only. Multi-instance deployments
// must use a shared implementation (GormCounterStore) so limits hold globally.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewMemoryCounterStore constructs an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// IncrementIfBelow implements CounterStore.
func (s *MemoryCounterStore) IncrementIfBelow(_ context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = &memEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = e
	}
	if e.count >= limit {
		return e.count, false, nil
	}
	e.count++
	return e.count, true, nil
}

// Decrement implements CounterStore.
func (s *MemoryCounterStore) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.count > 0 {
		e.count--
	}
	return nil
}

// Get implements CounterStore.
func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(now) {
		return 0, nil
	}
	return e.count, nil
}
