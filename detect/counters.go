package detect

import (
	"context"
	"sync"
)

// CounterState is the mutable state backend for the detector: per-identity
// consecutive-failure counters and the known-login-source set. Defined here
// (consumer package); core.RedisState is the production implementation.
//
// Implementations must update counters atomically: concurrent failed logins
// for the same identity must never undercount.
type CounterState interface {
	IncrementFailures(ctx context.Context, identity string) (int64, error)
	ResetFailures(ctx context.Context, identity string) error
	AddKnownSource(ctx context.Context, source string) error
	IsKnownSource(ctx context.Context, source string) (bool, error)
}

// MemoryCounterState is a mutex-guarded in-process CounterState, used when
// Redis is disabled. Counters do not survive a restart.
type MemoryCounterState struct {
	mu       sync.Mutex
	failures map[string]int64
	sources  map[string]struct{}
}

// NewMemoryCounterState creates an empty in-memory counter state
func NewMemoryCounterState() *MemoryCounterState {
	return &MemoryCounterState{
		failures: make(map[string]int64),
		sources:  make(map[string]struct{}),
	}
}

// IncrementFailures atomically increments the failure counter for an identity
func (m *MemoryCounterState) IncrementFailures(_ context.Context, identity string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[identity]++
	return m.failures[identity], nil
}

// ResetFailures clears the failure counter for an identity
func (m *MemoryCounterState) ResetFailures(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, identity)
	return nil
}

// AddKnownSource records a login source as known
func (m *MemoryCounterState) AddKnownSource(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source] = struct{}{}
	return nil
}

// IsKnownSource reports whether a login source has been seen before
func (m *MemoryCounterState) IsKnownSource(_ context.Context, source string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, known := m.sources[source]
	return known, nil
}
