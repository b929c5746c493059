package jackpot

import (
	"context"
	"sync"
)

// MemoryStore is the in-process pool Store. The mutex is the
// serialization point for the shared counter.
type MemoryStore struct {
	mu        sync.Mutex
	value     int64
	baseValue int64
}

// NewMemoryStore creates a pool store seeded at baseValue
func NewMemoryStore(baseValue int64) *MemoryStore {
	return &MemoryStore{value: baseValue, baseValue: baseValue}
}

// Value returns the current pool value
func (s *MemoryStore) Value(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// AddTax atomically increments the pool
func (s *MemoryStore) AddTax(ctx context.Context, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value += amount
	return s.value, nil
}

// TryPayout atomically swaps the pool value for baseValue
func (s *MemoryStore) TryPayout(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payout := s.value
	s.value = s.baseValue
	return payout, nil
}
