package quota

import (
	"context"
	"sync"
)

// MemoryStore is the in-process quota Store
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	consumed map[string]string
}

// NewMemoryStore creates an empty in-memory quota store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		consumed: make(map[string]string),
	}
}

func recordKey(userID, game string) string {
	return userID + ":" + game
}

// Get returns the record for (userID, game)
func (s *MemoryStore) Get(ctx context.Context, userID string, game string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordKey(userID, game)]
	if !ok {
		return &Record{UserID: userID, Game: game}, nil
	}
	copied := *r
	return &copied, nil
}

// Consume increments the play count for day, once per playID
func (s *MemoryStore) Consume(ctx context.Context, userID string, game string, day string, playID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if playID != "" {
		if _, done := s.consumed[playID]; done {
			return nil
		}
		s.consumed[playID] = day
	}

	key := recordKey(userID, game)
	r, ok := s.records[key]
	if !ok {
		r = &Record{UserID: userID, Game: game}
		s.records[key] = r
	}
	if r.LastPlayDate != day {
		r.PlaysUsed = 0
		r.LastPlayDate = day
	}
	r.PlaysUsed++
	return nil
}
