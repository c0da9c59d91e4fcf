package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps the chain in a slice. Used by tests and as the default
// backend when no durable store is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, batch []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, batch...)
	return nil
}

func (s *InMemoryStore) Read(_ context.Context, from, to uint64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.SequenceNo >= from && rec.SequenceNo <= to {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Last(_ context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, nil
}

// Tamper overwrites the record at sequence seq. Test hook for exercising
// Verify; production code has no callers.
func (s *InMemoryStore) Tamper(seq uint64, mutate func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].SequenceNo == seq {
			mutate(&s.records[i])
			return
		}
	}
}
