package consent

import (
	"context"
	"sync"

	id "pilotdesk/pkg/domain"
)

// InMemoryStore keeps consent records in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RequestID][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RequestID][]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RequestID] = append(s.records[record.RequestID], record)
	return nil
}

func (s *InMemoryStore) ListByRequest(_ context.Context, requestID id.RequestID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.records[requestID]...), nil
}
