package audit

import (
	"context"
	"sync"

	"pilotdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps chains in process memory. It intentionally favors
// clarity over performance; entries are copied on the way in and out so
// callers can never mutate stored history.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chains: make(map[string][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[entry.EntityID]
	head := ""
	if len(chain) > 0 {
		head = chain[len(chain)-1].CurrHash
	}
	if entry.PrevHash != head {
		return sentinel.ErrConflict
	}
	s.chains[entry.EntityID] = append(chain, cloneEntry(entry))
	return nil
}

func (s *InMemoryStore) Head(_ context.Context, entityID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[entityID]
	if len(chain) == 0 {
		return Entry{}, sentinel.ErrNotFound
	}
	return cloneEntry(chain[len(chain)-1]), nil
}

func (s *InMemoryStore) List(_ context.Context, entityID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[entityID]
	out := make([]Entry, 0, len(chain))
	for _, e := range chain {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// Tamper overwrites a stored entry in place. Only for tests proving that
// Verify detects mutated history; production code has no path to it.
func (s *InMemoryStore) Tamper(entityID string, index int, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[entityID]
	if index < 0 || index >= len(chain) {
		return false
	}
	mutate(&chain[index])
	return true
}

func cloneEntry(e Entry) Entry {
	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}
