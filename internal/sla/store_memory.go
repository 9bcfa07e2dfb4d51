package sla

import (
	"context"
	"sync"

	"pilotdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps SLAs in process memory, keyed by (entity, kind).
type InMemoryStore struct {
	mu   sync.RWMutex
	slas map[string]SLA
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{slas: make(map[string]SLA)}
}

func key(entityID string, kind Kind) string {
	return entityID + "|" + string(kind)
}

func (s *InMemoryStore) Create(_ context.Context, sla SLA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slas[key(sla.EntityID, sla.Kind)] = sla
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, entityID string, kind Kind) (SLA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sla, ok := s.slas[key(entityID, kind)]; ok {
		return sla, nil
	}
	return SLA{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, sla SLA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(sla.EntityID, sla.Kind)
	if _, ok := s.slas[k]; !ok {
		return sentinel.ErrNotFound
	}
	s.slas[k] = sla
	return nil
}

// ListOpen returns every unresolved SLA.
func (s *InMemoryStore) ListOpen(_ context.Context) ([]SLA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []SLA
	for _, sla := range s.slas {
		if sla.ResolvedAt == nil {
			open = append(open, sla)
		}
	}
	return open, nil
}
