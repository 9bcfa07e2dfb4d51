package pilot

import (
	"context"
	"sync"

	id "pilotdesk/pkg/domain"
	"pilotdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps pilots in process memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	pilots map[id.PilotID]Pilot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{pilots: make(map[id.PilotID]Pilot)}
}

func (s *InMemoryStore) Save(_ context.Context, pilot Pilot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pilots[pilot.ID] = clonePilot(pilot)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, pilotID id.PilotID) (Pilot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pilot, ok := s.pilots[pilotID]
	if !ok {
		return Pilot{}, sentinel.ErrNotFound
	}
	return clonePilot(pilot), nil
}

func (s *InMemoryStore) FindByRequestID(_ context.Context, requestID id.RequestID) (Pilot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pilot := range s.pilots {
		if pilot.RequestID == requestID {
			return clonePilot(pilot), nil
		}
	}
	return Pilot{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Delete(_ context.Context, pilotID id.PilotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pilots, pilotID)
	return nil
}

func clonePilot(pilot Pilot) Pilot {
	out := pilot
	out.Participants = append([]Participant(nil), pilot.Participants...)
	out.Milestones = make([]Milestone, len(pilot.Milestones))
	for i, milestone := range pilot.Milestones {
		if milestone.CompletedAt != nil {
			completedAt := *milestone.CompletedAt
			milestone.CompletedAt = &completedAt
		}
		out.Milestones[i] = milestone
	}
	return out
}
