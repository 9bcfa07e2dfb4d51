package request

import (
	"context"
	"sort"
	"sync"

	id "pilotdesk/pkg/domain"
	"pilotdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in process memory. It is the default backing
// store for tests and single-node runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]PilotRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]PilotRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, request PilotRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; ok {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, requestID id.RequestID) (PilotRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return PilotRequest{}, sentinel.ErrNotFound
	}
	return cloneRequest(request), nil
}

func (s *InMemoryStore) Update(_ context.Context, request PilotRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]PilotRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PilotRequest, 0, len(s.requests))
	for _, request := range s.requests {
		out = append(out, cloneRequest(request))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// cloneRequest deep-copies the mutable parts so callers cannot reach into
// stored state.
func cloneRequest(request PilotRequest) PilotRequest {
	out := request
	out.Tags = append([]string(nil), request.Tags...)
	if request.Score != nil {
		score := *request.Score
		out.Score = &score
	}
	if request.AgreementLink != nil {
		link := *request.AgreementLink
		if request.AgreementLink.UsedAt != nil {
			usedAt := *request.AgreementLink.UsedAt
			link.UsedAt = &usedAt
		}
		out.AgreementLink = &link
	}
	return out
}
