package consent

import (
	"context"

	"github.com/google/uuid"

	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/requestcontext"
)

// Store persists consent records.
type Store interface {
	Save(ctx context.Context, record Record) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]Record, error)
}

// Service validates and persists consent decisions. It keeps orchestration
// out of the lifecycle manager and the domain logic thin.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record persists a consent decision after validating its type.
func (s *Service) Record(ctx context.Context, requestID id.RequestID, consentType Type, scope, recordedBy string) (Record, error) {
	if _, err := ParseType(string(consentType)); err != nil {
		return Record{}, err
	}
	record := Record{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Type:       consentType,
		Scope:      scope,
		RecordedBy: recordedBy,
		RecordedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record consent")
	}
	return record, nil
}

// List returns every consent decision recorded for a request.
func (s *Service) List(ctx context.Context, requestID id.RequestID) ([]Record, error) {
	records, err := s.store.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list consents")
	}
	return records, nil
}
