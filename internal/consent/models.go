// Package consent persists consent decisions attached to pilot requests.
package consent

import (
	"time"

	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
)

// Type labels what the applicant consented to. Type binding allows selective
// withdrawal without affecting other processing.
type Type string

const (
	// TypeDataProcessing covers processing the submission itself.
	TypeDataProcessing Type = "data_processing"
	// TypeCommunications covers follow-up email about the pilot program.
	TypeCommunications Type = "communications"
	// TypePilotTerms covers the pilot engagement terms referenced by the
	// agreement link.
	TypePilotTerms Type = "pilot_terms"
)

// ParseType validates an externally supplied consent type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDataProcessing, TypeCommunications, TypePilotTerms:
		return Type(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown consent type: "+s)
}

// Record captures one consent decision for a specific scope.
type Record struct {
	ID         string
	RequestID  id.RequestID
	Type       Type
	Scope      string
	RecordedBy string
	RecordedAt time.Time
}
