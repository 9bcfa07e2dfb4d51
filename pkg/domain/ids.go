// Package domain holds typed identifiers shared across the back office.
//
// IDs are distinct types over uuid.UUID so a request id can never be passed
// where a pilot id is expected. Actor ids stay plain strings: identity is an
// external collaborator and the core only logs what it is given.
package domain

import (
	"github.com/google/uuid"

	dErrors "pilotdesk/pkg/domain-errors"
)

// RequestID identifies a pilot request.
type RequestID uuid.UUID

// PilotID identifies a converted pilot engagement.
type PilotID uuid.UUID

// NewRequestID allocates a fresh request id.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// NewPilotID allocates a fresh pilot id.
func NewPilotID() PilotID {
	return PilotID(uuid.New())
}

// ParseRequestID validates an externally supplied request id.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// ParsePilotID validates an externally supplied pilot id.
func ParsePilotID(s string) (PilotID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return PilotID{}, err
	}
	return PilotID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be the nil UUID")
	}
	return u, nil
}

func (r RequestID) String() string { return uuid.UUID(r).String() }
func (r RequestID) IsNil() bool    { return uuid.UUID(r) == uuid.Nil }

func (p PilotID) String() string { return uuid.UUID(p).String() }
func (p PilotID) IsNil() bool    { return uuid.UUID(p) == uuid.Nil }
