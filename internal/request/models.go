// Package request implements the pilot request lifecycle, from inbound
// submission through triage, scoring, agreement, and conversion.
package request

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
)

// Status is the lifecycle stage of a pilot request. The intended path runs
// NEW through CONVERTED in declaration order, but admins may jump stages;
// see transitions.go.
type Status string

const (
	StatusNew          Status = "NEW"
	StatusScoping      Status = "SCOPING"
	StatusAgreementOut Status = "AGREEMENT_OUT"
	StatusSigned       Status = "SIGNED"
	StatusConverted    Status = "CONVERTED"
)

// ParseStatus validates an externally supplied status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNew, StatusScoping, StatusAgreementOut, StatusSigned, StatusConverted:
		return Status(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown request status: "+s)
}

// RoleHint is the applicant's self-declared role in the audit ecosystem.
type RoleHint string

const (
	RoleRegulator RoleHint = "regulator"
	RoleAuditor   RoleHint = "auditor"
	RoleAIBuilder RoleHint = "ai_builder"
)

// ParseRoleHint validates an externally supplied role hint.
func ParseRoleHint(s string) (RoleHint, error) {
	switch RoleHint(s) {
	case RoleRegulator, RoleAuditor, RoleAIBuilder:
		return RoleHint(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown role hint: "+s)
}

// AgreementLink is a single-use, expiring token an applicant signs against.
type AgreementLink struct {
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the link can still be signed at the given time.
func (l AgreementLink) Usable(now time.Time) bool {
	return l.UsedAt == nil && now.Before(l.ExpiresAt)
}

// PilotRequest is a lead that may become a pilot engagement.
type PilotRequest struct {
	ID            id.RequestID
	ApplicantName string
	Email         string
	Organization  string
	RoleHint      RoleHint
	Sector        string
	Region        string
	Tags          []string
	Score         *RubricScores
	OwnerUserID   string
	AgreementLink *AgreementLink
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Converted reports whether the request has reached its terminal state,
// either by pilot conversion or by being absorbed into a duplicate.
func (r PilotRequest) Converted() bool {
	return r.Status == StatusConverted
}

// Submission is the inbound intake payload.
type Submission struct {
	ApplicantName string
	Email         string
	Organization  string
	RoleHint      string
	Sector        string
	Region        string
	Tags          []string
}

// Normalize trims whitespace and lowercases the email address.
func (s *Submission) Normalize() {
	s.ApplicantName = strings.TrimSpace(s.ApplicantName)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Organization = strings.TrimSpace(s.Organization)
	s.RoleHint = strings.TrimSpace(s.RoleHint)
	s.Sector = strings.TrimSpace(s.Sector)
	s.Region = strings.TrimSpace(s.Region)
}

// Validate checks required fields and enum values. Call Normalize first.
func (s Submission) Validate() error {
	if s.ApplicantName == "" {
		return dErrors.New(dErrors.CodeValidation, "applicant name is required")
	}
	if !govalidator.IsEmail(s.Email) {
		return dErrors.New(dErrors.CodeValidation, "a valid email address is required")
	}
	if s.Organization == "" {
		return dErrors.New(dErrors.CodeValidation, "organization is required")
	}
	if _, err := ParseRoleHint(s.RoleHint); err != nil {
		return err
	}
	return nil
}

// dedupeTags removes empty and repeated tags, keeping first-seen order.
func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
