// Package pilot provisions and tracks pilot engagements converted from
// signed requests.
package pilot

import (
	"time"

	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
)

// Status is the pilot engagement phase. Richer than the request lifecycle;
// a pilot spends weeks in each phase.
type Status string

const (
	StatusOnboarding     Status = "onboarding"
	StatusScoping        Status = "scoping"
	StatusImplementation Status = "implementation"
	StatusValidation     Status = "validation"
	StatusSynthesis      Status = "synthesis"
	StatusCloseout       Status = "closeout"
)

// ParseStatus validates an externally supplied pilot status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOnboarding, StatusScoping, StatusImplementation,
		StatusValidation, StatusSynthesis, StatusCloseout:
		return Status(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown pilot status: "+s)
}

// MetricTargets are the success criteria agreed for the engagement.
type MetricTargets struct {
	// StorageDelta is the target relative reduction in evidence storage.
	StorageDelta float64
	// VerifyLatencyP95Millis is the target p95 verification latency.
	VerifyLatencyP95Millis int
	// AuditEffortDelta is the target relative reduction in audit effort.
	AuditEffortDelta float64
}

// DefaultMetricTargets returns the standard engagement targets. Individual
// pilots may renegotiate them later.
func DefaultMetricTargets() MetricTargets {
	return MetricTargets{
		StorageDelta:           0.15,
		VerifyLatencyP95Millis: 500,
		AuditEffortDelta:       0.30,
	}
}

// Participant binds a person from the requesting organization to the pilot.
type Participant struct {
	Email     string
	FirstName string
	LastName  string
	RoleHint  string
}

// MilestoneStatus tracks per-milestone progress.
type MilestoneStatus string

const (
	MilestonePending MilestoneStatus = "PENDING"
	MilestoneDone    MilestoneStatus = "DONE"
)

// Milestone is one step of the engagement plan.
type Milestone struct {
	ID          string
	Name        string
	Description string
	DueAt       time.Time
	Status      MilestoneStatus
	CompletedAt *time.Time
}

// Pilot is a converted engagement, derived 1:1 from a terminal request.
type Pilot struct {
	ID           id.PilotID
	Name         string
	Organization string
	Status       Status
	Targets      MetricTargets
	RequestID    id.RequestID
	Participants []Participant
	Milestones   []Milestone
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
