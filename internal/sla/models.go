// Package sla tracks deadlines attached to entities awaiting an action.
//
// Overdue status is always derived from the clock at sweep time, never stored
// as stale truth. Escalation levels only increase; an SLA stops escalating
// once resolved.
package sla

import "time"

// Kind labels what the deadline is for.
type Kind string

const (
	// KindInitialContact is created when a reviewer is assigned: the
	// reviewer has a fixed window to make first contact.
	KindInitialContact Kind = "INITIAL_CONTACT"
)

// SLA is a deadline attached to an entity.
type SLA struct {
	ID              string
	EntityID        string
	Kind            Kind
	DueAt           time.Time
	EscalationLevel int
	ResolvedAt      *time.Time
	CreatedAt       time.Time
}

// Overdue reports whether the deadline has passed and the SLA is still open.
func (s SLA) Overdue(now time.Time) bool {
	return s.ResolvedAt == nil && now.After(s.DueAt)
}
