// Package audit implements the tamper-evident, append-only audit log.
//
// Entries for one entity form a singly-linked hash chain: each entry's
// CurrHash covers its own content plus the previous entry's CurrHash. Any
// mutation of a stored entry breaks verification from that point forward.
package audit

import "time"

// Action names the change an entry records. The set is closed in practice;
// string-typed so stores and the mirror publisher stay schema-free.
type Action string

const (
	ActionRequestSubmitted       Action = "REQUEST_SUBMITTED"
	ActionReviewerAssigned       Action = "REVIEWER_ASSIGNED"
	ActionContactConfirmed       Action = "CONTACT_CONFIRMED"
	ActionTagsUpdated            Action = "TAGS_UPDATED"
	ActionRubricScored           Action = "RUBRIC_SCORED"
	ActionRequestMerged          Action = "REQUEST_MERGED"
	ActionMergedInto             Action = "MERGED_INTO"
	ActionAgreementLinkGenerated Action = "AGREEMENT_LINK_GENERATED"
	ActionAgreementSigned        Action = "AGREEMENT_SIGNED"
	ActionConsentRecorded        Action = "CONSENT_RECORDED"
	ActionStatusAdvanced         Action = "STATUS_ADVANCED"
	ActionSLAEscalated           Action = "SLA_ESCALATED"
	ActionPilotCreated           Action = "PILOT_CREATED"
	ActionPilotWorkspaceSeeded   Action = "PILOT_WORKSPACE_SEEDED"
	ActionPilotStatusAdvanced    Action = "PILOT_STATUS_ADVANCED"
	ActionMilestoneCompleted     Action = "MILESTONE_COMPLETED"
)

// SystemActor is recorded when no authenticated user drove the change
// (sweeps, public signature capture).
const SystemActor = "system"

// Entry is one immutable fact about a change to a request or pilot.
//
// Metadata is a flat string map: values that would leak (raw tokens, raw IP
// addresses) must be redacted or hashed by the caller before they get here.
type Entry struct {
	ID        string
	EntityID  string
	Action    Action
	Actor     string
	Metadata  map[string]string
	Timestamp time.Time
	PrevHash  string
	CurrHash  string
}
