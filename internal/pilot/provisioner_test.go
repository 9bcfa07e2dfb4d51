package pilot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/notify"
	"pilotdesk/internal/request"
	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/requestcontext"
)

var testBase = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func seedSignedRequest(t *testing.T, store *request.InMemoryStore) request.PilotRequest {
	t.Helper()
	req := request.PilotRequest{
		ID:            id.NewRequestID(),
		ApplicantName: "Dana Osei",
		Email:         "dana.osei@example.org",
		Organization:  "Meridian Safety Lab",
		RoleHint:      request.RoleAuditor,
		Status:        request.StatusSigned,
		CreatedAt:     testBase,
		UpdatedAt:     testBase,
	}
	require.NoError(t, store.Create(context.Background(), req))
	return req
}

// failOnUpdate wraps the request store and fails the first Update call.
type failOnUpdate struct {
	*request.InMemoryStore
	failed bool
}

func (f *failOnUpdate) Update(ctx context.Context, req request.PilotRequest) error {
	if !f.failed {
		f.failed = true
		return assert.AnError
	}
	return f.InMemoryStore.Update(ctx, req)
}

func TestCreatePilotWorkspace(t *testing.T) {
	requests := request.NewInMemoryStore()
	pilots := NewInMemoryStore()
	auditLog := audit.NewLog(audit.NewInMemoryStore())
	recorder := notify.NewRecorder()
	provisioner := NewProvisioner(pilots, requests, auditLog, WithDispatcher(recorder))

	req := seedSignedRequest(t, requests)
	ctx := requestcontext.WithTime(context.Background(), testBase)

	pilotID, err := provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.NoError(t, err)

	pilot, err := pilots.Get(ctx, pilotID)
	require.NoError(t, err)
	assert.Equal(t, "Meridian Safety Lab pilot", pilot.Name)
	assert.Equal(t, StatusOnboarding, pilot.Status)
	assert.Equal(t, req.ID, pilot.RequestID)
	assert.Equal(t, MetricTargets{StorageDelta: 0.15, VerifyLatencyP95Millis: 500, AuditEffortDelta: 0.30}, pilot.Targets)

	require.Len(t, pilot.Participants, 1)
	assert.Equal(t, "dana.osei@example.org", pilot.Participants[0].Email)
	assert.Equal(t, "Dana", pilot.Participants[0].FirstName)
	assert.Equal(t, "Osei", pilot.Participants[0].LastName)
	assert.Equal(t, "auditor", pilot.Participants[0].RoleHint)

	require.Len(t, pilot.Milestones, 6)
	assert.Equal(t, testBase.Add(14*24*time.Hour), pilot.Milestones[0].DueAt)
	for _, milestone := range pilot.Milestones {
		assert.Equal(t, MilestonePending, milestone.Status)
	}

	converted, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusConverted, converted.Status)

	requestTrail, err := auditLog.Read(ctx, req.ID.String())
	require.NoError(t, err)
	require.Len(t, requestTrail, 1)
	assert.Equal(t, audit.ActionPilotCreated, requestTrail[0].Action)
	assert.Equal(t, pilotID.String(), requestTrail[0].Metadata["pilot_id"])

	pilotTrail, err := auditLog.Read(ctx, pilotID.String())
	require.NoError(t, err)
	require.Len(t, pilotTrail, 1)
	assert.Equal(t, audit.ActionPilotWorkspaceSeeded, pilotTrail[0].Action)

	deliveries := recorder.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, notify.TemplateWorkspaceReady, deliveries[0].Template)
	assert.Equal(t, []string{"dana.osei@example.org"}, deliveries[0].Recipients)
}

func TestCreatePilotWorkspaceIsIdempotent(t *testing.T) {
	requests := request.NewInMemoryStore()
	pilots := NewInMemoryStore()
	auditLog := audit.NewLog(audit.NewInMemoryStore())
	provisioner := NewProvisioner(pilots, requests, auditLog)

	req := seedSignedRequest(t, requests)
	ctx := requestcontext.WithTime(context.Background(), testBase)

	first, err := provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.NoError(t, err)

	second, err := provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-provisioning returns the existing pilot")

	requestTrail, err := auditLog.Read(ctx, req.ID.String())
	require.NoError(t, err)
	assert.Len(t, requestTrail, 1, "the no-op repeat appends nothing")
}

func TestCreatePilotWorkspaceRejectsAbsorbedRequest(t *testing.T) {
	requests := request.NewInMemoryStore()
	provisioner := NewProvisioner(NewInMemoryStore(), requests, audit.NewLog(audit.NewInMemoryStore()))

	req := seedSignedRequest(t, requests)
	ctx := context.Background()
	absorbed, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	absorbed.Status = request.StatusConverted
	require.NoError(t, requests.Update(ctx, absorbed))

	_, err = provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestCreatePilotWorkspaceUnknownRequest(t *testing.T) {
	provisioner := NewProvisioner(NewInMemoryStore(), request.NewInMemoryStore(), audit.NewLog(audit.NewInMemoryStore()))

	_, err := provisioner.CreatePilotWorkspace(context.Background(), id.NewRequestID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCreatePilotWorkspaceCompensatesOnConversionFailure(t *testing.T) {
	inner := request.NewInMemoryStore()
	requests := &failOnUpdate{InMemoryStore: inner}
	pilots := NewInMemoryStore()
	provisioner := NewProvisioner(pilots, requests, audit.NewLog(audit.NewInMemoryStore()))

	req := seedSignedRequest(t, inner)
	ctx := requestcontext.WithTime(context.Background(), testBase)

	_, err := provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = pilots.FindByRequestID(ctx, req.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "the half-created pilot is deleted")

	unchanged, err := inner.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusSigned, unchanged.Status, "the request stays unconverted")
}

func TestAdvanceStatus(t *testing.T) {
	requests := request.NewInMemoryStore()
	pilots := NewInMemoryStore()
	auditLog := audit.NewLog(audit.NewInMemoryStore())
	provisioner := NewProvisioner(pilots, requests, auditLog)

	req := seedSignedRequest(t, requests)
	ctx := requestcontext.WithTime(context.Background(), testBase)
	pilotID, err := provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.NoError(t, err)

	advanced, err := provisioner.AdvanceStatus(ctx, pilotID, StatusScoping, "kickoff held")
	require.NoError(t, err)
	assert.Equal(t, StatusScoping, advanced.Status)

	_, err = provisioner.AdvanceStatus(ctx, pilotID, Status("paused"), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	trail, err := auditLog.Read(ctx, pilotID.String())
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, audit.ActionPilotStatusAdvanced, last.Action)
	assert.Equal(t, "onboarding", last.Metadata["from"])
	assert.Equal(t, "scoping", last.Metadata["to"])
}

func TestCompleteMilestone(t *testing.T) {
	requests := request.NewInMemoryStore()
	pilots := NewInMemoryStore()
	auditLog := audit.NewLog(audit.NewInMemoryStore())
	provisioner := NewProvisioner(pilots, requests, auditLog)

	req := seedSignedRequest(t, requests)
	ctx := requestcontext.WithTime(context.Background(), testBase)
	pilotID, err := provisioner.CreatePilotWorkspace(ctx, req.ID)
	require.NoError(t, err)

	pilot, err := provisioner.Get(ctx, pilotID)
	require.NoError(t, err)
	milestoneID := pilot.Milestones[0].ID

	updated, err := provisioner.CompleteMilestone(ctx, pilotID, milestoneID)
	require.NoError(t, err)
	assert.Equal(t, MilestoneDone, updated.Milestones[0].Status)
	require.NotNil(t, updated.Milestones[0].CompletedAt)

	trail, err := auditLog.Read(ctx, pilotID.String())
	require.NoError(t, err)
	countBefore := len(trail)

	// Completing the same milestone again changes nothing.
	again, err := provisioner.CompleteMilestone(ctx, pilotID, milestoneID)
	require.NoError(t, err)
	assert.Equal(t, MilestoneDone, again.Milestones[0].Status)

	trail, err = auditLog.Read(ctx, pilotID.String())
	require.NoError(t, err)
	assert.Len(t, trail, countBefore)

	_, err = provisioner.CompleteMilestone(ctx, pilotID, "no-such-milestone")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
