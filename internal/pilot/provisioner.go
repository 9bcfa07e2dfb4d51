package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/notify"
	"pilotdesk/internal/platform/metrics"
	"pilotdesk/internal/request"
	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/email"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/requestcontext"
)

// Store persists pilots.
type Store interface {
	Save(ctx context.Context, pilot Pilot) error
	Get(ctx context.Context, pilotID id.PilotID) (Pilot, error)
	FindByRequestID(ctx context.Context, requestID id.RequestID) (Pilot, error)
	Delete(ctx context.Context, pilotID id.PilotID) error
}

// Requests is the request store surface provisioning needs. Conversion goes
// through the store directly because a converted request is otherwise
// immutable to the lifecycle service.
type Requests interface {
	Get(ctx context.Context, requestID id.RequestID) (request.PilotRequest, error)
	Update(ctx context.Context, request request.PilotRequest) error
}

// Auditor appends to the request's and the pilot's hash chains.
type Auditor interface {
	Append(ctx context.Context, entityID, actor string, action audit.Action, metadata map[string]string) (audit.Entry, error)
}

// Provisioner converts a signed request into a pilot workspace: the pilot
// record, a participant seeded from the submitter, and a milestone plan.
//
// Creation runs as a saga with compensating deletes. The only entries that
// can outlive a failed run are orphaned chain entries under the new pilot
// id, which is never reused; the request chain gets its PILOT_CREATED entry
// last, once everything else is in place.
type Provisioner struct {
	pilots     Store
	requests   Requests
	auditor    Auditor
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	plan       PlanTemplate
}

type Option func(p *Provisioner)

func WithDispatcher(d notify.Dispatcher) Option {
	return func(p *Provisioner) { p.dispatcher = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provisioner) { p.metrics = m }
}

func WithPlan(plan PlanTemplate) Option {
	return func(p *Provisioner) { p.plan = plan }
}

func NewProvisioner(pilots Store, requests Requests, auditor Auditor, opts ...Option) *Provisioner {
	p := &Provisioner{
		pilots:   pilots,
		requests: requests,
		auditor:  auditor,
		tracer:   otel.Tracer("pilotdesk/pilot"),
		plan:     DefaultPlan(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreatePilotWorkspace converts a request into a pilot. Calling it again for
// an already-converted request returns the existing pilot's id without
// creating a second one.
func (p *Provisioner) CreatePilotWorkspace(ctx context.Context, requestID id.RequestID) (id.PilotID, error) {
	ctx, span := p.tracer.Start(ctx, "pilot.CreatePilotWorkspace")
	defer span.End()

	req, err := p.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.PilotID{}, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return id.PilotID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load request")
	}

	if req.Converted() {
		existing, err := p.pilots.FindByRequestID(ctx, requestID)
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return id.PilotID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to look up existing pilot")
		}
		// Converted without a pilot means the request was absorbed by a
		// merge; the surviving request is the one to convert.
		return id.PilotID{}, dErrors.New(dErrors.CodeConflict, "request was absorbed by a merge and cannot convert")
	}

	now := requestcontext.Now(ctx)
	firstName, lastName := email.DeriveNameFromEmail(req.Email)
	pilot := Pilot{
		ID:           id.NewPilotID(),
		Name:         req.Organization + " pilot",
		Organization: req.Organization,
		Status:       StatusOnboarding,
		Targets:      DefaultMetricTargets(),
		RequestID:    requestID,
		Participants: []Participant{{
			Email:     req.Email,
			FirstName: firstName,
			LastName:  lastName,
			RoleHint:  string(req.RoleHint),
		}},
		Milestones: BuildMilestones(p.plan, now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := p.pilots.Save(ctx, pilot); err != nil {
		return id.PilotID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save pilot")
	}

	if _, err := p.auditor.Append(ctx, pilot.ID.String(), audit.SystemActor, audit.ActionPilotWorkspaceSeeded, map[string]string{
		"request_id": requestID.String(),
		"milestones": fmt.Sprintf("%d", len(pilot.Milestones)),
	}); err != nil {
		p.compensate(ctx, pilot.ID)
		return id.PilotID{}, err
	}

	previousStatus := req.Status
	req.Status = request.StatusConverted
	req.UpdatedAt = now
	if err := p.requests.Update(ctx, req); err != nil {
		p.compensate(ctx, pilot.ID)
		return id.PilotID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to mark request converted")
	}

	if _, err := p.auditor.Append(ctx, requestID.String(), p.actor(ctx), audit.ActionPilotCreated, map[string]string{
		"pilot_id": pilot.ID.String(),
	}); err != nil {
		req.Status = previousStatus
		if revertErr := p.requests.Update(ctx, req); revertErr != nil && p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to revert request after audit append failure",
				"request_id", requestID.String(), "error", revertErr)
		}
		p.compensate(ctx, pilot.ID)
		return id.PilotID{}, err
	}

	if p.metrics != nil {
		p.metrics.PilotsProvisioned.Inc()
	}
	if p.dispatcher != nil {
		err := p.dispatcher.Send(ctx, notify.TemplateWorkspaceReady, []string{req.Email}, map[string]string{
			"pilot_id":     pilot.ID.String(),
			"organization": pilot.Organization,
			"first_name":   firstName,
		})
		if err != nil {
			if p.metrics != nil {
				p.metrics.NotificationFailures.Inc()
			}
			if p.logger != nil {
				p.logger.WarnContext(ctx, "workspace-ready notification failed",
					"pilot_id", pilot.ID.String(), "error", err)
			}
		}
	}
	return pilot.ID, nil
}

// Get loads a pilot.
func (p *Provisioner) Get(ctx context.Context, pilotID id.PilotID) (Pilot, error) {
	return p.load(ctx, pilotID)
}

// AdvanceStatus moves the pilot to a new phase and records the move in the
// pilot's chain.
func (p *Provisioner) AdvanceStatus(ctx context.Context, pilotID id.PilotID, next Status, reason string) (Pilot, error) {
	ctx, span := p.tracer.Start(ctx, "pilot.AdvanceStatus")
	defer span.End()

	if _, err := ParseStatus(string(next)); err != nil {
		return Pilot{}, err
	}
	pilot, err := p.load(ctx, pilotID)
	if err != nil {
		return Pilot{}, err
	}

	previous := pilot.Status
	pilot.Status = next
	pilot.UpdatedAt = requestcontext.Now(ctx)
	if err := p.pilots.Save(ctx, pilot); err != nil {
		return Pilot{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to advance pilot status")
	}

	if _, err := p.auditor.Append(ctx, pilotID.String(), p.actor(ctx), audit.ActionPilotStatusAdvanced, map[string]string{
		"from":   string(previous),
		"to":     string(next),
		"reason": reason,
	}); err != nil {
		return Pilot{}, err
	}
	return pilot, nil
}

// CompleteMilestone marks a milestone DONE. Completing it again is a no-op.
func (p *Provisioner) CompleteMilestone(ctx context.Context, pilotID id.PilotID, milestoneID string) (Pilot, error) {
	ctx, span := p.tracer.Start(ctx, "pilot.CompleteMilestone")
	defer span.End()

	pilot, err := p.load(ctx, pilotID)
	if err != nil {
		return Pilot{}, err
	}

	index := -1
	for i, milestone := range pilot.Milestones {
		if milestone.ID == milestoneID {
			index = i
			break
		}
	}
	if index == -1 {
		return Pilot{}, dErrors.New(dErrors.CodeNotFound, "milestone not found")
	}
	if pilot.Milestones[index].Status == MilestoneDone {
		return pilot, nil
	}

	now := requestcontext.Now(ctx)
	pilot.Milestones[index].Status = MilestoneDone
	pilot.Milestones[index].CompletedAt = &now
	pilot.UpdatedAt = now
	if err := p.pilots.Save(ctx, pilot); err != nil {
		return Pilot{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to complete milestone")
	}

	if _, err := p.auditor.Append(ctx, pilotID.String(), p.actor(ctx), audit.ActionMilestoneCompleted, map[string]string{
		"milestone_id": milestoneID,
		"milestone":    pilot.Milestones[index].Name,
	}); err != nil {
		return Pilot{}, err
	}
	return pilot, nil
}

func (p *Provisioner) load(ctx context.Context, pilotID id.PilotID) (Pilot, error) {
	pilot, err := p.pilots.Get(ctx, pilotID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Pilot{}, dErrors.New(dErrors.CodeNotFound, "pilot not found")
		}
		return Pilot{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load pilot")
	}
	return pilot, nil
}

func (p *Provisioner) compensate(ctx context.Context, pilotID id.PilotID) {
	if err := p.pilots.Delete(ctx, pilotID); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "failed to delete pilot during compensation",
			"pilot_id", pilotID.String(), "error", err)
	}
}

func (p *Provisioner) actor(ctx context.Context) string {
	if actor := requestcontext.ActorID(ctx); actor != "" {
		return actor
	}
	return audit.SystemActor
}
