package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/notify"
	"pilotdesk/internal/platform/metrics"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/requestcontext"
)

// Store persists SLA records.
type Store interface {
	Create(ctx context.Context, sla SLA) error
	Find(ctx context.Context, entityID string, kind Kind) (SLA, error)
	Update(ctx context.Context, sla SLA) error
	ListOpen(ctx context.Context) ([]SLA, error)
}

// Auditor appends escalation facts to the owning entity's chain.
type Auditor interface {
	Append(ctx context.Context, entityID, actor string, action audit.Action, metadata map[string]string) (audit.Entry, error)
}

// Tracker owns deadline bookkeeping and the periodic overdue sweep. The sweep
// is driven externally (scheduled job or the `sweep` command); the tracker
// only exposes the computation plus its two side effects.
type Tracker struct {
	store      Store
	dispatcher notify.Dispatcher
	auditor    Auditor
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// nudgeRecipients receive overdue nudges; empty means log-only.
	nudgeRecipients []string
	sweepWorkers    int
}

type Option func(t *Tracker)

func WithDispatcher(d notify.Dispatcher) Option {
	return func(t *Tracker) { t.dispatcher = d }
}

func WithAuditor(a Auditor) Option {
	return func(t *Tracker) { t.auditor = a }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithNudgeRecipients(recipients []string) Option {
	return func(t *Tracker) { t.nudgeRecipients = recipients }
}

func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, sweepWorkers: 8}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Set creates a deadline for an entity. Multiple SLAs per entity are allowed
// as long as their kinds differ; setting the same kind again replaces the
// deadline and restarts escalation.
func (t *Tracker) Set(ctx context.Context, entityID string, dueAt time.Time, kind Kind) error {
	if entityID == "" {
		return dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	sla := SLA{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Kind:      kind,
		DueAt:     dueAt,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := t.store.Create(ctx, sla); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create SLA")
	}
	return nil
}

// Resolve closes an open SLA, stopping future escalation. Called when the
// awaited action is confirmed (e.g. reviewer made first contact).
func (t *Tracker) Resolve(ctx context.Context, entityID string, kind Kind) error {
	sla, err := t.store.Find(ctx, entityID, kind)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no SLA for entity")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load SLA")
	}
	if sla.ResolvedAt != nil {
		return nil
	}
	now := requestcontext.Now(ctx)
	sla.ResolvedAt = &now
	if err := t.store.Update(ctx, sla); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to resolve SLA")
	}
	return nil
}

// SweepOverdue scans all open SLAs and, for each one past its deadline,
// increments the escalation level by exactly one, sends a nudge, and records
// the escalation in the entity's audit chain. Failures for one entity never
// stop the sweep from reaching the rest.
//
// Returns the SLAs that escalated this sweep.
func (t *Tracker) SweepOverdue(ctx context.Context) ([]SLA, error) {
	open, err := t.store.ListOpen(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list open SLAs")
	}

	now := requestcontext.Now(ctx)

	var (
		mu        sync.Mutex
		escalated []SLA
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.sweepWorkers)
	for _, sla := range open {
		if !sla.Overdue(now) {
			continue
		}
		g.Go(func() error {
			updated, err := t.escalate(gctx, sla)
			if err != nil {
				t.logSweepFailure(gctx, sla, err)
				return nil // isolate per-entity failures
			}
			mu.Lock()
			escalated = append(escalated, updated)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(escalated, func(i, j int) bool {
		return escalated[i].EntityID < escalated[j].EntityID
	})
	return escalated, nil
}

func (t *Tracker) escalate(ctx context.Context, sla SLA) (SLA, error) {
	sla.EscalationLevel++
	if err := t.store.Update(ctx, sla); err != nil {
		return SLA{}, fmt.Errorf("update escalation: %w", err)
	}
	if t.metrics != nil {
		t.metrics.SLAEscalations.Inc()
	}

	if t.auditor != nil {
		_, err := t.auditor.Append(ctx, sla.EntityID, audit.SystemActor, audit.ActionSLAEscalated, map[string]string{
			"kind":             string(sla.Kind),
			"escalation_level": fmt.Sprintf("%d", sla.EscalationLevel),
			"due_at":           sla.DueAt.UTC().Format(time.RFC3339),
		})
		if err != nil && t.logger != nil {
			t.logger.WarnContext(ctx, "failed to record SLA escalation in audit chain",
				"entity_id", sla.EntityID, "error", err)
		}
	}

	// Nudge is fire-and-forget: a mail failure never undoes the escalation.
	if t.dispatcher != nil && len(t.nudgeRecipients) > 0 {
		err := t.dispatcher.Send(ctx, notify.TemplateSLANudge, t.nudgeRecipients, map[string]string{
			"entity_id":        sla.EntityID,
			"kind":             string(sla.Kind),
			"escalation_level": fmt.Sprintf("%d", sla.EscalationLevel),
			"overdue_since":    sla.DueAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			if t.metrics != nil {
				t.metrics.NotificationFailures.Inc()
			}
			if t.logger != nil {
				t.logger.WarnContext(ctx, "SLA nudge failed",
					"entity_id", sla.EntityID, "error", err)
			}
		}
	}
	return sla, nil
}

func (t *Tracker) logSweepFailure(ctx context.Context, sla SLA, err error) {
	if t.logger != nil {
		t.logger.ErrorContext(ctx, "SLA sweep failed for entity",
			"entity_id", sla.EntityID,
			"kind", string(sla.Kind),
			"error", err,
		)
	}
}
