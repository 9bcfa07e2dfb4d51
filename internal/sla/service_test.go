package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/notify"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/requestcontext"
)

func TestSweepEscalatesOverdueOncePerSweep(t *testing.T) {
	store := NewInMemoryStore()
	recorder := notify.NewRecorder()
	auditLog := audit.NewLog(audit.NewInMemoryStore())
	tracker := NewTracker(store,
		WithDispatcher(recorder),
		WithAuditor(auditLog),
		WithNudgeRecipients([]string{"ops@example.org"}),
	)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	// Overdue by one second at sweep time.
	require.NoError(t, tracker.Set(ctx, "req-1", base.Add(-time.Second), KindInitialContact))
	// Not due for another hour.
	require.NoError(t, tracker.Set(ctx, "req-2", base.Add(time.Hour), KindInitialContact))

	escalated, err := tracker.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, "req-1", escalated[0].EntityID)
	assert.Equal(t, 1, escalated[0].EscalationLevel)
	assert.True(t, escalated[0].Overdue(base))

	// A second sweep increments by exactly one more, regardless of how far
	// past the deadline the clock is.
	later := requestcontext.WithTime(context.Background(), base.Add(72*time.Hour))
	escalated, err = tracker.SweepOverdue(later)
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, 2, escalated[0].EscalationLevel)

	deliveries := recorder.Deliveries()
	require.Len(t, deliveries, 2)
	assert.Equal(t, notify.TemplateSLANudge, deliveries[0].Template)
	assert.Equal(t, "req-1", deliveries[0].Vars["entity_id"])

	// Each escalation is recorded on the entity's audit chain.
	entries, err := auditLog.Read(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionSLAEscalated, entries[0].Action)
	assert.Equal(t, audit.SystemActor, entries[0].Actor)
	assert.Equal(t, "2", entries[1].Metadata["escalation_level"])
}

func TestSweepSkipsResolved(t *testing.T) {
	store := NewInMemoryStore()
	tracker := NewTracker(store)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	require.NoError(t, tracker.Set(ctx, "req-1", base.Add(-time.Minute), KindInitialContact))
	require.NoError(t, tracker.Resolve(ctx, "req-1", KindInitialContact))

	escalated, err := tracker.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, escalated)

	sla, err := store.Find(ctx, "req-1", KindInitialContact)
	require.NoError(t, err)
	assert.NotNil(t, sla.ResolvedAt)
	assert.Equal(t, 0, sla.EscalationLevel)
}

func TestSweepContinuesPastNotificationFailure(t *testing.T) {
	store := NewInMemoryStore()
	recorder := notify.NewRecorder()
	recorder.Err = assert.AnError
	tracker := NewTracker(store,
		WithDispatcher(recorder),
		WithNudgeRecipients([]string{"ops@example.org"}),
	)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	require.NoError(t, tracker.Set(ctx, "req-1", base.Add(-time.Minute), KindInitialContact))
	require.NoError(t, tracker.Set(ctx, "req-2", base.Add(-time.Minute), KindInitialContact))

	escalated, err := tracker.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, escalated, 2, "a failed nudge must not undo or skip escalations")
	assert.Equal(t, 1, escalated[0].EscalationLevel)
	assert.Equal(t, 1, escalated[1].EscalationLevel)
}

func TestResolveUnknownSLA(t *testing.T) {
	tracker := NewTracker(NewInMemoryStore())
	err := tracker.Resolve(context.Background(), "missing", KindInitialContact)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestResolveIsIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	tracker := NewTracker(store)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	require.NoError(t, tracker.Set(ctx, "req-1", base.Add(time.Hour), KindInitialContact))
	require.NoError(t, tracker.Resolve(ctx, "req-1", KindInitialContact))

	first, err := store.Find(ctx, "req-1", KindInitialContact)
	require.NoError(t, err)

	later := requestcontext.WithTime(context.Background(), base.Add(time.Hour))
	require.NoError(t, tracker.Resolve(later, "req-1", KindInitialContact))

	second, err := store.Find(ctx, "req-1", KindInitialContact)
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedAt, second.ResolvedAt, "resolving twice keeps the first resolution time")
}
