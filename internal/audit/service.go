package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"pilotdesk/internal/platform/metrics"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/requestcontext"
)

// Mirror fans appended entries out to an external sink (Kafka). Publishing is
// fire-and-forget: the chain in the store is the source of truth.
type Mirror interface {
	Publish(ctx context.Context, entry Entry)
}

// Log is the append-only, hash-chained event log. It owns the single most
// important invariant in the system: for one entity, appends are linearized,
// so no two entries ever share a PrevHash.
type Log struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	mirror  Mirror

	// locks serializes the read-head/compute/append critical section per
	// entity id. Different entities append concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(l *Log)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

func WithMirror(mirror Mirror) Option {
	return func(l *Log) { l.mirror = mirror }
}

func NewLog(store Store, opts ...Option) *Log {
	l := &Log{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes the next entry of an entity's chain and returns it.
//
// Safe to call concurrently for different entity ids; concurrent appends for
// the same id are serialized here. If the store still detects a stale head
// (another process appended), the append fails with CodeConflict rather than
// forking the chain.
func (l *Log) Append(ctx context.Context, entityID, actor string, action Action, metadata map[string]string) (Entry, error) {
	if entityID == "" {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	if actor == "" {
		actor = SystemActor
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	lock := l.entityLock(entityID)
	lock.Lock()
	defer lock.Unlock()

	prevHash := ""
	head, err := l.store.Head(ctx, entityID)
	switch {
	case err == nil:
		prevHash = head.CurrHash
	case errors.Is(err, sentinel.ErrNotFound):
		// First entry of the chain.
	default:
		return Entry{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read chain head")
	}

	ts := CanonicalTime(requestcontext.Now(ctx))
	entry := Entry{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Action:    action,
		Actor:     actor,
		Metadata:  metadata,
		Timestamp: ts,
		PrevHash:  prevHash,
	}
	entry.CurrHash = ComputeHash(entityID, action, actor, metadata, prevHash, ts)

	if err := l.store.Append(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Entry{}, dErrors.Wrap(err, dErrors.CodeConflict, "chain head moved during append")
		}
		return Entry{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to append audit entry")
	}

	if l.metrics != nil {
		l.metrics.AuditEntriesAppended.Inc()
	}
	if l.mirror != nil {
		l.mirror.Publish(ctx, entry)
	}
	return entry, nil
}

// Read returns an entity's entries oldest-first.
func (l *Log) Read(ctx context.Context, entityID string) ([]Entry, error) {
	entries, err := l.store.List(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read audit trail")
	}
	return entries, nil
}

// Verify recomputes every entry's hash and confirms the chain links
// head-to-tail. Returns false when any stored entry no longer matches its
// recorded hash or the links are broken.
func (l *Log) Verify(ctx context.Context, entityID string) (bool, error) {
	entries, err := l.store.List(ctx, entityID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read audit trail")
	}

	prevHash := ""
	for i, e := range entries {
		if e.PrevHash != prevHash {
			l.reportTamper(ctx, entityID, i, "broken link")
			return false, nil
		}
		if Recompute(e) != e.CurrHash {
			l.reportTamper(ctx, entityID, i, "content hash mismatch")
			return false, nil
		}
		prevHash = e.CurrHash
	}
	return true, nil
}

func (l *Log) reportTamper(ctx context.Context, entityID string, index int, reason string) {
	if l.metrics != nil {
		l.metrics.ChainVerifyFailures.Inc()
	}
	if l.logger != nil {
		l.logger.ErrorContext(ctx, "audit chain verification failed",
			"entity_id", entityID,
			"entry_index", index,
			"reason", reason,
		)
	}
}

func (l *Log) entityLock(entityID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[entityID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[entityID] = lock
	}
	return lock
}
