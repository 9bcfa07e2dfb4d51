package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilotdesk/pkg/platform/sentinel"
)

func memoryEntry(entityID, prevHash string) Entry {
	ts := CanonicalTime(time.Now())
	e := Entry{
		ID:        entityID + "-" + prevHash,
		EntityID:  entityID,
		Action:    ActionTagsUpdated,
		Actor:     "u1",
		Metadata:  map[string]string{},
		Timestamp: ts,
		PrevHash:  prevHash,
	}
	e.CurrHash = Recompute(e)
	return e
}

func TestInMemoryStoreHeadOfEmptyChain(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Head(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreRejectsStaleHead(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first := memoryEntry("req-1", "")
	require.NoError(t, store.Append(ctx, first))

	// A second "first" entry raced and still claims an empty chain.
	stale := memoryEntry("req-1", "")
	err := store.Append(ctx, stale)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	next := memoryEntry("req-1", first.CurrHash)
	assert.NoError(t, store.Append(ctx, next))
}

func TestInMemoryStoreCopiesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	entry := memoryEntry("req-2", "")
	entry.Metadata = map[string]string{"k": "v"}
	entry.CurrHash = Recompute(entry)
	require.NoError(t, store.Append(ctx, entry))

	entries, err := store.List(ctx, "req-2")
	require.NoError(t, err)
	entries[0].Metadata["k"] = "mutated"

	again, err := store.List(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, "v", again[0].Metadata["k"], "stored history must be immutable through reads")
}
