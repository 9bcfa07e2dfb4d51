package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/requestcontext"
)

func TestAppendBuildsVerifiableChain(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	log := NewLog(store)

	const entityID = "req-chain-1"
	for i := 0; i < 10; i++ {
		_, err := log.Append(ctx, entityID, "u1", ActionStatusAdvanced, map[string]string{
			"step": fmt.Sprintf("%d", i),
		})
		require.NoError(t, err)
	}

	entries, err := log.Read(ctx, entityID)
	require.NoError(t, err)
	require.Len(t, entries, 10)

	assert.Empty(t, entries[0].PrevHash, "first entry anchors the chain")
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].CurrHash, entries[i].PrevHash)
	}

	ok, err := log.Verify(ctx, entityID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	log := NewLog(store)

	const entityID = "req-tamper-1"
	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, entityID, "u1", ActionTagsUpdated, map[string]string{"tags": "a,b"})
		require.NoError(t, err)
	}

	ok, err := log.Verify(ctx, entityID)
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, store.Tamper(entityID, 2, func(e *Entry) {
		e.Metadata["tags"] = "a,b,doctored"
	}))

	ok, err = log.Verify(ctx, entityID)
	require.NoError(t, err)
	assert.False(t, ok, "mutated metadata must break verification")
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	log := NewLog(store)

	const entityID = "req-tamper-2"
	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, entityID, "u1", ActionTagsUpdated, nil)
		require.NoError(t, err)
	}

	// Rewrite one entry wholesale, including a self-consistent hash. The
	// successor's PrevHash no longer matches, so the chain still fails.
	require.True(t, store.Tamper(entityID, 1, func(e *Entry) {
		e.Actor = "intruder"
		e.CurrHash = Recompute(*e)
	}))

	ok, err := log.Verify(ctx, entityID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComputeHashDeterminism(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	metadata := map[string]string{"reviewer": "u1", "window_hours": "48"}

	h1 := ComputeHash("req-1", ActionReviewerAssigned, "admin", metadata, "prev", ts)
	h2 := ComputeHash("req-1", ActionReviewerAssigned, "admin", metadata, "prev", ts)
	assert.Equal(t, h1, h2, "same tuple must hash identically")

	h3 := ComputeHash("req-1", ActionReviewerAssigned, "admin", metadata, "other-prev", ts)
	assert.NotEqual(t, h1, h3)

	h4 := ComputeHash("req-1", ActionReviewerAssigned, "admin",
		map[string]string{"window_hours": "48", "reviewer": "u1"}, "prev", ts)
	assert.Equal(t, h1, h4, "metadata key order must not change the hash")
}

func TestConcurrentAppendsSameEntityNeverFork(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	log := NewLog(store)

	const entityID = "req-concurrent-1"
	const writers = 32

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := log.Append(ctx, entityID, fmt.Sprintf("u%d", i), ActionTagsUpdated, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := log.Read(ctx, entityID)
	require.NoError(t, err)
	require.Len(t, entries, writers)

	// No two entries share a parent: a fork would show a duplicate PrevHash.
	seen := make(map[string]bool, writers)
	for _, e := range entries {
		require.False(t, seen[e.PrevHash], "duplicate PrevHash %q means the chain forked", e.PrevHash)
		seen[e.PrevHash] = true
	}

	ok, err := log.Verify(ctx, entityID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentAppendsDifferentEntities(t *testing.T) {
	ctx := context.Background()
	log := NewLog(NewInMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		entityID := fmt.Sprintf("req-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := log.Append(ctx, entityID, "u1", ActionTagsUpdated, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		ok, err := log.Verify(ctx, fmt.Sprintf("req-%d", i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestAppendUsesRequestScopedTime(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)

	log := NewLog(NewInMemoryStore())
	entry, err := log.Append(ctx, "req-ts-1", "u1", ActionRequestSubmitted, nil)
	require.NoError(t, err)
	assert.Equal(t, fixed, entry.Timestamp)
}

func TestAppendDefaultsActorToSystem(t *testing.T) {
	log := NewLog(NewInMemoryStore())
	entry, err := log.Append(context.Background(), "req-actor-1", "", ActionSLAEscalated, nil)
	require.NoError(t, err)
	assert.Equal(t, SystemActor, entry.Actor)
}

func TestAppendRejectsEmptyEntityID(t *testing.T) {
	log := NewLog(NewInMemoryStore())
	_, err := log.Append(context.Background(), "", "u1", ActionTagsUpdated, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
