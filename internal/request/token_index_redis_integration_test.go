//go:build integration

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilotdesk/internal/request"
	id "pilotdesk/pkg/domain"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/testutil/containers"
)

func TestRedisTokenIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redis := containers.NewRedisContainer(t)
	index := request.NewRedisTokenIndex(redis.Client)
	ctx := context.Background()

	requestID := id.NewRequestID()
	require.NoError(t, index.Put(ctx, "tok-redis-1", requestID, time.Minute))

	resolved, err := index.Lookup(ctx, "tok-redis-1")
	require.NoError(t, err)
	assert.Equal(t, requestID, resolved)

	_, err = index.Lookup(ctx, "tok-unknown")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisTokenIndexExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redis := containers.NewRedisContainer(t)
	index := request.NewRedisTokenIndex(redis.Client)
	ctx := context.Background()

	require.NoError(t, index.Put(ctx, "tok-redis-2", id.NewRequestID(), 50*time.Millisecond))
	time.Sleep(200 * time.Millisecond)

	_, err := index.Lookup(ctx, "tok-redis-2")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "redis expires the key with the link TTL")
}
