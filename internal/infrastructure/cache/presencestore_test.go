package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/shared/logger"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestPresenceStoreOnlineFlag(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisPresenceStore(client, logger.NewNop())
	ctx := context.Background()

	online, err := store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, store.MarkOnline(ctx, 1, 60*time.Second))
	online, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)

	// TTL expiry means offline, no explicit delete needed.
	mr.FastForward(61 * time.Second)
	online, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, store.MarkOnline(ctx, 1, 15*time.Second))
	require.NoError(t, store.MarkOffline(ctx, 1))
	online, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresenceStoreSessionMarker(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisPresenceStore(client, logger.NewNop())
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.ArmSessionMarker(ctx, 7, start))

	// Reading is non-destructive: the marker stays until explicitly cleared.
	got, ok, err := store.GetSessionMarker(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start, got)

	got, ok, err = store.GetSessionMarker(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start, got)

	require.NoError(t, store.ClearSessionMarker(ctx, 7))
	_, ok, err = store.GetSessionMarker(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an absent marker is a no-op.
	require.NoError(t, store.ClearSessionMarker(ctx, 7))
}

func TestPresenceStoreDropsCorruptMarker(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisPresenceStore(client, logger.NewNop())
	ctx := context.Background()

	mr.Set("glimpse:presence:sess:9", "not-a-number")

	_, ok, err := store.GetSessionMarker(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	// The corrupt marker is dropped, not left to fail every read.
	assert.False(t, mr.Exists("glimpse:presence:sess:9"))
}

func TestPresenceStoreAggregate(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisPresenceStore(client, logger.NewNop())
	ctx := context.Background()

	const day = "2025-06-01"

	seconds, err := store.GetAggregate(ctx, 3, day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seconds)

	require.NoError(t, store.IncrementAggregate(ctx, 3, day, 120))
	require.NoError(t, store.IncrementAggregate(ctx, 3, day, 45))
	// Non-positive increments are dropped.
	require.NoError(t, store.IncrementAggregate(ctx, 3, day, 0))
	require.NoError(t, store.IncrementAggregate(ctx, 3, day, -10))

	seconds, err = store.GetAggregate(ctx, 3, day)
	require.NoError(t, err)
	assert.Equal(t, int64(165), seconds)

	// Different day accumulates independently.
	require.NoError(t, store.IncrementAggregate(ctx, 3, "2025-06-02", 30))
	seconds, err = store.GetAggregate(ctx, 3, day)
	require.NoError(t, err)
	assert.Equal(t, int64(165), seconds)

	require.NoError(t, store.ClearAggregate(ctx, 3, day))
	seconds, err = store.GetAggregate(ctx, 3, day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seconds)

	// Clearing an absent key is a no-op.
	require.NoError(t, store.ClearAggregate(ctx, 3, day))
}
