package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/shared/logger"
)

func TestTabStoreSession(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisTabStore(client, logger.NewNop())
	ctx := context.Background()

	sess, err := store.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, sess)

	start := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.SetSession(ctx, 1, "github.com", start))

	sess, err = store.GetSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "github.com", sess.Domain)
	assert.Equal(t, start, sess.StartTime)

	// Replacement is last-write-wins.
	later := start.Add(2 * time.Minute)
	require.NoError(t, store.SetSession(ctx, 1, "youtube.com", later))
	sess, err = store.GetSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "youtube.com", sess.Domain)
	assert.Equal(t, later, sess.StartTime)

	require.NoError(t, store.ClearSession(ctx, 1))
	sess, err = store.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestTabStoreAggregate(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisTabStore(client, logger.NewNop())
	ctx := context.Background()

	const day = "2025-06-01"

	agg, err := store.GetAggregate(ctx, 2, day)
	require.NoError(t, err)
	assert.Empty(t, agg)

	require.NoError(t, store.IncrementAggregate(ctx, 2, day, "github.com", 90))
	require.NoError(t, store.IncrementAggregate(ctx, 2, day, "github.com", 30))
	require.NoError(t, store.IncrementAggregate(ctx, 2, day, "news.ycombinator.com", 15))
	require.NoError(t, store.IncrementAggregate(ctx, 2, day, "", 50))
	require.NoError(t, store.IncrementAggregate(ctx, 2, day, "youtube.com", 0))

	agg, err = store.GetAggregate(ctx, 2, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"github.com":           120,
		"news.ycombinator.com": 15,
	}, agg)

	require.NoError(t, store.ClearAggregate(ctx, 2, day))
	agg, err = store.GetAggregate(ctx, 2, day)
	require.NoError(t, err)
	assert.Empty(t, agg)
}

func TestTabStoreSnapshots(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisTabStore(client, logger.NewNop())
	ctx := context.Background()

	tab, err := store.GetActiveTab(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, tab)

	active := TabInfo{URL: "https://github.com/golang/go", Title: "golang/go", Domain: "github.com"}
	require.NoError(t, store.SetActiveTab(ctx, 5, active))

	tab, err = store.GetActiveTab(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, tab)
	assert.Equal(t, active, *tab)

	tabs := []TabInfo{
		active,
		{URL: "https://news.ycombinator.com", Domain: "news.ycombinator.com"},
	}
	require.NoError(t, store.SetLatestTabs(ctx, 5, tabs))

	got, err := store.GetLatestTabs(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, tabs, got)

	require.NoError(t, store.ClearActiveTab(ctx, 5))
	require.NoError(t, store.ClearLatestTabs(ctx, 5))

	tab, err = store.GetActiveTab(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, tab)
	got, err = store.GetLatestTabs(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}
