package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/shared/logger"
)

func TestChannelNaming(t *testing.T) {
	assert.Equal(t, "glimpse:presence:42", PresenceChannel(42))
	assert.Equal(t, "glimpse:tab:active:42", ActiveTabChannel(42))
	assert.Equal(t, "glimpse:tab:all:42", AllTabsChannel(42))

	for _, channel := range []string{PresenceChannel(42), ActiveTabChannel(42), AllTabsChannel(42)} {
		id, ok := UserIDFromChannel(channel)
		require.True(t, ok, channel)
		assert.Equal(t, uint(42), id)
	}

	_, ok := UserIDFromChannel("glimpse:unrelated:42")
	assert.False(t, ok)
	_, ok = UserIDFromChannel("glimpse:presence:not-a-number")
	assert.False(t, ok)
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisEventBus(client, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	go func() {
		_ = bus.Subscribe(ctx, []string{PresenceChannel(9)}, func(channel, payload string) {
			received <- payload
		})
	}()

	// Give the subscriber a moment to attach before publishing.
	require.Eventually(t, func() bool {
		return bus.PublishPresence(ctx, 9, StatusOnline) == nil && len(received) > 0
	}, 2*time.Second, 20*time.Millisecond)

	var event PresenceEvent
	require.NoError(t, json.Unmarshal([]byte(<-received), &event))
	assert.Equal(t, uint(9), event.UserID)
	assert.Equal(t, StatusOnline, event.Status)
	assert.NotZero(t, event.Timestamp)
}

func TestSubscribeOnlyDeliversSubscribedChannels(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisEventBus(client, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []string
	go func() {
		_ = bus.Subscribe(ctx, []string{ActiveTabChannel(1)}, func(channel, payload string) {
			mu.Lock()
			received = append(received, channel)
			mu.Unlock()
		})
	}()

	tab := cache.TabInfo{URL: "https://github.com", Domain: "github.com"}
	require.Eventually(t, func() bool {
		require.NoError(t, bus.PublishActiveTab(ctx, 1, tab))
		require.NoError(t, bus.PublishActiveTab(ctx, 2, tab))
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 2*time.Second, 20*time.Millisecond)

	// Everything that arrived must be user 1's channel.
	mu.Lock()
	defer mu.Unlock()
	for _, channel := range received {
		assert.Equal(t, ActiveTabChannel(1), channel)
	}
}
