package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(userID, sessionID uint) *Client {
	return &Client{
		UserID:    userID,
		SessionID: sessionID,
		send:      make(chan any, sendQueueSize),
		done:      make(chan struct{}),
	}
}

func TestRegistryReplacesConnectionOnReconnect(t *testing.T) {
	r := NewRegistry()

	first := testClient(1, 10)
	second := testClient(1, 11)

	assert.Nil(t, r.Register(first))
	displaced := r.Register(second)
	require.NotNil(t, displaced)
	assert.Same(t, first, displaced)

	current, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, current)

	// The displaced connection's teardown must not evict its replacement.
	r.Unregister(first)
	current, ok = r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, current)

	r.Unregister(second)
	_, ok = r.Lookup(1)
	assert.False(t, ok)
}

func TestRegistrySessionID(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, uint(0), r.SessionID(7))

	client := testClient(7, 42)
	r.Register(client)
	assert.Equal(t, uint(42), r.SessionID(7))

	r.Unregister(client)
	assert.Equal(t, uint(0), r.SessionID(7))
}

func TestClientEnqueueDropsWhenClosed(t *testing.T) {
	client := testClient(1, 1)

	assert.True(t, client.Enqueue("hello"))

	close(client.done)
	assert.False(t, client.Enqueue("dropped"))
}

func TestClientEnqueueDropsWhenQueueFull(t *testing.T) {
	client := testClient(1, 1)

	for i := 0; i < sendQueueSize; i++ {
		require.True(t, client.Enqueue(i))
	}
	assert.False(t, client.Enqueue("overflow"))
}
