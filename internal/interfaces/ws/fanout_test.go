package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/domain/friendship"
	"glimpse/internal/infrastructure/pubsub"
	"glimpse/internal/shared/logger"
)

type fakeFriendshipRepo struct {
	friends map[uint][]friendship.Friend
	edges   map[[2]uint]*friendship.Friendship
}

func (r *fakeFriendshipRepo) Create(ctx context.Context, f *friendship.Friendship) error {
	return fmt.Errorf("not implemented")
}

func (r *fakeFriendshipRepo) GetByID(ctx context.Context, id uint) (*friendship.Friendship, error) {
	return nil, fmt.Errorf("not implemented")
}

func (r *fakeFriendshipRepo) Get(ctx context.Context, userID, friendID uint) (*friendship.Friendship, error) {
	if edge, ok := r.edges[[2]uint{userID, friendID}]; ok {
		return edge, nil
	}
	return nil, fmt.Errorf("friendship %d->%d not found", userID, friendID)
}

func (r *fakeFriendshipRepo) Update(ctx context.Context, f *friendship.Friendship) error {
	return fmt.Errorf("not implemented")
}

func (r *fakeFriendshipRepo) ListAccepted(ctx context.Context, userID uint) ([]friendship.Friend, error) {
	return r.friends[userID], nil
}

func (r *fakeFriendshipRepo) ListPending(ctx context.Context, userID uint) ([]*friendship.Friendship, error) {
	return nil, nil
}

func TestChannelPlanFiltersByPrivacy(t *testing.T) {
	repo := &fakeFriendshipRepo{
		friends: map[uint][]friendship.Friend{
			1: {
				{FriendID: 2, Username: "open", TabPrivacy: "everyone", OnlinePrivacy: "public"},
				{FriendID: 3, Username: "social", TabPrivacy: "friends_only", OnlinePrivacy: "public"},
				{FriendID: 4, Username: "picky", TabPrivacy: "close_friends_only", OnlinePrivacy: "public"},
				{FriendID: 5, Username: "distant", TabPrivacy: "close_friends_only", OnlinePrivacy: "public"},
				{FriendID: 6, Username: "ghost", TabPrivacy: "private", OnlinePrivacy: "private"},
			},
		},
		edges: map[[2]uint]*friendship.Friendship{
			// picky marked user 1 as a close friend, distant did not.
			{4, 1}: {UserID: 4, FriendID: 1, Status: friendship.StatusAccepted, CloseFriend: true},
			{5, 1}: {UserID: 5, FriendID: 1, Status: friendship.StatusAccepted, CloseFriend: false},
		},
	}

	f := NewFanout(repo, nil, logger.NewNop())
	channels, meta, err := f.channelPlan(context.Background(), 1)
	require.NoError(t, err)

	assert.Contains(t, channels, pubsub.PresenceChannel(2))
	assert.Contains(t, channels, pubsub.ActiveTabChannel(2))
	assert.Contains(t, channels, pubsub.AllTabsChannel(2))

	assert.Contains(t, channels, pubsub.ActiveTabChannel(3))
	assert.Contains(t, channels, pubsub.AllTabsChannel(3))

	// close_friends_only requires the friend's own edge back to carry the
	// close-friend flag.
	assert.Contains(t, channels, pubsub.ActiveTabChannel(4))
	assert.NotContains(t, channels, pubsub.ActiveTabChannel(5))
	assert.NotContains(t, channels, pubsub.AllTabsChannel(5))
	assert.Contains(t, channels, pubsub.PresenceChannel(5))

	// private tab privacy and private online privacy yield no channels.
	assert.NotContains(t, channels, pubsub.PresenceChannel(6))
	assert.NotContains(t, channels, pubsub.ActiveTabChannel(6))
	assert.NotContains(t, channels, pubsub.AllTabsChannel(6))

	assert.Equal(t, "open", meta[2].Username)
	assert.Equal(t, "picky", meta[4].Username)
}

func TestDispatchTranslatesPresenceEvents(t *testing.T) {
	f := NewFanout(&fakeFriendshipRepo{}, nil, logger.NewNop())
	client := testClient(1, 1)
	meta := map[uint]friendMeta{2: {Username: "ada", DisplayName: "Ada"}}

	payload, err := json.Marshal(pubsub.PresenceEvent{
		UserID:    2,
		Status:    pubsub.StatusOnline,
		Timestamp: 1700000000,
	})
	require.NoError(t, err)

	f.dispatch(client, pubsub.PresenceChannel(2), payload, meta)

	msg := <-client.send
	presence, ok := msg.(FriendPresenceMessage)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFriendOnline, presence.Type)
	assert.Equal(t, uint(2), presence.Data.UserID)
	assert.Equal(t, "ada", presence.Data.Username)
	assert.Equal(t, "Ada", presence.Data.DisplayName)
	assert.Equal(t, int64(1700000000), presence.Data.Timestamp)

	offline, err := json.Marshal(pubsub.PresenceEvent{
		UserID:    2,
		Status:    pubsub.StatusOffline,
		Timestamp: 1700000100,
	})
	require.NoError(t, err)

	f.dispatch(client, pubsub.PresenceChannel(2), offline, meta)
	msg = <-client.send
	presence, ok = msg.(FriendPresenceMessage)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFriendOffline, presence.Type)
}

func TestDispatchForwardsTabEventsVerbatim(t *testing.T) {
	f := NewFanout(&fakeFriendshipRepo{}, nil, logger.NewNop())
	client := testClient(1, 1)

	payload := []byte(`{"userId":2,"tab":{"domain":"example.com"}}`)
	f.dispatch(client, pubsub.ActiveTabChannel(2), payload, nil)

	msg := <-client.send
	tab, ok := msg.(FriendTabMessage)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFriendActiveTabUpdate, tab.Type)
	assert.Equal(t, uint(2), tab.FriendID)
	assert.JSONEq(t, string(payload), string(tab.Data))

	f.dispatch(client, pubsub.AllTabsChannel(2), payload, nil)
	msg = <-client.send
	tab, ok = msg.(FriendTabMessage)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFriendTabUpdate, tab.Type)
}

func TestDispatchNeverEchoesOwnEvents(t *testing.T) {
	f := NewFanout(&fakeFriendshipRepo{}, nil, logger.NewNop())
	client := testClient(1, 1)

	payload, err := json.Marshal(pubsub.PresenceEvent{UserID: 1, Status: pubsub.StatusOnline})
	require.NoError(t, err)

	f.dispatch(client, pubsub.PresenceChannel(1), payload, nil)
	f.dispatch(client, pubsub.ActiveTabChannel(1), []byte(`{}`), nil)

	assert.Empty(t, client.send)
}

func TestDispatchDropsMalformedEvents(t *testing.T) {
	f := NewFanout(&fakeFriendshipRepo{}, nil, logger.NewNop())
	client := testClient(1, 1)

	f.dispatch(client, pubsub.PresenceChannel(2), []byte("not json"), nil)
	f.dispatch(client, "unrelated:channel", []byte(`{}`), nil)

	assert.Empty(t, client.send)
}

func TestStartDeliversBusEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	bus := pubsub.NewRedisEventBus(redisClient, logger.NewNop())
	repo := &fakeFriendshipRepo{
		friends: map[uint][]friendship.Friend{
			1: {{FriendID: 2, Username: "ada", DisplayName: "Ada", TabPrivacy: "everyone", OnlinePrivacy: "public"}},
		},
	}

	f := NewFanout(repo, bus, logger.NewNop())
	client := testClient(1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Start(ctx, client) }()

	// Publish until the subscription is attached and something lands.
	require.Eventually(t, func() bool {
		require.NoError(t, bus.PublishPresence(ctx, 2, pubsub.StatusOnline))
		return len(client.send) > 0
	}, 2*time.Second, 20*time.Millisecond)

	msg := <-client.send
	presence, ok := msg.(FriendPresenceMessage)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFriendOnline, presence.Type)
	assert.Equal(t, uint(2), presence.Data.UserID)
	assert.Equal(t, "ada", presence.Data.Username)
}
