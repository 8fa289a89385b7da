package ws

import (
	"context"
	"encoding/json"

	"glimpse/internal/domain/friendship"
	"glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/pubsub"
	"glimpse/internal/shared/logger"
)

// friendMeta is the profile snapshot captured at subscribe time, used to
// enrich presence events without a database read per event.
type friendMeta struct {
	Username    string
	DisplayName string
}

// Fanout subscribes an authenticated connection to its friends' live
// channels and forwards events as outbound messages. The channel set is
// computed once per connection from the friend list and each friend's
// privacy settings; privacy changes take effect on the next connect.
type Fanout struct {
	friendships friendship.Repository
	bus         pubsub.EventSubscriber
	logger      logger.Interface
}

func NewFanout(friendships friendship.Repository, bus pubsub.EventSubscriber, log logger.Interface) *Fanout {
	return &Fanout{
		friendships: friendships,
		bus:         bus,
		logger:      log.Named("ws.fanout"),
	}
}

// Start computes the client's channel plan and runs the subscription until
// ctx is cancelled. It blocks; callers run it on its own goroutine.
func (f *Fanout) Start(ctx context.Context, client *Client) error {
	channels, meta, err := f.channelPlan(ctx, client.UserID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		f.logger.Debugw("no friend channels to subscribe", "user_id", client.UserID)
		<-ctx.Done()
		return nil
	}

	f.logger.Debugw("subscribing to friend channels",
		"user_id", client.UserID,
		"channels", len(channels),
	)

	return f.bus.Subscribe(ctx, channels, func(channel, payload string) {
		f.dispatch(client, channel, []byte(payload), meta)
	})
}

// channelPlan builds the Redis channel list for one connection. Tab channels
// are gated by each friend's tab privacy, presence channels by their online
// privacy. A friend with close_friends_only tab privacy is only visible when
// their own edge back to this user carries the close-friend flag.
func (f *Fanout) channelPlan(ctx context.Context, userID uint) ([]string, map[uint]friendMeta, error) {
	friends, err := f.friendships.ListAccepted(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	channels := make([]string, 0, len(friends)*3)
	meta := make(map[uint]friendMeta, len(friends))
	for _, fr := range friends {
		meta[fr.FriendID] = friendMeta{Username: fr.Username, DisplayName: fr.DisplayName}

		if fr.OnlinePrivacy == string(user.OnlinePrivacyPublic) {
			channels = append(channels, pubsub.PresenceChannel(fr.FriendID))
		}

		if f.tabsVisible(ctx, userID, fr) {
			channels = append(channels,
				pubsub.ActiveTabChannel(fr.FriendID),
				pubsub.AllTabsChannel(fr.FriendID),
			)
		}
	}
	return channels, meta, nil
}

func (f *Fanout) tabsVisible(ctx context.Context, userID uint, fr friendship.Friend) bool {
	switch user.TabPrivacy(fr.TabPrivacy) {
	case user.TabPrivacyEveryone, user.TabPrivacyFriendsOnly:
		return true
	case user.TabPrivacyCloseFriendsOnly:
		// The friend's own edge back to this user decides closeness.
		reverse, err := f.friendships.Get(ctx, fr.FriendID, userID)
		if err != nil {
			f.logger.Warnw("reverse friendship lookup failed",
				"user_id", userID,
				"friend_id", fr.FriendID,
				"error", err,
			)
			return false
		}
		return reverse.CloseFriend
	default:
		return false
	}
}

// dispatch translates one bus event into an outbound message. Events about
// the receiving user are never echoed back to them.
func (f *Fanout) dispatch(client *Client, channel string, payload []byte, meta map[uint]friendMeta) {
	friendID, ok := pubsub.UserIDFromChannel(channel)
	if !ok || friendID == client.UserID {
		return
	}

	switch channel {
	case pubsub.PresenceChannel(friendID):
		var event pubsub.PresenceEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			f.logger.Warnw("malformed presence event", "channel", channel, "error", err)
			return
		}
		msgType := MsgTypeFriendOnline
		if event.Status == pubsub.StatusOffline {
			msgType = MsgTypeFriendOffline
		}
		m := meta[friendID]
		client.Enqueue(FriendPresenceMessage{
			Type: msgType,
			Data: FriendPresenceData{
				UserID:      friendID,
				Username:    m.Username,
				DisplayName: m.DisplayName,
				Timestamp:   event.Timestamp,
			},
		})
	case pubsub.ActiveTabChannel(friendID):
		client.Enqueue(FriendTabMessage{
			Type:     MsgTypeFriendActiveTabUpdate,
			FriendID: friendID,
			Data:     json.RawMessage(payload),
		})
	case pubsub.AllTabsChannel(friendID):
		client.Enqueue(FriendTabMessage{
			Type:     MsgTypeFriendTabUpdate,
			FriendID: friendID,
			Data:     json.RawMessage(payload),
		})
	}
}
