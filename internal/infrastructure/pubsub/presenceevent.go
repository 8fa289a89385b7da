// Package pubsub carries live presence and tab events between connected
// sessions over Redis Pub/Sub. Delivery is best effort: a missed message is
// acceptable because durable state is reconciled by the flush path
// independently.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/goroutine"
	"glimpse/internal/shared/logger"
)

const (
	presenceChannelPrefix  = "glimpse:presence:"
	activeTabChannelPrefix = "glimpse:tab:active:"
	allTabsChannelPrefix   = "glimpse:tab:all:"
)

// PresenceStatus is the live online/offline state carried by presence events.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEvent announces a user's online/offline transition.
type PresenceEvent struct {
	UserID    uint           `json:"user_id"`
	Status    PresenceStatus `json:"status"`
	Timestamp int64          `json:"timestamp"`
}

// ActiveTabEvent announces a user's active tab change.
type ActiveTabEvent struct {
	UserID    uint          `json:"user_id"`
	Tab       cache.TabInfo `json:"tab"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AllTabsEvent announces a full refresh of a user's open tabs.
type AllTabsEvent struct {
	UserID    uint            `json:"user_id"`
	Tabs      []cache.TabInfo `json:"tabs"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PresenceChannel returns the channel carrying a user's presence events.
func PresenceChannel(userID uint) string {
	return fmt.Sprintf("%s%d", presenceChannelPrefix, userID)
}

// ActiveTabChannel returns the channel carrying a user's active-tab events.
func ActiveTabChannel(userID uint) string {
	return fmt.Sprintf("%s%d", activeTabChannelPrefix, userID)
}

// AllTabsChannel returns the channel carrying a user's all-tabs events.
func AllTabsChannel(userID uint) string {
	return fmt.Sprintf("%s%d", allTabsChannelPrefix, userID)
}

// UserIDFromChannel extracts the publishing user's id from any of the three
// channel forms. Returns ok=false for unknown channels.
func UserIDFromChannel(channel string) (userID uint, ok bool) {
	for _, prefix := range []string{activeTabChannelPrefix, allTabsChannelPrefix, presenceChannelPrefix} {
		if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
			var id uint64
			if _, err := fmt.Sscanf(channel[len(prefix):], "%d", &id); err != nil {
				return 0, false
			}
			return uint(id), true
		}
	}
	return 0, false
}

// EventPublisher publishes live presence and tab events on per-user channels.
type EventPublisher interface {
	PublishPresence(ctx context.Context, userID uint, status PresenceStatus) error
	PublishActiveTab(ctx context.Context, userID uint, tab cache.TabInfo) error
	PublishAllTabs(ctx context.Context, userID uint, tabs []cache.TabInfo) error
}

// EventSubscriber consumes events from an explicit channel set. The set is
// fixed for the lifetime of the subscription; callers cancel ctx to stop.
type EventSubscriber interface {
	// Subscribe blocks, invoking handler for every message on any of the
	// given channels, reconnecting with backoff until ctx is cancelled.
	Subscribe(ctx context.Context, channels []string, handler func(channel, payload string)) error
}

// EventBus combines publisher and subscriber interfaces.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// RedisEventBus implements EventBus using Redis Pub/Sub.
type RedisEventBus struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisEventBus creates a new Redis-based presence event bus.
func NewRedisEventBus(client *redis.Client, logger logger.Interface) *RedisEventBus {
	return &RedisEventBus{
		client: client,
		logger: logger,
	}
}

// PublishPresence publishes an online/offline transition for userID.
func (b *RedisEventBus) PublishPresence(ctx context.Context, userID uint, status PresenceStatus) error {
	event := PresenceEvent{
		UserID:    userID,
		Status:    status,
		Timestamp: biztime.NowUTC().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	if err := b.client.Publish(ctx, PresenceChannel(userID), data).Err(); err != nil {
		b.logger.Errorw("failed to publish presence event",
			"user_id", userID,
			"status", status,
			"error", err,
		)
		return fmt.Errorf("failed to publish presence event: %w", err)
	}

	b.logger.Debugw("presence event published", "user_id", userID, "status", status)
	return nil
}

// PublishActiveTab publishes an active-tab change for userID.
func (b *RedisEventBus) PublishActiveTab(ctx context.Context, userID uint, tab cache.TabInfo) error {
	event := ActiveTabEvent{
		UserID:    userID,
		Tab:       tab,
		UpdatedAt: biztime.NowUTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal active tab event: %w", err)
	}

	if err := b.client.Publish(ctx, ActiveTabChannel(userID), data).Err(); err != nil {
		b.logger.Errorw("failed to publish active tab event",
			"user_id", userID,
			"domain", tab.Domain,
			"error", err,
		)
		return fmt.Errorf("failed to publish active tab event: %w", err)
	}

	b.logger.Debugw("active tab event published", "user_id", userID, "domain", tab.Domain)
	return nil
}

// PublishAllTabs publishes a full tab-list refresh for userID.
func (b *RedisEventBus) PublishAllTabs(ctx context.Context, userID uint, tabs []cache.TabInfo) error {
	event := AllTabsEvent{
		UserID:    userID,
		Tabs:      tabs,
		UpdatedAt: biztime.NowUTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal all tabs event: %w", err)
	}

	if err := b.client.Publish(ctx, AllTabsChannel(userID), data).Err(); err != nil {
		b.logger.Errorw("failed to publish all tabs event",
			"user_id", userID,
			"tabs_count", len(tabs),
			"error", err,
		)
		return fmt.Errorf("failed to publish all tabs event: %w", err)
	}

	b.logger.Debugw("all tabs event published", "user_id", userID, "tabs_count", len(tabs))
	return nil
}

// Subscribe consumes messages on the given channels until ctx is cancelled,
// reconnecting with exponential backoff on subscription failures.
func (b *RedisEventBus) Subscribe(ctx context.Context, channels []string, handler func(channel, payload string)) error {
	if len(channels) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		err := b.subscribe(ctx, channels, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warnw("presence subscription disconnected, reconnecting",
			"channels_count", len(channels),
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (b *RedisEventBus) subscribe(ctx context.Context, channels []string, handler func(channel, payload string)) error {
	pubsub := b.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to presence channels: %w", err)
	}

	b.logger.Debugw("subscribed to presence channels", "channels_count", len(channels))

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("presence subscription channel closed")
				return nil
			}

			goroutine.SafeGo(b.logger, "presence-event-handler", func() {
				handler(msg.Channel, msg.Payload)
			})
		}
	}
}
