package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"glimpse/internal/shared/logger"
)

const (
	// Key format: glimpse:presence:{userID}
	// Value "online" with a TTL; key absent means the user is offline.
	presenceFlagKeyPrefix = "glimpse:presence:"

	// Key format: glimpse:presence:sess:{userID}
	// Value is the session start time as unix seconds. Drained (GETDEL) on
	// flush and re-armed while the presence flag is still present.
	presenceMarkerKeyPrefix = "glimpse:presence:sess:"

	// Key format: glimpse:presence:agg:{userID}:{day}
	// Integer seconds accumulated but not yet committed to the durable store.
	presenceAggKeyPrefix = "glimpse:presence:agg:"

	presenceFlagValue = "online"

	// Aggregate keys outlive the day they belong to so a crashed worker can
	// still drain them on the next cycle, but never leak forever.
	presenceAggTTL = 48 * time.Hour

	// Markers are self-healing: one that survives past every valid flush
	// window is rejected by the validity gate anyway, so the TTL is only a
	// leak guard.
	presenceMarkerTTL = 48 * time.Hour
)

// PresenceStore holds the ephemeral presence state for a user: the online
// flag, the in-progress session marker, and the per-day running aggregate.
type PresenceStore interface {
	// MarkOnline sets the presence flag with the given TTL.
	MarkOnline(ctx context.Context, userID uint, ttl time.Duration) error

	// MarkOffline deletes the presence flag immediately.
	MarkOffline(ctx context.Context, userID uint) error

	// IsOnline reports whether the presence flag is currently present.
	IsOnline(ctx context.Context, userID uint) (bool, error)

	// ArmSessionMarker records startTime as the beginning of the current
	// measurement interval, replacing any existing marker.
	ArmSessionMarker(ctx context.Context, userID uint, startTime time.Time) error

	// GetSessionMarker reads the session marker without consuming it.
	// Returns ok=false when no marker is armed.
	GetSessionMarker(ctx context.Context, userID uint) (startTime time.Time, ok bool, err error)

	// ClearSessionMarker removes the session marker. Clearing an absent
	// marker is a no-op.
	ClearSessionMarker(ctx context.Context, userID uint) error

	// IncrementAggregate adds seconds to the user's running total for day.
	IncrementAggregate(ctx context.Context, userID uint, day string, seconds int64) error

	// GetAggregate returns the accumulated seconds for the given day, 0 when
	// nothing has been accumulated.
	GetAggregate(ctx context.Context, userID uint, day string) (int64, error)

	// ClearAggregate deletes the aggregate key for the given day. Deleting a
	// key that no longer exists is a no-op.
	ClearAggregate(ctx context.Context, userID uint, day string) error
}

// RedisPresenceStore implements PresenceStore using Redis.
type RedisPresenceStore struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisPresenceStore creates a new RedisPresenceStore instance.
func NewRedisPresenceStore(client *redis.Client, logger logger.Interface) PresenceStore {
	return &RedisPresenceStore{
		client: client,
		logger: logger,
	}
}

func presenceFlagKey(userID uint) string {
	return fmt.Sprintf("%s%d", presenceFlagKeyPrefix, userID)
}

func presenceMarkerKey(userID uint) string {
	return fmt.Sprintf("%s%d", presenceMarkerKeyPrefix, userID)
}

func presenceAggKey(userID uint, day string) string {
	return fmt.Sprintf("%s%d:%s", presenceAggKeyPrefix, userID, day)
}

// MarkOnline sets the presence flag with the given TTL.
func (s *RedisPresenceStore) MarkOnline(ctx context.Context, userID uint, ttl time.Duration) error {
	if err := s.client.Set(ctx, presenceFlagKey(userID), presenceFlagValue, ttl).Err(); err != nil {
		s.logger.Errorw("failed to set presence flag", "user_id", userID, "ttl", ttl, "error", err)
		return fmt.Errorf("failed to set presence flag: %w", err)
	}
	return nil
}

// MarkOffline deletes the presence flag immediately.
func (s *RedisPresenceStore) MarkOffline(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, presenceFlagKey(userID)).Err(); err != nil {
		s.logger.Errorw("failed to delete presence flag", "user_id", userID, "error", err)
		return fmt.Errorf("failed to delete presence flag: %w", err)
	}
	return nil
}

// IsOnline reports whether the presence flag is currently present.
func (s *RedisPresenceStore) IsOnline(ctx context.Context, userID uint) (bool, error) {
	val, err := s.client.Get(ctx, presenceFlagKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		s.logger.Warnw("failed to get presence flag", "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to get presence flag: %w", err)
	}
	return val == presenceFlagValue, nil
}

// ArmSessionMarker records startTime as the beginning of the current
// measurement interval.
func (s *RedisPresenceStore) ArmSessionMarker(ctx context.Context, userID uint, startTime time.Time) error {
	value := strconv.FormatInt(startTime.Unix(), 10)
	if err := s.client.Set(ctx, presenceMarkerKey(userID), value, presenceMarkerTTL).Err(); err != nil {
		s.logger.Errorw("failed to arm presence session marker", "user_id", userID, "error", err)
		return fmt.Errorf("failed to arm presence session marker: %w", err)
	}
	return nil
}

// GetSessionMarker reads the session marker without consuming it.
func (s *RedisPresenceStore) GetSessionMarker(ctx context.Context, userID uint) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, presenceMarkerKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		s.logger.Errorw("failed to read presence session marker", "user_id", userID, "error", err)
		return time.Time{}, false, fmt.Errorf("failed to read presence session marker: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// A corrupt marker is dropped rather than poisoning future flushes.
		s.logger.Warnw("invalid presence session marker value", "user_id", userID, "value", val)
		if err := s.ClearSessionMarker(ctx, userID); err != nil {
			return time.Time{}, false, err
		}
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// ClearSessionMarker removes the session marker.
func (s *RedisPresenceStore) ClearSessionMarker(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, presenceMarkerKey(userID)).Err(); err != nil {
		s.logger.Errorw("failed to clear presence session marker", "user_id", userID, "error", err)
		return fmt.Errorf("failed to clear presence session marker: %w", err)
	}
	return nil
}

// IncrementAggregate adds seconds to the user's running total for day.
func (s *RedisPresenceStore) IncrementAggregate(ctx context.Context, userID uint, day string, seconds int64) error {
	if seconds <= 0 {
		return nil
	}

	key := presenceAggKey(userID, day)
	pipe := s.client.Pipeline()
	pipe.IncrBy(ctx, key, seconds)
	pipe.Expire(ctx, key, presenceAggTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Errorw("failed to increment presence aggregate",
			"user_id", userID,
			"day", day,
			"seconds", seconds,
			"error", err,
		)
		return fmt.Errorf("failed to increment presence aggregate: %w", err)
	}

	s.logger.Debugw("presence aggregate incremented", "user_id", userID, "day", day, "seconds", seconds)
	return nil
}

// GetAggregate returns the accumulated seconds for the given day.
func (s *RedisPresenceStore) GetAggregate(ctx context.Context, userID uint, day string) (int64, error) {
	val, err := s.client.Get(ctx, presenceAggKey(userID, day)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		s.logger.Errorw("failed to get presence aggregate", "user_id", userID, "day", day, "error", err)
		return 0, fmt.Errorf("failed to get presence aggregate: %w", err)
	}

	seconds, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		s.logger.Warnw("invalid presence aggregate value", "user_id", userID, "day", day, "value", val)
		return 0, nil
	}
	return seconds, nil
}

// ClearAggregate deletes the aggregate key for the given day.
func (s *RedisPresenceStore) ClearAggregate(ctx context.Context, userID uint, day string) error {
	if err := s.client.Del(ctx, presenceAggKey(userID, day)).Err(); err != nil {
		s.logger.Errorw("failed to clear presence aggregate", "user_id", userID, "day", day, "error", err)
		return fmt.Errorf("failed to clear presence aggregate: %w", err)
	}
	return nil
}
