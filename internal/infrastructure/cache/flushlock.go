package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"glimpse/internal/shared/logger"
)

const (
	// Key format: glimpse:flush:lock:{userID}
	// Short-lived SETNX lock held around a user's drain so a disconnect flush
	// and a scheduler tick cannot drain the same aggregates concurrently.
	flushLockKeyPrefix = "glimpse:flush:lock:"

	// Long enough to cover a slow drain, short enough that a crashed holder
	// only delays the user's next flush by one cycle at worst.
	flushLockTTL = 30 * time.Second
)

// releaseFlushLockScript deletes the lock only when the caller still holds
// it, so a lock that expired and was re-acquired by another flush is never
// released by the stale holder.
var releaseFlushLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// FlushLock serializes per-user flush drains across processes.
type FlushLock interface {
	// TryAcquire attempts to take the lock for userID. Returns a release
	// token and acquired=true on success; acquired=false when another flush
	// currently holds it.
	TryAcquire(ctx context.Context, userID uint) (token string, acquired bool, err error)

	// Release frees the lock if token still owns it.
	Release(ctx context.Context, userID uint, token string) error
}

// RedisFlushLock implements FlushLock using Redis SETNX.
type RedisFlushLock struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisFlushLock creates a new RedisFlushLock instance.
func NewRedisFlushLock(client *redis.Client, logger logger.Interface) FlushLock {
	return &RedisFlushLock{
		client: client,
		logger: logger,
	}
}

func flushLockKey(userID uint) string {
	return fmt.Sprintf("%s%d", flushLockKeyPrefix, userID)
}

// TryAcquire attempts to take the lock for userID.
func (l *RedisFlushLock) TryAcquire(ctx context.Context, userID uint) (string, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, flushLockKey(userID), token, flushLockTTL).Result()
	if err != nil {
		l.logger.Errorw("failed to acquire flush lock", "user_id", userID, "error", err)
		return "", false, fmt.Errorf("failed to acquire flush lock: %w", err)
	}
	if !acquired {
		l.logger.Debugw("flush lock held elsewhere", "user_id", userID)
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it.
func (l *RedisFlushLock) Release(ctx context.Context, userID uint, token string) error {
	released, err := releaseFlushLockScript.Run(ctx, l.client, []string{flushLockKey(userID)}, token).Int()
	if err != nil && err != redis.Nil {
		l.logger.Errorw("failed to release flush lock", "user_id", userID, "error", err)
		return fmt.Errorf("failed to release flush lock: %w", err)
	}
	if released == 0 {
		l.logger.Warnw("flush lock already expired or taken over", "user_id", userID)
	}
	return nil
}
