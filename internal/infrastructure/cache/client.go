// Package cache holds the fast ephemeral store: live presence flags,
// in-progress session markers, and per-day running aggregates, all in Redis
// with TTLs. It is the single source of truth for current, not-yet-durable
// state.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"glimpse/internal/shared/config"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
