package redisclient

import (
	"context"
	"fmt"
	"time"

	"mentionwatch/internal/config"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client from configuration.
func New(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks connectivity with a short timeout and reports round-trip latency.
func Ping(ctx context.Context, rdb *redis.Client) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("redis ping %s: %w", rdb.Options().Addr, err)
	}
	return time.Since(start), nil
}
