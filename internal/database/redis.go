package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docvault/internal/config"
)

var newRedisClient = redis.NewClient

// NewRedis creates a Redis client and verifies it answers PING.
func NewRedis(c config.RedisConfig) (*redis.Client, error) {
	if c.Addr == "" {
		return nil, fmt.Errorf("invalid redis config: addr is required")
	}

	client := newRedisClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
