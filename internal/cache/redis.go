package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/touchpath/server/internal/logger"
	"github.com/redis/go-redis/v9"
)

// implements ReportCache using Redis with JSON values
type RedisCache struct {
	client *redis.Client
}

// creates a redis client from a URL and checks the connection
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck,gosec // best-effort cleanup on failed connect
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis")

	return client, nil
}

// creates a Redis-backed report cache on an existing client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()

	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to get report from redis: %w", err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		// stale layout; treat as a miss so it gets rebuilt
		c.client.Del(ctx, keyPrefix+key) //nolint:errcheck // best-effort cleanup
		return false, nil
	}

	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set report in redis: %w", err)
	}

	return nil
}

// returns the underlying Redis client for sharing (rate-limit store)
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
