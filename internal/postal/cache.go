package postal

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	cachePrefix = "daicho:postal:"
	cacheTTL    = 30 * 24 * time.Hour
)

// Cache stores guessed postal codes by normalized address
type Cache interface {
	Get(ctx context.Context, address string) (string, bool, error)
	Set(ctx context.Context, address, code string, ttl time.Duration) error
}

// RedisCache is a Cache on redis. A nil client caches nothing.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a cache on client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, address string) (string, bool, error) {
	if c.client == nil {
		return "", false, nil
	}
	code, err := c.client.Get(ctx, cachePrefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

func (c *RedisCache) Set(ctx context.Context, address, code string, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, cachePrefix+address, code, ttl).Err()
}
