package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisCache implements Cache against a Redis server, used when JOBPIPE_REDIS_URL is set.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis at the given URL (redis://... form).
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, eris.Wrap(err, "cache: ping redis")
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached value, or ok=false if absent.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "cache: get")
	}
	return val, true, nil
}

// Set stores value under key with an optional ttl (zero means no expiry).
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return eris.Wrap(err, "cache: set")
	}
	return nil
}

// Delete removes key from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return eris.Wrap(err, "cache: delete")
	}
	return nil
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
