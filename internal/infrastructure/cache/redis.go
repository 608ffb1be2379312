package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "autofund:cache:"

// RedisCache shares cached reads between client processes. Expiry is
// delegated to redis key TTLs.
type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisCache(rdb redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("cache_backend_error", "op", "get", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		slog.Warn("cache_backend_error", "op", "set", "key", key, "error", err)
	}
}

func (c *RedisCache) Clear(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			slog.Warn("cache_backend_error", "op", "clear", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("cache_backend_error", "op", "clear", "error", err)
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
