// Package cache keeps rendered public tenant profiles in Redis.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "booking:profile:"

type ProfileCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewProfileCache(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ProfileCache{rdb: rdb, ttl: ttl, logger: logger}
}

func Key(slug string) string {
	return keyPrefix + slug
}

// Get treats Redis errors as misses.
func (c *ProfileCache) Get(ctx context.Context, slug string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, Key(slug)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("profile cache get failed", "err", err)
		}
		return nil, false
	}
	return b, true
}

func (c *ProfileCache) Set(ctx context.Context, slug string, body []byte) {
	if err := c.rdb.Set(ctx, Key(slug), body, c.ttl).Err(); err != nil {
		c.logger.Warn("profile cache set failed", "err", err)
	}
}

func (c *ProfileCache) Delete(ctx context.Context, slug string) error {
	return c.rdb.Del(ctx, Key(slug)).Err()
}
