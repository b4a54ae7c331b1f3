package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const verticalKeyPrefix = "vertical:list:"

// failedLookupSentinel marks a list id whose vertical could not be resolved,
// so we stop hammering the routing table for it for a while
const failedLookupSentinel = "\x00unresolved"

// VerticalCache caches the list_id to vertical mapping. Verticals effectively
// never change, so successful lookups live for the full TTL; failed lookups
// are cached for a quarter of it to back off repeated misses without pinning
// a wrong answer for a day.
type VerticalCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewVerticalCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *VerticalCache {
	return &VerticalCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached vertical for a list id. found reports whether the
// cache had an answer at all; a found entry with empty vertical is a cached
// lookup failure.
func (c *VerticalCache) Get(ctx context.Context, listID string) (vertical string, found bool) {
	val, err := c.client.Get(ctx, verticalKeyPrefix+listID).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("vertical cache read failed",
				zap.String("list_id", listID),
				zap.Error(err))
		}
		return "", false
	}
	if val == failedLookupSentinel {
		return "", true
	}
	return val, true
}

// Set records a resolved vertical
func (c *VerticalCache) Set(ctx context.Context, listID, vertical string) {
	if err := c.client.Set(ctx, verticalKeyPrefix+listID, vertical, c.ttl).Err(); err != nil {
		c.logger.Warn("vertical cache write failed",
			zap.String("list_id", listID),
			zap.Error(err))
	}
}

// SetFailed records an unresolvable list id so the next lookups skip the
// routing table until the backoff window passes
func (c *VerticalCache) SetFailed(ctx context.Context, listID string) {
	if err := c.client.Set(ctx, verticalKeyPrefix+listID, failedLookupSentinel, c.ttl/4).Err(); err != nil {
		c.logger.Warn("vertical cache write failed",
			zap.String("list_id", listID),
			zap.Error(err))
	}
}
