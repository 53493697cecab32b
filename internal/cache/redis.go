package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roofline/internal/clock"
	"roofline/internal/domain"
)

const redisKeyPrefix = "roofline:measurement:"

type redisPayload struct {
	StoredAt    time.Time          `json:"storedAt"`
	Measurement domain.Measurement `json:"measurement"`
}

// RedisCache shares cached measurements across instances. Redis failures
// degrade to cache misses.
type RedisCache struct {
	client    redis.Cmdable
	freshness time.Duration
	clock     clock.Clock
	logger    *zap.Logger
}

func NewRedisCache(client redis.Cmdable, freshness time.Duration, clk clock.Clock, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		freshness: freshness,
		clock:     clk,
		logger:    logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, address string, tier domain.Tier) (*domain.Measurement, bool) {
	key := redisKeyPrefix + Key(address, tier)

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("redis cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var payload redisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	// The TTL is coarse; the stored timestamp is authoritative.
	if c.clock.Now().Sub(payload.StoredAt) >= c.freshness {
		return nil, false
	}

	return &payload.Measurement, true
}

func (c *RedisCache) Put(ctx context.Context, address string, tier domain.Tier, m domain.Measurement) {
	key := redisKeyPrefix + Key(address, tier)

	raw, err := json.Marshal(redisPayload{StoredAt: c.clock.Now(), Measurement: m})
	if err != nil {
		c.logger.Warn("encoding cache entry failed", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, raw, c.freshness).Err(); err != nil {
		c.logger.Warn("redis cache write failed", zap.String("key", key), zap.Error(err))
	}
}
