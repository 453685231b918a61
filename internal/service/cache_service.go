package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
)

const resultKeyPrefix = "lms-sync:last-result:"

// ResultCache keeps the most recent SyncResult per connection in Redis so the
// admin surface can show outcomes without replaying a sync.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResultCache constructs the cache. A nil client disables caching.
func NewResultCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

// Store caches a sync result. Cache failures are logged, never surfaced; the
// sync outcome already reached the caller.
func (c *ResultCache) Store(ctx context.Context, result *models.SyncResult) {
	if c.client == nil || result == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("marshal sync result for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, resultKeyPrefix+result.ConnectionID, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache sync result", zap.Error(err))
	}
}

// Load returns the cached result for a connection, or nil when absent.
func (c *ResultCache) Load(ctx context.Context, connectionID string) *models.SyncResult {
	if c.client == nil {
		return nil
	}
	payload, err := c.client.Get(ctx, resultKeyPrefix+connectionID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("load cached sync result", zap.Error(err))
		}
		return nil
	}
	var result models.SyncResult
	if err := json.Unmarshal(payload, &result); err != nil {
		c.logger.Warn("decode cached sync result", zap.Error(err))
		return nil
	}
	return &result
}

// Forget drops the cached result, used when a connection is removed.
func (c *ResultCache) Forget(ctx context.Context, connectionID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, resultKeyPrefix+connectionID).Err(); err != nil {
		c.logger.Warn("drop cached sync result", zap.Error(err))
	}
}
