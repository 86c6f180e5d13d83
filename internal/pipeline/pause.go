package pipeline

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"shopbot-core/internal/common/logger"
)

const pauseKeyPrefix = "pause:"

// PauseCache keeps the budget/pause verdict in redis so paused
// merchants short-circuit without a Postgres read on every turn. The
// scheduler refreshes it; the budget gate also writes through when it
// fires. Reads fail open.
type PauseCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewPauseCache(rdb *redis.Client, ttl time.Duration, log logger.Logger) *PauseCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PauseCache{
		redis: rdb,
		ttl:   ttl,
		logger: log.WithFields(map[string]interface{}{
			"component": "pause-cache",
		}),
	}
}

func (c *PauseCache) IsPaused(ctx context.Context, merchantID string) bool {
	val, err := c.redis.Get(ctx, pauseKeyPrefix+merchantID).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("pause flag read failed", map[string]interface{}{
				"merchantId": merchantID,
			})
		}
		return false
	}
	return val == "1"
}

func (c *PauseCache) SetPaused(ctx context.Context, merchantID string) {
	if err := c.redis.Set(ctx, pauseKeyPrefix+merchantID, "1", c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("pause flag write failed", map[string]interface{}{
			"merchantId": merchantID,
		})
	}
}

// RefreshAll rewrites the flags for the given merchant ids. Stale flags
// for recovered merchants simply expire.
func (c *PauseCache) RefreshAll(ctx context.Context, merchantIDs []string) {
	pipe := c.redis.TxPipeline()
	for _, id := range merchantIDs {
		pipe.Set(ctx, pauseKeyPrefix+id, "1", c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).Warn("pause flag refresh failed", nil)
	}
}
