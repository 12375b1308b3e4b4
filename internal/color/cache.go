package color

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "storefront:tint:"

// RedisCache keeps sampled colors in Redis so repeated catalog loads do not
// download the same image again.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a color cache. A zero ttl keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached color for imageURL.
func (c *RedisCache) Get(ctx context.Context, imageURL string) (RGB, bool) {
	val, err := c.client.Get(ctx, cacheKeyPrefix+imageURL).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Failed to read cached color", zap.Error(err))
		}
		return RGB{}, false
	}

	var rgb RGB
	if _, err := fmt.Sscanf(val, "%d,%d,%d", &rgb.R, &rgb.G, &rgb.B); err != nil {
		c.logger.Debug("Discarding malformed cached color", zap.String("value", val))
		return RGB{}, false
	}

	return rgb, true
}

// Set stores the color for imageURL. Errors are logged and dropped.
func (c *RedisCache) Set(ctx context.Context, imageURL string, rgb RGB) {
	val := fmt.Sprintf("%d,%d,%d", rgb.R, rgb.G, rgb.B)
	if err := c.client.Set(ctx, cacheKeyPrefix+imageURL, val, c.ttl).Err(); err != nil {
		c.logger.Debug("Failed to cache color", zap.Error(err))
	}
}
