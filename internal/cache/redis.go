package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/sample-interp-server/internal/domain"
)

// RedisResolutionCache caches resolved classifications in Redis behind a
// circuit breaker. A cache outage degrades every call to a miss; resolution
// then falls through to the annotation store, never to an error.
type RedisResolutionCache struct {
	redis      *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	log        *logrus.Logger
}

// NewRedisResolutionCache connects to Redis and verifies the connection.
func NewRedisResolutionCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisResolutionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "resolution-cache",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker state changed")
		},
	})

	return &RedisResolutionCache{
		redis:      client,
		breaker:    breaker,
		defaultTTL: config.DefaultTTL,
		log:        logger,
	}, nil
}

// Get returns the cached resolution for a gene, identity and scope. Any
// failure, including an open breaker, reads as a miss.
func (c *RedisResolutionCache) Get(ctx context.Context, gene, identity string, scope domain.Scope) (*domain.Resolution, bool) {
	key := resolutionKey(gene, identity, scope)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.redis.Get(ctx, key).Result()
	})
	if err != nil {
		if err != redis.Nil && err != gobreaker.ErrOpenState {
			c.log.WithError(err).WithField("key", key).Debug("Cache read failed")
		}
		return nil, false
	}

	var res domain.Resolution
	if err := json.Unmarshal([]byte(result.(string)), &res); err != nil {
		// Corrupted entry, drop it
		c.redis.Del(ctx, key)
		return nil, false
	}

	return &res, true
}

// Set stores a resolution. Write failures are logged and swallowed.
func (c *RedisResolutionCache) Set(ctx context.Context, gene, identity string, scope domain.Scope, res *domain.Resolution) {
	data, err := json.Marshal(res)
	if err != nil {
		c.log.WithError(err).Warn("Failed to marshal resolution for cache")
		return
	}

	key := resolutionKey(gene, identity, scope)
	if _, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, key, data, c.defaultTTL).Err()
	}); err != nil && err != gobreaker.ErrOpenState {
		c.log.WithError(err).WithField("key", key).Debug("Cache write failed")
	}
}

// Invalidate removes every scoped entry for a gene and identity. A newly
// recorded classification can change the resolution under any scope, so the
// whole identity is dropped by pattern.
func (c *RedisResolutionCache) Invalidate(ctx context.Context, gene, identity string) {
	pattern := fmt.Sprintf("resolution:%s:%s:*", gene, identity)

	if _, err := c.breaker.Execute(func() (interface{}, error) {
		keys, err := c.redis.Keys(ctx, pattern).Result()
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, nil
		}
		return nil, c.redis.Del(ctx, keys...).Err()
	}); err != nil && err != gobreaker.ErrOpenState {
		c.log.WithError(err).WithFields(logrus.Fields{
			"gene":     gene,
			"identity": identity,
		}).Warn("Cache invalidation failed")
	}
}

// Ping checks the Redis connection.
func (c *RedisResolutionCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisResolutionCache) Close() error {
	return c.redis.Close()
}

func resolutionKey(gene, identity string, scope domain.Scope) string {
	return fmt.Sprintf("resolution:%s:%s:%s:%s", gene, identity, scope.Assay, scope.Subpanel)
}

// NopResolutionCache is used when caching is disabled. Every read is a miss.
type NopResolutionCache struct{}

func (NopResolutionCache) Get(ctx context.Context, gene, identity string, scope domain.Scope) (*domain.Resolution, bool) {
	return nil, false
}

func (NopResolutionCache) Set(ctx context.Context, gene, identity string, scope domain.Scope, res *domain.Resolution) {
}

func (NopResolutionCache) Invalidate(ctx context.Context, gene, identity string) {}
