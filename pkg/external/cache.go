package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/care-pathway-engine/internal/domain"
)

const evaluationKeyPrefix = "pathway:evaluation:"

// EvaluationCache stores evaluations in Redis, keyed by input digest. It is
// the shared tier behind service.CachedEvaluator.
type EvaluationCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewEvaluationCache connects to Redis and verifies the connection.
func NewEvaluationCache(config domain.CacheConfig) (*EvaluationCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewEvaluationCacheWithClient(client, config.DefaultTTL), nil
}

// NewEvaluationCacheWithClient wraps an existing client.
func NewEvaluationCacheWithClient(client *redis.Client, defaultTTL time.Duration) *EvaluationCache {
	if defaultTTL == 0 {
		defaultTTL = 24 * time.Hour
	}
	return &EvaluationCache{redis: client, defaultTTL: defaultTTL}
}

// CachedEvaluation represents a cached evaluation with metadata
type CachedEvaluation struct {
	Data      *domain.Evaluation `json:"data"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// GetEvaluation retrieves a cached evaluation. A miss is not an error.
func (c *EvaluationCache) GetEvaluation(ctx context.Context, key string) (*domain.Evaluation, bool, error) {
	redisKey := evaluationKey(key)

	val, err := c.redis.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached evaluation: %w", err)
	}

	var cached CachedEvaluation
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetEvaluation caches an evaluation. A zero ttl uses the default.
func (c *EvaluationCache) SetEvaluation(ctx context.Context, key string, evaluation *domain.Evaluation, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	cached := CachedEvaluation{
		Data:      evaluation,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation cache data: %w", err)
	}

	return c.redis.Set(ctx, evaluationKey(key), data, ttl).Err()
}

// Invalidate removes one cached evaluation.
func (c *EvaluationCache) Invalidate(ctx context.Context, key string) error {
	return c.redis.Del(ctx, evaluationKey(key)).Err()
}

// InvalidateAll removes every cached evaluation, for example after a catalog
// or remap table change.
func (c *EvaluationCache) InvalidateAll(ctx context.Context) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, evaluationKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan evaluation keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete evaluation keys: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// GetStats returns cache statistics
func (c *EvaluationCache) GetStats(ctx context.Context) (map[string]interface{}, error) {
	info, err := c.redis.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	keyspace, err := c.redis.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis keyspace: %w", err)
	}

	return map[string]interface{}{
		"memory_info": info,
		"keyspace":    keyspace,
		"client_info": map[string]interface{}{
			"pool_stats": c.redis.PoolStats(),
		},
	}, nil
}

// Ping checks if Redis connection is alive
func (c *EvaluationCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *EvaluationCache) Close() error {
	return c.redis.Close()
}

func evaluationKey(digest string) string {
	return evaluationKeyPrefix + digest
}
