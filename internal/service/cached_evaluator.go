package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/domain"
)

// EvaluationStore is a shared second cache tier, typically Redis.
type EvaluationStore interface {
	GetEvaluation(ctx context.Context, key string) (*domain.Evaluation, bool, error)
	SetEvaluation(ctx context.Context, key string, evaluation *domain.Evaluation, ttl time.Duration) error
}

// CachedEvaluatorConfig holds configuration for the cached evaluator
type CachedEvaluatorConfig struct {
	MemoryCacheTTL time.Duration `json:"memory_cache_ttl"`
	StoreTTL       time.Duration `json:"store_ttl"`
	MaxMemorySize  int           `json:"max_memory_size"`
	MaxConcurrency int           `json:"max_concurrency"`
}

// pinResolution truncates the clock reading given to requests without a now,
// so repeated calls within the same second share a cache entry.
const pinResolution = time.Second

// CachedEvaluator memoises evaluations by a digest of their input. The
// engine is deterministic in (person, reports, now), so a hit is exact.
// Callers always receive their own copy of a cached evaluation.
type CachedEvaluator struct {
	evaluator domain.PathwayEvaluator
	store     EvaluationStore

	memoryCache    *lru.Cache[string, *cacheEntry]
	memoryCacheTTL time.Duration
	storeTTL       time.Duration
	maxConcurrency int
	clock          Clock

	logger *logrus.Logger

	stats   *CacheStats
	statsMu sync.RWMutex
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	MemoryHits    int64     `json:"memory_hits"`
	MemoryMisses  int64     `json:"memory_misses"`
	StoreHits     int64     `json:"store_hits"`
	StoreMisses   int64     `json:"store_misses"`
	Evaluations   int64     `json:"evaluations"`
	TotalRequests int64     `json:"total_requests"`
	ErrorCount    int64     `json:"error_count"`
	LastReset     time.Time `json:"last_reset"`
}

type cacheEntry struct {
	evaluation *domain.Evaluation
	expiry     time.Time
}

func (e *cacheEntry) isExpired() bool {
	return time.Now().After(e.expiry)
}

// NewCachedEvaluator wraps evaluator with a memory LRU and an optional
// shared store. A nil store disables the second tier.
func NewCachedEvaluator(
	evaluator domain.PathwayEvaluator,
	store EvaluationStore,
	config CachedEvaluatorConfig,
	logger *logrus.Logger,
) (*CachedEvaluator, error) {
	if config.MemoryCacheTTL == 0 {
		config.MemoryCacheTTL = 15 * time.Minute
	}
	if config.StoreTTL == 0 {
		config.StoreTTL = 24 * time.Hour
	}
	if config.MaxMemorySize == 0 {
		config.MaxMemorySize = 1000
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}

	memoryCache, err := lru.New[string, *cacheEntry](config.MaxMemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &CachedEvaluator{
		evaluator:      evaluator,
		store:          store,
		memoryCache:    memoryCache,
		memoryCacheTTL: config.MemoryCacheTTL,
		storeTTL:       config.StoreTTL,
		maxConcurrency: config.MaxConcurrency,
		clock:          time.Now,
		logger:         logger,
		stats: &CacheStats{
			LastReset: time.Now(),
		},
	}, nil
}

// SetClock replaces the clock used to pin requests without a now.
func (c *CachedEvaluator) SetClock(clock Clock) {
	c.clock = clock
}

// Evaluate implements domain.PathwayEvaluator.
func (c *CachedEvaluator) Evaluate(ctx context.Context, req *domain.EvaluationRequest) (*domain.Evaluation, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", domain.ErrInvalidPerson)
	}
	c.incrementStat("total_requests")

	pinned := *req
	if pinned.Now == nil {
		now := c.clock().Truncate(pinResolution)
		pinned.Now = &now
	}

	key, err := InputDigest(&pinned)
	if err != nil {
		c.incrementStat("errors")
		return nil, err
	}

	if evaluation := c.getFromMemoryCache(key); evaluation != nil {
		c.incrementStat("memory_hits")
		return evaluation.Clone(), nil
	}
	c.incrementStat("memory_misses")

	if c.store != nil {
		evaluation, found, err := c.store.GetEvaluation(ctx, key)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Evaluation store lookup failed")
		}
		if found {
			c.incrementStat("store_hits")
			c.setInMemoryCache(key, evaluation)
			return evaluation.Clone(), nil
		}
		c.incrementStat("store_misses")
	}

	c.incrementStat("evaluations")
	evaluation, err := c.evaluator.Evaluate(ctx, &pinned)
	if err != nil {
		c.incrementStat("errors")
		return nil, err
	}

	c.setInMemoryCache(key, evaluation)
	if c.store != nil {
		if err := c.store.SetEvaluation(ctx, key, evaluation, c.storeTTL); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Failed to store evaluation")
		}
	}
	return evaluation.Clone(), nil
}

// BatchEvaluate implements domain.PathwayEvaluator.
func (c *CachedEvaluator) BatchEvaluate(ctx context.Context, reqs []domain.EvaluationRequest) *domain.BatchEvaluationResult {
	return batchEvaluate(ctx, c, reqs, c.maxConcurrency)
}

// Purge drops every memory entry and resets the statistics.
func (c *CachedEvaluator) Purge() {
	c.memoryCache.Purge()
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = &CacheStats{LastReset: time.Now()}
}

// GetCacheStats returns current cache statistics
func (c *CachedEvaluator) GetCacheStats() CacheStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	stats := *c.stats

	totalMemoryRequests := stats.MemoryHits + stats.MemoryMisses
	if totalMemoryRequests > 0 {
		c.logger.WithFields(logrus.Fields{
			"total_requests":   stats.TotalRequests,
			"memory_hit_ratio": fmt.Sprintf("%.2f%%", float64(stats.MemoryHits)/float64(totalMemoryRequests)*100),
			"store_hits":       stats.StoreHits,
			"evaluations":      stats.Evaluations,
			"error_count":      stats.ErrorCount,
		}).Debug("Evaluation cache statistics")
	}

	return stats
}

func (c *CachedEvaluator) getFromMemoryCache(key string) *domain.Evaluation {
	entry, ok := c.memoryCache.Get(key)
	if !ok {
		return nil
	}
	if entry.isExpired() {
		c.memoryCache.Remove(key)
		return nil
	}
	return entry.evaluation
}

func (c *CachedEvaluator) setInMemoryCache(key string, evaluation *domain.Evaluation) {
	c.memoryCache.Add(key, &cacheEntry{
		evaluation: evaluation,
		expiry:     time.Now().Add(c.memoryCacheTTL),
	})
}

func (c *CachedEvaluator) incrementStat(statName string) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	switch statName {
	case "memory_hits":
		c.stats.MemoryHits++
	case "memory_misses":
		c.stats.MemoryMisses++
	case "store_hits":
		c.stats.StoreHits++
	case "store_misses":
		c.stats.StoreMisses++
	case "evaluations":
		c.stats.Evaluations++
	case "total_requests":
		c.stats.TotalRequests++
	case "errors":
		c.stats.ErrorCount++
	}
}

// InputDigest returns the hex SHA-256 of the canonical JSON encoding of an
// evaluation input. Instants are encoded in UTC so equal inputs in
// different zones share a digest.
func InputDigest(req *domain.EvaluationRequest) (string, error) {
	canonical := domain.EvaluationRequest{
		Person:  req.Person,
		Reports: make([]domain.Report, len(req.Reports)),
	}
	canonical.Person.RegisteredAt = canonical.Person.RegisteredAt.UTC()
	for i, r := range req.Reports {
		r.ReportedAt = r.ReportedAt.UTC()
		canonical.Reports[i] = r
	}
	if req.Now != nil {
		now := req.Now.UTC()
		canonical.Now = &now
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluation input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
