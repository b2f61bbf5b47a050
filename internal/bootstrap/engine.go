// Package bootstrap assembles the engine and its optional backends from
// the service configuration. The HTTP server and the pathway CLI share it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/audit"
	"github.com/care-pathway-engine/internal/database"
	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/service"
	"github.com/care-pathway-engine/pkg/external"
)

// Engine holds the wired evaluator stack. Pathway is what callers should
// evaluate through: the cache and, when auditing, the snapshot recorder.
type Engine struct {
	Evaluator *service.EvaluatorService
	Cached    *service.CachedEvaluator
	Pathway   domain.PathwayEvaluator
	Store     audit.Store
	Source    domain.ReportSource

	closers []func() error
	logger  *logrus.Logger
}

// NewEngine builds the evaluator, the cache tiers, the audit store and the
// report source client described by cfg.
func NewEngine(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Engine, error) {
	e := &Engine{logger: logger}

	evaluator, err := service.NewDefaultEvaluator(logger, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}
	e.Evaluator = evaluator

	var shared service.EvaluationStore
	if cfg.Cache.Enabled && cfg.Cache.RedisURL != "" {
		redisCache, err := external.NewEvaluationCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using the memory cache only")
		} else {
			shared = redisCache
			e.closers = append(e.closers, redisCache.Close)
		}
	}

	cached, err := service.NewCachedEvaluator(evaluator, shared, service.CachedEvaluatorConfig{
		MemoryCacheTTL: cfg.Cache.DefaultTTL,
		StoreTTL:       cfg.Cache.DefaultTTL,
		MaxMemorySize:  cfg.Cache.MemoryItems,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
	}, logger)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create evaluation cache: %w", err)
	}
	e.Cached = cached
	e.Pathway = cached

	if cfg.Audit.Enabled {
		store, closer, err := OpenAuditStore(ctx, cfg, logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Store = store
		e.closers = append(e.closers, closer)
		e.Pathway = audit.NewRecorder(cached, store, logger)
	}

	if cfg.ReportSource.BaseURL != "" {
		source, err := external.NewReportSourceClient(cfg.ReportSource, logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create report source client: %w", err)
		}
		e.Source = source
	}

	logger.WithFields(logrus.Fields{
		"timezone":      evaluator.Location().String(),
		"shared_cache":  shared != nil,
		"audit":         e.Store != nil,
		"report_source": e.Source != nil,
	}).Info("Engine initialized")
	return e, nil
}

// OpenAuditStore opens the configured snapshot store. The returned closer
// releases the store and any connection pool behind it.
func OpenAuditStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (audit.Store, func() error, error) {
	switch cfg.Audit.Driver {
	case "", "sqlite":
		store, err := audit.NewSQLiteStore(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		return store, store.Close, nil

	case "postgres":
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Database.RunMigrations {
			if err := Migrate(ctx, cfg.Database, logger, true); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		store, err := audit.NewPostgresStore(db.SQL)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		return store, func() error { db.Close(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported audit driver %q", cfg.Audit.Driver)
	}
}

// Migrate applies every pending migration, or rolls back the latest one
// when up is false.
func Migrate(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger, up bool) error {
	runner, err := database.NewMigrationRunner(database.ConnectionURL(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()

	if up {
		return runner.Up(ctx)
	}
	return runner.Down(ctx)
}

// Close releases the backends in reverse order of creation.
func (e *Engine) Close() error {
	var firstErr error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			e.logger.WithError(err).Error("Failed to close engine backend")
		}
	}
	e.closers = nil
	return firstErr
}
