package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/audit"
	"github.com/care-pathway-engine/internal/config"
	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/logging"
	"github.com/care-pathway-engine/internal/service"
	"github.com/care-pathway-engine/pkg/external"
)

// LiteServer is the MCP server that needs nothing beyond a data directory:
// an in-memory evaluation cache and SQLite for the audit trail.
type LiteServer struct {
	config    *config.LiteConfig
	server    *Server
	evaluator *service.EvaluatorService
	cache     *service.CachedEvaluator
	store     audit.Store
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithSnapshotStore sets a custom audit store.
func WithSnapshotStore(store audit.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer wires the engine, cache, audit store and optional report
// source from cfg.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	s := &LiteServer{config: cfg}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LoggingConfig(), nil)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	evaluator, err := service.NewDefaultEvaluator(s.logger, cfg.EngineConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}
	s.evaluator = evaluator

	cached, err := service.NewCachedEvaluator(evaluator, nil, service.CachedEvaluatorConfig{
		MemoryCacheTTL: cfg.CacheTTL,
		MaxMemorySize:  cfg.CacheMaxItems,
		MaxConcurrency: cfg.MaxConcurrency,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation cache: %w", err)
	}
	s.cache = cached

	deps := Dependencies{
		Evaluator:  cached,
		Classifier: evaluator,
		Catalog:    evaluator.Catalog(),
	}

	if s.store == nil && cfg.AuditEnabled {
		store, err := audit.NewSQLiteStore(cfg.AuditDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		s.store = store
	}
	if s.store != nil {
		deps.Evaluator = audit.NewRecorder(cached, s.store, s.logger)
		deps.Snapshots = s.store
	}

	if sourceCfg, ok := cfg.ReportSourceConfig(); ok {
		source, err := external.NewReportSourceClient(sourceCfg, s.logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create report source client: %w", err)
		}
		deps.Source = source
	}

	server, err := NewServer(&mcp.Implementation{
		Name:    "care-pathway-mcp-server",
		Version: "v0.1.0",
	}, deps, s.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.server = server

	s.logger.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"audit":    s.store != nil,
		"timezone": evaluator.Location().String(),
	}).Info("Lite server initialized")
	return s, nil
}

// Start serves MCP over stdio until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting care pathway MCP server (lite)")
	return s.server.Run(ctx)
}

// Server returns the underlying tool server.
func (s *LiteServer) Server() *Server {
	return s.server
}

// SnapshotStore returns the audit store, nil when auditing is off.
func (s *LiteServer) SnapshotStore() domain.SnapshotStore {
	if s.store == nil {
		return nil
	}
	return s.store
}

// CacheStats reports the in-memory evaluation cache counters.
func (s *LiteServer) CacheStats() service.CacheStats {
	return s.cache.GetCacheStats()
}

// Close releases the audit store.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close audit store")
			return err
		}
	}
	return nil
}
