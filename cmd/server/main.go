package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/care-pathway-engine/internal/api"
	"github.com/care-pathway-engine/internal/bootstrap"
	"github.com/care-pathway-engine/internal/config"
	"github.com/care-pathway-engine/internal/logging"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.New(cfg.Logging, nil)
	logger.WithField("host", cfg.Server.Host).WithField("port", cfg.Server.Port).Info("Starting care pathway server")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := bootstrap.NewEngine(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize engine")
	}
	defer engine.Close()

	server := api.NewServer(configManager, api.Dependencies{
		Evaluator:  engine.Pathway,
		Classifier: engine.Evaluator,
		Catalog:    engine.Evaluator.Catalog(),
		Source:     engine.Source,
		Snapshots:  engine.Store,
		Logger:     logger,
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
