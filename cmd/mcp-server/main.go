// Command mcp-server serves the pathway engine as MCP tools over stdio.
// It needs no external services: evaluations are cached in memory and the
// audit trail is kept in SQLite under PATHWAY_DATA_DIR.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/care-pathway-engine/internal/config"
	"github.com/care-pathway-engine/internal/mcp"
)

func main() {
	cfg := config.LoadLiteConfig()

	// stdout carries the protocol; diagnostics go to stderr.
	log.SetOutput(os.Stderr)
	log.Printf("Data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}

	log.Println("Care pathway MCP server stopped")
}
