// Package config provides configuration management for the pathway engine.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/care-pathway-engine/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the audit database and exports

	// Engine settings
	Timezone        string // IANA zone for day boundaries
	RemapTablesPath string // Optional remap table overrides
	MaxConcurrency  int    // Batch evaluation workers

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Audit snapshots
	AuditEnabled bool

	// Report source
	ReportSourceURL string // Optional: host system base URL
	ReportSourceKey string // Optional: host system API key

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".care-pathway")

	return &LiteConfig{
		DataDir:        dataDir,
		Timezone:       "UTC",
		MaxConcurrency: 4,
		CacheMaxItems:  1000,
		CacheTTL:       15 * time.Minute,
		AuditEnabled:   true,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PATHWAY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Engine settings
	if v := os.Getenv("PATHWAY_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	cfg.RemapTablesPath = os.Getenv("PATHWAY_REMAP_TABLES")
	if v := os.Getenv("PATHWAY_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}

	// Cache settings
	if v := os.Getenv("PATHWAY_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PATHWAY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("PATHWAY_AUDIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AuditEnabled = b
		}
	}

	cfg.ReportSourceURL = os.Getenv("PATHWAY_REPORT_SOURCE_URL")
	cfg.ReportSourceKey = os.Getenv("PATHWAY_REPORT_SOURCE_KEY")

	// Logging
	if v := os.Getenv("PATHWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("PATHWAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	return cfg
}

// AuditDBPath returns the path to the audit SQLite database.
func (c *LiteConfig) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// EngineConfig projects the lite settings onto the engine configuration.
func (c *LiteConfig) EngineConfig() domain.EngineConfig {
	return domain.EngineConfig{
		Timezone:        c.Timezone,
		MaxConcurrency:  c.MaxConcurrency,
		RemapTablesPath: c.RemapTablesPath,
	}
}

// LoggingConfig projects the lite settings onto the logging configuration.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat}
}

// ReportSourceConfig returns the report source settings, or false when no
// report source is configured.
func (c *LiteConfig) ReportSourceConfig() (domain.ReportSourceConfig, bool) {
	if c.ReportSourceURL == "" {
		return domain.ReportSourceConfig{}, false
	}
	return domain.ReportSourceConfig{
		BaseURL:    c.ReportSourceURL,
		APIKey:     c.ReportSourceKey,
		Timeout:    30 * time.Second,
		RateLimit:  10,
		RetryCount: 2,
	}, true
}
