package bootstrap

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *domain.Config {
	t.Helper()
	return &domain.Config{
		Engine: domain.EngineConfig{Timezone: "UTC", MaxConcurrency: 2},
		Audit: domain.AuditConfig{
			Enabled:    true,
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
		},
		Cache: domain.CacheConfig{DefaultTTL: time.Minute, MemoryItems: 10},
	}
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	defer engine.Close()

	assert.NotNil(t, engine.Evaluator)
	assert.NotNil(t, engine.Cached)
	assert.NotNil(t, engine.Store)
	assert.Nil(t, engine.Source)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	evaluation, err := engine.Pathway.Evaluate(context.Background(), &domain.EvaluationRequest{
		Person: domain.Person{ID: "woman-1", Type: domain.CONTACT_PERSON, Sex: "female", DateOfBirth: "1998-05-10"},
		Now:    &now,
	})
	require.NoError(t, err)
	assert.Equal(t, "woman-1", evaluation.PersonID)

	count, err := engine.Store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "evaluations through the pathway are audited")
}

func TestNewEngine_Options(t *testing.T) {
	t.Run("audit disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Audit.Enabled = false

		engine, err := NewEngine(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		defer engine.Close()

		assert.Nil(t, engine.Store)
		assert.Same(t, engine.Cached, engine.Pathway)
	})

	t.Run("report source", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ReportSource.BaseURL = "http://127.0.0.1:1"

		engine, err := NewEngine(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		defer engine.Close()

		assert.NotNil(t, engine.Source)
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Cache.Enabled = true
		cfg.Cache.RedisURL = "redis://127.0.0.1:1/0"

		engine, err := NewEngine(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		defer engine.Close()

		assert.NotNil(t, engine.Cached)
	})

	t.Run("unknown audit driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Audit.Driver = "mongo"

		_, err := NewEngine(context.Background(), cfg, quietLogger())
		assert.ErrorContains(t, err, "unsupported audit driver")
	})

	t.Run("bad timezone", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Engine.Timezone = "Mars/Olympus"

		_, err := NewEngine(context.Background(), cfg, quietLogger())
		assert.Error(t, err)
	})
}
