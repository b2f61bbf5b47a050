package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(router, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "HSTS only in release mode")
}

func TestCorrelationID(t *testing.T) {
	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logging.CorrelationID(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := perform(router, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(CorrelationIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String(), "id reaches the request context")
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, "req-42")
		w := perform(router, req)
		assert.Equal(t, "req-42", w.Header().Get(CorrelationIDHeader))
		assert.Equal(t, "req-42", w.Body.String())
	})
}

func TestRequestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(CorrelationID(), RequestTimeout(20*time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	router.GET("/fast", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": hasDeadline})
	})

	w := perform(router, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	var engineErr domain.EngineError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &engineErr))
	assert.Equal(t, domain.ErrInternalServer, engineErr.Code)
	assert.Equal(t, w.Header().Get(CorrelationIDHeader), engineErr.RequestID)

	w = perform(router, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deadline": true}`, w.Body.String())
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	router := gin.New()
	router.Use(CorrelationID(), AuditLogger(logger))
	router.GET("/contacts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/contacts/woman-1", nil)
	req.Header.Set(CorrelationIDHeader, "req-7")
	perform(router, req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-7", line["correlation_id"])
	assert.Equal(t, "/contacts/woman-1", line["path"])
	assert.Equal(t, "/contacts/:id", line["route"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.Equal(t, "warning", line["level"])
}

func TestRateLimiter(t *testing.T) {
	t.Run("per client buckets", func(t *testing.T) {
		rl := NewRateLimiter(domain.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
		fixed := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
		rl.now = func() time.Time { return fixed }

		assert.True(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.2"))
		assert.Equal(t, 2, rl.Clients())

		fixed = fixed.Add(time.Second)
		assert.True(t, rl.Allow("10.0.0.1"), "bucket refills")
	})

	t.Run("idle clients are evicted", func(t *testing.T) {
		rl := NewRateLimiter(domain.RateLimitConfig{RequestsPerSecond: 5, Burst: 5})
		fixed := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
		rl.now = func() time.Time { return fixed }

		rl.Allow("a")
		rl.Allow("b")
		fixed = fixed.Add(11 * time.Minute)
		rl.Allow("c")
		assert.Equal(t, 1, rl.Clients())
	})

	t.Run("disabled", func(t *testing.T) {
		rl := NewRateLimiter(domain.RateLimitConfig{})
		for i := 0; i < 100; i++ {
			require.True(t, rl.Allow("a"))
		}
	})

	t.Run("middleware", func(t *testing.T) {
		rl := NewRateLimiter(domain.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
		router := gin.New()
		router.Use(rl.Middleware())
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, perform(router, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
		w := perform(router, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), domain.ErrRateLimit)
	})
}
