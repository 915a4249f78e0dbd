package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wannagonna/internal/cache"
	"wannagonna/internal/config"
	"wannagonna/internal/events"
	"wannagonna/internal/middleware"
	"wannagonna/internal/services"
	"wannagonna/internal/store"
)

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) (http.Handler, events.EventBus) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	bus := events.NewInMemoryEventBus(nil, logger)
	infra := services.Infrastructure{
		Documents: store.NewMemoryStore(),
		Blobs:     store.NewMemoryBlobStore("https://blobs.test"),
		Cache:     cache.NewMemoryCache(&cache.Config{TTL: time.Minute, MaxKeys: 10}, logger),
		EventBus:  bus,
	}
	sc, err := services.NewServiceCollection(infra, &config.Config{}, logger)
	require.NoError(t, err)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = sc.Shutdown(context.Background()) })

	return SetupRouter(sc, nil, logger, Options{CORSOrigins: []string{"*"}, RateLimiter: limiter}), bus
}

func TestHealthEndpoint(t *testing.T) {
	h, bus := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "healthy", body.Data.Status)

	require.NoError(t, bus.Stop(context.Background()))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/catalog/categories", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/catalog/categories")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/catalog/categories", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{RPS: 0.001, Burst: 1}, nil)
	h, _ := newTestRouter(t, limiter)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/categories", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/categories", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// health outside /api/v1 is never limited
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
