package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/pkg/cache"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCacheManager(t *testing.T) (*miniredis.Miniredis, *cache.CacheManager) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, cache.NewCacheManager(cache.NewRedisCache(client, "test"))
}

func idempotentRouter(cm *cache.CacheManager, calls *int32, status int) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.POST("/ingest", Idempotency(cm, IdempotencyConfig{TTL: time.Hour}), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(status, gin.H{"call": n, "bytes": len(body)})
	})
	return r
}

func post(r http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysByHeader(t *testing.T) {
	_, cm := newCacheManager(t)
	var calls int32
	r := idempotentRouter(cm, &calls, http.StatusOK)

	first := post(r, `{"a":1}`, map[string]string{IdempotencyHeader: "k1"})
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get(ReplayHeader))

	second := post(r, `{"a":2}`, map[string]string{IdempotencyHeader: "k1"})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_BodyHashKeepsBodyReadable(t *testing.T) {
	_, cm := newCacheManager(t)
	var calls int32
	r := idempotentRouter(cm, &calls, http.StatusCreated)

	first := post(r, `{"cards":["x"]}`, nil)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.JSONEq(t, `{"call":1,"bytes":15}`, first.Body.String())

	again := post(r, `{"cards":["x"]}`, nil)
	assert.Equal(t, "true", again.Header().Get(ReplayHeader))

	other := post(r, `{"cards":["y"]}`, nil)
	assert.Empty(t, other.Header().Get(ReplayHeader))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_FailuresAreNotStored(t *testing.T) {
	_, cm := newCacheManager(t)
	var calls int32
	r := idempotentRouter(cm, &calls, http.StatusUnprocessableEntity)

	post(r, `{}`, map[string]string{IdempotencyHeader: "k2"})
	post(r, `{}`, map[string]string{IdempotencyHeader: "k2"})
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	_, cm := newCacheManager(t)
	key, err := requestKey("", httptest.NewRequest(http.MethodPost, "/ingest", nil))
	require.NoError(t, err)

	ok, err := cm.Claim(context.Background(), key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var calls int32
	w := post(idempotentRouter(cm, &calls, http.StatusOK), "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestIdempotency_CacheDownPassesThrough(t *testing.T) {
	mr, cm := newCacheManager(t)
	mr.Close()

	var calls int32
	w := post(idempotentRouter(cm, &calls, http.StatusOK), `{}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIngestAuth(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, Token: "tok", Username: "u", Password: "p"}
	r := gin.New()
	r.POST("/ingest", IngestAuth(cfg), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") }, http.StatusNoContent},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"basic", func(r *http.Request) { r.SetBasicAuth("u", "p") }, http.StatusNoContent},
		{"wrong basic", func(r *http.Request) { r.SetBasicAuth("u", "x") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	t.Run("disabled", func(t *testing.T) {
		open := gin.New()
		open.POST("/ingest", IngestAuth(config.AuthConfig{}), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		open.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ingest", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
