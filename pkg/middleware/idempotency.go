package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gilby125/flight-offers-harvester/pkg/cache"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	// IdempotencyHeader carries the client supplied idempotency key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayHeader is set on responses served from a stored result.
	ReplayHeader = "Idempotent-Replay"
)

// IdempotencyConfig holds idempotency middleware configuration
type IdempotencyConfig struct {
	TTL       time.Duration
	ClaimTTL  time.Duration // how long an in-flight request holds its key
	KeyPrefix string
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// StoredResponse is the first successful response recorded for a key.
type StoredResponse struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Idempotency replays the first 2xx response for a repeated request. The key
// is the Idempotency-Key header, or the SHA-256 of the body when the header
// is absent. A repeat that arrives while the first request is still running
// gets 409. Cache failures degrade to plain pass-through.
func Idempotency(cacheManager *cache.CacheManager, config IdempotencyConfig) gin.HandlerFunc {
	if config.TTL <= 0 {
		config.TTL = cache.LongTTL
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = cache.ShortTTL
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key, err := requestKey(config.KeyPrefix, c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log := logger.WithField("idempotency_key", key)
		ctx := c.Request.Context()

		var stored StoredResponse
		err = cacheManager.GetJSON(ctx, key, &stored)
		switch {
		case err == nil && stored.StatusCode == 0:
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is still in progress"})
			return
		case err == nil:
			log.Debug("Replaying stored response")
			for k, v := range stored.Headers {
				c.Header(k, v)
			}
			c.Header(ReplayHeader, "true")
			c.Data(stored.StatusCode, stored.ContentType, stored.Body)
			c.Abort()
			return
		case !errors.Is(err, cache.ErrCacheMiss):
			log.Error(err, "Idempotency lookup failed")
			c.Next()
			return
		}

		claimed, err := cacheManager.Claim(ctx, key, config.ClaimTTL)
		if err != nil {
			log.Error(err, "Idempotency claim failed")
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is still in progress"})
			return
		}

		body := &bytes.Buffer{}
		c.Writer = &responseWriter{ResponseWriter: c.Writer, body: body}

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			if err := cacheManager.Release(ctx, key); err != nil {
				log.Error(err, "Idempotency release failed")
			}
			return
		}

		resp := StoredResponse{
			StatusCode:  status,
			Headers:     make(map[string]string),
			Body:        body.Bytes(),
			ContentType: c.Writer.Header().Get("Content-Type"),
			StoredAt:    time.Now().UTC(),
		}
		for k, values := range c.Writer.Header() {
			if len(values) > 0 && shouldStoreHeader(k) {
				resp.Headers[k] = values[0]
			}
		}
		if err := cacheManager.SetJSON(ctx, key, resp, config.TTL); err != nil {
			log.Error(err, "Failed to store idempotent response")
		}
	}
}

// requestKey derives the cache key for req, restoring the body it reads.
func requestKey(prefix string, req *http.Request) (string, error) {
	id := strings.TrimSpace(req.Header.Get(IdempotencyHeader))
	if id == "" {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
		sum := sha256.Sum256(data)
		id = "body-" + hex.EncodeToString(sum[:])
	}

	key := cache.IdempotencyKey(req.URL.Path + ":" + id)
	if prefix != "" {
		key = prefix + ":" + key
	}
	return key, nil
}

func shouldStoreHeader(header string) bool {
	switch strings.ToLower(header) {
	case "content-type", "content-encoding", "x-run-id":
		return true
	}
	return false
}
