package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowAndRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d is within the burst", i)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are limited independently")
	assert.Equal(t, 0, rl.Remaining("a"))

	now = now.Add(21 * time.Second)
	assert.True(t, rl.Allow("a"), "one token refills every window/limit")
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(3 * time.Minute)
	rl.Allow("active")
	rl.evictIdle()

	assert.NotContains(t, rl.clients, "idle")
	assert.Contains(t, rl.clients, "active")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	r := newTestRouter(RateLimit(rl))
	headers := map[string]string{TenantHeaderKey: "t1"}

	w := serve(r, http.MethodGet, "/api/v1/sync/metrics", headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	serve(r, http.MethodGet, "/api/v1/sync/metrics", headers)
	w = serve(r, http.MethodGet, "/api/v1/sync/metrics", headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = serve(r, http.MethodGet, "/api/v1/sync/metrics", map[string]string{TenantHeaderKey: "t2"})
	assert.Equal(t, http.StatusOK, w.Code, "another tenant has its own bucket")
}

func TestRateLimitByKey(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	r := newTestRouter(RateLimitByKey(rl, func(*gin.Context) string { return "global" }))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/sync/metrics", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/api/v1/sync/metrics", nil).Code)
}
