package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func rateLimitedEcho(rps float64, burst int) *echo.Echo {
	e := echo.New()
	e.Use(RateLimiterWithConfig(rps, burst, nil))
	e.GET("/api/accounts", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func doRequest(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	if ip != "" {
		req.Header.Set("X-Real-IP", ip)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_WithinLimit(t *testing.T) {
	e := rateLimitedEcho(10, 20)

	rec := doRequest(e, "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_ExceedsLimit(t *testing.T) {
	e := rateLimitedEcho(1, 1)

	assert.Equal(t, http.StatusOK, doRequest(e, "").Code)

	rec := doRequest(e, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiter_RejectionCarriesRetryAfter(t *testing.T) {
	e := rateLimitedEcho(1, 1)
	doRequest(e, "")

	rec := doRequest(e, "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	e := rateLimitedEcho(1, 1)

	// Exhausting one client's bucket must not touch another's.
	assert.Equal(t, http.StatusOK, doRequest(e, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(e, "10.0.0.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(e, "10.0.0.1").Code)
}

func TestRateLimiter_BurstAllowed(t *testing.T) {
	e := rateLimitedEcho(1, 5)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(e, "").Code, "request %d should pass", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(e, "").Code)
}

func TestIPRateLimiter_SameIPSameBucket(t *testing.T) {
	limiter := NewIPRateLimiter(10, 20)

	first := limiter.GetLimiter("10.0.0.1")
	assert.Same(t, first, limiter.GetLimiter("10.0.0.1"))
	assert.NotSame(t, first, limiter.GetLimiter("10.0.0.2"))
}

func TestIPRateLimiter_EvictIdle(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)

	stale := limiter.GetLimiter("10.0.0.1")
	stale.Allow()

	// An eviction window of zero drops every bucket not used after this
	// instant, so the client comes back with a fresh burst.
	time.Sleep(time.Millisecond)
	limiter.EvictIdle(0)

	fresh := limiter.GetLimiter("10.0.0.1")
	assert.NotSame(t, stale, fresh)
	assert.True(t, fresh.Allow())
}
