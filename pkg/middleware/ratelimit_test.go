package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/scontext"
)

// mockRateLimiter records the keys it is asked about and returns a fixed verdict.
type mockRateLimiter struct {
	mu        sync.Mutex
	keys      []string
	allowed   bool
	remaining int
	reset     time.Duration
}

func (m *mockRateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.allowed, m.remaining, m.reset
}

func requestWithResult(key string, result common.Result) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(scontext.WithResult(req.Context(), key, result))
}

func botResultNamed(name string) common.Result {
	return common.NewResult(name+"/1.0", []string{name})
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestUberRateLimiter(t *testing.T) {
	limiter := NewUberRateLimiter()

	allowed, remaining, reset := limiter.Allow("bots:googlebot", 2, time.Hour)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
	assert.InDelta(t, float64(30*time.Minute), float64(reset), float64(time.Second))

	_, exists := limiter.limiters.Load("bots:googlebot-2-1h0m0s")
	assert.True(t, exists, "bucket should be stored under the key and rate")

	// The next slot is half an hour away: denied at once instead of waiting.
	start := time.Now()
	allowed, remaining, reset = limiter.Allow("bots:googlebot", 2, time.Hour)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.Greater(t, reset, 29*time.Minute)

	allowed, _, _ = limiter.Allow("bots:bingbot", 2, time.Hour)
	assert.True(t, allowed, "each key has its own bucket")

	assert.Same(t, limiter.getBucket("k", 5, time.Second), limiter.getBucket("k", 5, time.Second))
	assert.NotSame(t, limiter.getBucket("k", 5, time.Second), limiter.getBucket("k", 6, time.Second))
}

func TestUberRateLimiter_FractionalRate(t *testing.T) {
	limiter := NewUberRateLimiter()

	// 90 per minute is one request every 666ms, not one per second.
	allowed, _, reset := limiter.Allow("bots:crawler", 90, time.Minute)
	assert.True(t, allowed)
	assert.Greater(t, reset, 600*time.Millisecond)
	assert.LessOrEqual(t, reset, 667*time.Millisecond)

	allowed, _, _ = limiter.Allow("bots:crawler", 90, time.Minute)
	assert.False(t, allowed)
}

func TestUberRateLimiter_InvalidLimits(t *testing.T) {
	limiter := NewUberRateLimiter()

	allowed, remaining, _ := limiter.Allow("bots:zero", 0, 0)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)
	_, exists := limiter.limiters.Load("bots:zero-1-1s")
	assert.True(t, exists, "limit and window fall back to one per second")
}

func TestBotRateLimit_HumansPassThrough(t *testing.T) {
	limiter := &mockRateLimiter{}
	mw := BotRateLimit(&common.BotRateLimitConfig{BucketName: "bots", Limit: 1, Window: time.Minute}, limiter, nil)

	called := false
	rr := httptest.NewRecorder()
	mw(okHandler(&called)).ServeHTTP(rr, requestWithResult(common.DefaultResultKey, common.NewResult(chromeUA, nil)))
	assert.True(t, called)
	assert.Empty(t, limiter.keys)
	assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))

	called = false
	mw(okHandler(&called)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called, "requests without a classification pass")
	assert.Empty(t, limiter.keys)
}

func TestBotRateLimit_Allowed(t *testing.T) {
	limiter := &mockRateLimiter{allowed: true, remaining: 9}
	mw := BotRateLimit(&common.BotRateLimitConfig{BucketName: "bots", Limit: 10, Window: time.Minute}, limiter, nil)

	called := false
	rr := httptest.NewRecorder()
	mw(okHandler(&called)).ServeHTTP(rr, requestWithResult(common.DefaultResultKey, botResultNamed("Googlebot")))

	assert.True(t, called)
	assert.Equal(t, []string{"bots:googlebot"}, limiter.keys)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
}

func TestBotRateLimit_Exceeded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	limiter := &mockRateLimiter{allowed: false, reset: 200 * time.Millisecond}
	mw := BotRateLimit(&common.BotRateLimitConfig{BucketName: "bots", Limit: 1, Window: time.Second}, limiter, zap.New(core))

	called := false
	rr := httptest.NewRecorder()
	mw(okHandler(&called)).ServeHTTP(rr, requestWithResult(common.DefaultResultKey, botResultNamed("AhrefsBot")))

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"), "Retry-After is at least one second")

	entries := logs.FilterMessage("Bot rate limit exceeded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ahrefsbot", entries[0].ContextMap()["bot_name"])
}

func TestBotRateLimit_ExceededHandlerAndResultKey(t *testing.T) {
	limiter := &mockRateLimiter{allowed: false, reset: 3 * time.Second}
	mw := BotRateLimit(&common.BotRateLimitConfig{
		BucketName: "crawlers",
		Limit:      1,
		Window:     time.Second,
		ResultKey:  "botCheck",
		ExceededHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}),
	}, limiter, nil)

	called := false
	rr := httptest.NewRecorder()
	mw(okHandler(&called)).ServeHTTP(rr, requestWithResult("botCheck", botResultNamed("bingbot")))

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "3", rr.Header().Get("Retry-After"))
	assert.Equal(t, []string{"crawlers:bingbot"}, limiter.keys)
}

func TestBotRateLimit_NilConfigAndLimiter(t *testing.T) {
	called := false
	BotRateLimit(nil, nil, nil)(okHandler(&called)).ServeHTTP(httptest.NewRecorder(), requestWithResult(common.DefaultResultKey, botResultNamed("x")))
	assert.True(t, called)

	assert.Panics(t, func() {
		BotRateLimit(&common.BotRateLimitConfig{Limit: 1, Window: time.Second}, nil, nil)
	})
}

func TestBotRateLimit_WithDetector(t *testing.T) {
	d := newTestDetector(t, common.BotDetectionConfig{})
	limiter := &mockRateLimiter{allowed: true, remaining: 1}

	handler := Chain(
		BotDetection(d),
		BotRateLimit(&common.BotRateLimitConfig{BucketName: "bots", Limit: 2, Window: time.Minute}, limiter, nil),
	)(http.NotFoundHandler())

	handler.ServeHTTP(httptest.NewRecorder(), newUARequest(googlebotUA))
	handler.ServeHTTP(httptest.NewRecorder(), newUARequest(chromeUA))
	handler.ServeHTTP(httptest.NewRecorder(), newUARequest(bingbotUA))

	assert.Equal(t, []string{"bots:googlebot", "bots:bingbot"}, limiter.keys)
}

func TestBotRateLimit_UberLimiterRejectsWithoutDelay(t *testing.T) {
	d := newTestDetector(t, common.BotDetectionConfig{})
	handler := Chain(
		BotDetection(d),
		BotRateLimit(&common.BotRateLimitConfig{BucketName: "bots", Limit: 1, Window: time.Hour}, NewUberRateLimiter(), nil),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newUARequest(googlebotUA))
	assert.Equal(t, http.StatusOK, rr.Code)

	start := time.Now()
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newUARequest(googlebotUA))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 3500)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newUARequest(chromeUA))
	assert.Equal(t, http.StatusOK, rr.Code, "humans are never throttled")
}
