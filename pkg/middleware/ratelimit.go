package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/scontext"
)

// UberRateLimiter implements common.RateLimiter using Uber's ratelimit library (leaky bucket).
// Each key is paced at exactly limit requests per window, spaced window/limit
// apart, with no burst allowance. Allow never waits: a request arriving
// before its key's next slot is denied.
type UberRateLimiter struct {
	limiters sync.Map // map[string]*bucket
	mu       sync.Mutex
}

// bucket pairs a limiter with the time its next slot opens, so Take is only
// called when it returns without sleeping.
type bucket struct {
	mu       sync.Mutex
	limiter  ratelimit.Limiter
	interval time.Duration
	next     time.Time
}

// NewUberRateLimiter creates a new rate limiter using Uber's ratelimit library.
func NewUberRateLimiter() *UberRateLimiter {
	return &UberRateLimiter{}
}

// getBucket gets or creates the bucket for the given key and rate.
// The rate is part of the bucket key so one key can be used with several limits.
func (u *UberRateLimiter) getBucket(key string, limit int, window time.Duration) *bucket {
	compositeKey := fmt.Sprintf("%s-%d-%s", key, limit, window)

	if b, ok := u.limiters.Load(compositeKey); ok {
		return b.(*bucket)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if b, ok := u.limiters.Load(compositeKey); ok {
		return b.(*bucket)
	}

	b := &bucket{
		limiter:  ratelimit.New(limit, ratelimit.Per(window), ratelimit.WithoutSlack),
		interval: window / time.Duration(limit),
	}
	u.limiters.Store(compositeKey, b)
	return b
}

// Ensure UberRateLimiter implements the common.RateLimiter interface.
var _ common.RateLimiter = (*UberRateLimiter)(nil)

// Allow checks if a request is allowed based on the key and rate limit config.
// The reset duration is the time until the key's next slot opens.
// A limit below 1 is raised to 1 and a non-positive window is one second.
func (u *UberRateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	b := u.getBucket(key, limit, window)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Before(b.next) {
		return false, 0, b.next.Sub(now)
	}

	// The slot is free, so Take returns without sleeping.
	b.next = b.limiter.Take().Add(b.interval)

	reset := b.next.Sub(now)
	if reset < 0 {
		reset = 0
	}
	return true, limit - 1, reset
}

// BotRateLimit creates a middleware that throttles requests classified as bots,
// keyed by bot name, so every crawler gets its own budget. Human requests and
// requests without a published classification pass through untouched.
// Denied requests are answered at once with 429 and Retry-After; the limiter
// is expected not to block.
//
// BotDetection must run before this middleware.
func BotRateLimit(config *common.BotRateLimitConfig, limiter common.RateLimiter, logger *zap.Logger) Middleware {
	if config == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	if limiter == nil {
		panic("BotRateLimit middleware requires a non-nil RateLimiter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	resultKey := config.ResultKey
	if resultKey == "" {
		resultKey = common.DefaultResultKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := scontext.GetResultFromRequest(r, resultKey)
			if !ok || !result.IsBot {
				next.ServeHTTP(w, r)
				return
			}

			// Match texts keep the input's case; one bot is one bucket.
			key := strings.ToLower(result.Name())
			bucketKey := config.BucketName + ":" + key

			allowed, remaining, reset := limiter.Allow(bucketKey, config.Limit, config.Window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			resetTimestamp := time.Now().Add(reset).Unix()
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTimestamp, 10))

			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfterSeconds := int64(reset.Seconds())
			if retryAfterSeconds < 1 {
				retryAfterSeconds = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))

			logger.Warn("Bot rate limit exceeded",
				zap.String("bucket", config.BucketName),
				zap.String("bot_name", key),
				zap.Int("limit", config.Limit),
				zap.Duration("window", config.Window),
				zap.Duration("reset_duration", reset),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			if config.ExceededHandler != nil {
				config.ExceededHandler.ServeHTTP(w, r)
			} else {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			}
		})
	}
}
