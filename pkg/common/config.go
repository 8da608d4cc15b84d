package common

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultResultKey is the state bag key results are published under.
	DefaultResultKey = "isBot"

	// DefaultCacheCapacity is the maximum number of cached classifications.
	DefaultCacheCapacity = 1000

	// DefaultCacheTTL is how long a cached classification stays valid.
	DefaultCacheTTL = time.Hour

	// DefaultSweepInterval is how often expired cache entries are reclaimed.
	DefaultSweepInterval = 10 * time.Minute

	// MaxUserAgentLength bounds the input handed to the pattern engine.
	MaxUserAgentLength = 2048
)

// Callback is invoked with the request and its classification.
// A returned error aborts the request and is passed to the error handler.
type Callback func(r *http.Request, result Result) error

// BotDetectionConfig configures a BotDetector. All fields are optional.
type BotDetectionConfig struct {
	// AdditionalPatterns are appended after the default signatures.
	AdditionalPatterns []Pattern

	// ExcludedPatterns are removed from the default signatures after being
	// resolved to the signature(s) they correspond to.
	ExcludedPatterns []string

	// ResultKey is where the result is published in the per-request state bag.
	// Defaults to DefaultResultKey.
	ResultKey string

	// CacheEnabled toggles the result cache. A nil value means enabled.
	CacheEnabled *bool

	// CacheCapacity bounds the number of cached results.
	// Values <= 0 use DefaultCacheCapacity, so zero does not mean "cache
	// nothing". Set CacheEnabled to false for that.
	CacheCapacity int

	// CacheTTL is the maximum age of a cached result.
	// Values <= 0 use DefaultCacheTTL.
	CacheTTL time.Duration

	// SweepInterval controls the background removal of expired entries.
	// Zero uses DefaultSweepInterval, a negative value disables the sweep.
	SweepInterval time.Duration

	// OnBotDetected runs after OnEveryRequest for requests classified as bots.
	OnBotDetected Callback

	// OnEveryRequest runs for every request carrying a User-Agent.
	OnEveryRequest Callback

	// ExtractUserAgent overrides how the input string is read from the request.
	// Defaults to the User-Agent header.
	ExtractUserAgent func(r *http.Request) string

	// Classifier replaces the signature matcher entirely.
	// When set, AdditionalPatterns and ExcludedPatterns are ignored.
	Classifier Classifier

	// ErrorHandler handles errors returned by callbacks in the HTTP middleware.
	// If nil, a 500 Internal Server Error response is sent.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	// Clock drives cache expiry and the sweeper. Defaults to the wall clock.
	Clock clock.Clock
}

// IsCacheEnabled returns the effective cache toggle.
func (c *BotDetectionConfig) IsCacheEnabled() bool {
	return c.CacheEnabled == nil || *c.CacheEnabled
}

// HasCustomPatterns returns true if the default signature list is modified.
func (c *BotDetectionConfig) HasCustomPatterns() bool {
	return len(c.AdditionalPatterns) > 0 || len(c.ExcludedPatterns) > 0
}

// WithDefaults returns a copy of the config with every unset field defaulted.
func (c BotDetectionConfig) WithDefaults() BotDetectionConfig {
	if c.ResultKey == "" {
		c.ResultKey = DefaultResultKey
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ExtractUserAgent == nil {
		c.ExtractUserAgent = UserAgentHeader
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// UserAgentHeader reads the User-Agent header, or "" if absent.
func UserAgentHeader(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

// Bool returns a pointer to b, for optional config fields.
func Bool(b bool) *bool {
	return &b
}
