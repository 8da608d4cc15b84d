// Package common provides shared types and utilities used across the SBotDetect packages.
package common

import (
	"net/http"
	"slices"
	"time"

	"github.com/dlclark/regexp2"
)

// Middleware defines the type for HTTP middleware functions.
// It takes an http.Handler and returns an http.Handler.
type Middleware func(http.Handler) http.Handler

// --- Classification Types ---

// Result is the classification of a single User-Agent string.
// It is a read-only value: the detector and the cache hand out copies.
type Result struct {
	// IsBot reports whether any signature matched.
	IsBot bool `json:"isBot"`

	// BotName is the first matching signature, nil when nothing matched.
	BotName *string `json:"botName"`

	// BotPatterns lists every matching signature in match order.
	// It is never nil so that it serializes as an empty JSON array.
	BotPatterns []string `json:"botPatterns"`

	// UserAgent is the exact (possibly truncated) string that was classified.
	UserAgent string `json:"userAgent"`
}

// NewResult assembles a Result from the signatures matched in userAgent.
// IsBot and BotName are derived from matches so the invariants always hold.
func NewResult(userAgent string, matches []string) Result {
	res := Result{
		UserAgent:   userAgent,
		BotPatterns: []string{},
	}
	if len(matches) > 0 {
		res.IsBot = true
		res.BotPatterns = slices.Clone(matches)
		name := matches[0]
		res.BotName = &name
	}
	return res
}

// EmptyResult is the result published for requests without a User-Agent.
func EmptyResult() Result {
	return NewResult("", nil)
}

// Name returns the bot name, or an empty string when the result is not a bot.
func (r Result) Name() string {
	if r.BotName == nil {
		return ""
	}
	return *r.BotName
}

// Clone returns a deep copy of the result.
func (r Result) Clone() Result {
	out := r
	if r.BotName != nil {
		name := *r.BotName
		out.BotName = &name
	}
	if r.BotPatterns == nil {
		out.BotPatterns = []string{}
	} else {
		out.BotPatterns = slices.Clone(r.BotPatterns)
	}
	return out
}

// Classifier is the pattern-matching capability the detector depends on.
type Classifier interface {
	// IsBot reports whether userAgent matches any known signature.
	IsBot(userAgent string) bool

	// Match returns the first matching signature.
	Match(userAgent string) (string, bool)

	// Matches returns every matching signature in match order.
	Matches(userAgent string) []string
}

// Pattern is a signature supplied by the caller: either a literal string or a
// regular expression source.
type Pattern struct {
	Source string
	Regexp bool
}

// Literal creates a Pattern matching s verbatim.
func Literal(s string) Pattern {
	return Pattern{Source: s}
}

// Regexp creates a Pattern from a regular expression source.
func Regexp(source string) Pattern {
	return Pattern{Source: source, Regexp: true}
}

// CompiledRegexp creates a Pattern from an already compiled expression.
func CompiledRegexp(re *regexp2.Regexp) Pattern {
	return Pattern{Source: re.String(), Regexp: true}
}

// Expr resolves the pattern to a single regular expression source.
func (p Pattern) Expr() string {
	if p.Regexp {
		return p.Source
	}
	return regexp2.Escape(p.Source)
}

// --- Rate Limiting Types ---

// RateLimiter defines the interface for rate limiting algorithms.
type RateLimiter interface {
	// Allow checks if a request is allowed based on the key and rate limit config.
	// Returns true if the request is allowed, false otherwise.
	// Also returns the number of remaining requests and the approximate time until the limit resets.
	Allow(key string, limit int, window time.Duration) (allowed bool, remaining int, reset time.Duration)
}

// BotRateLimitConfig defines how requests classified as bots are throttled.
type BotRateLimitConfig struct {
	// BucketName provides a namespace for the rate limit.
	BucketName string

	// Limit is the maximum number of requests per bot name allowed within the Window.
	Limit int

	// Window is the time duration for the rate limit (e.g., 1*time.Minute).
	Window time.Duration

	// ResultKey is the state bag key the BotDetection middleware published under.
	// Defaults to DefaultResultKey.
	ResultKey string

	// ExceededHandler is an optional http.Handler to call when the rate limit is exceeded.
	// If nil, a default 429 Too Many Requests response is sent.
	ExceededHandler http.Handler
}
