// Package metrics provides an interface-based metrics system for SBotDetect.
// The detector reports what it does through a Recorder, and users plug in the
// implementation of their choice (see the prometheus subpackage).
package metrics

import (
	"time"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
)

// LookupSource describes where a classification came from.
type LookupSource string

const (
	// SourceCacheHit means the result was served from the cache.
	SourceCacheHit LookupSource = "hit"

	// SourceCacheMiss means the cache was consulted but the result had to be computed.
	SourceCacheMiss LookupSource = "miss"

	// SourceUncached means caching is disabled for the detector.
	SourceUncached LookupSource = "uncached"

	// SourceEmpty means the request had no User-Agent to classify.
	SourceEmpty LookupSource = "empty"
)

// Callback names reported to RecordCallbackError.
const (
	CallbackOnEveryRequest = "on_every_request"
	CallbackOnBotDetected  = "on_bot_detected"
)

// Recorder receives the detector's measurements. Implementations must be safe
// for concurrent use.
type Recorder interface {
	// RecordClassification is called once per classified input.
	RecordClassification(result common.Result, source LookupSource, duration time.Duration)

	// RecordCacheSize reports the number of cached entries after a lookup.
	RecordCacheSize(entries int)

	// RecordCallbackError is called when a callback returns an error.
	RecordCallbackError(callback string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

// Ensure NopRecorder implements the Recorder interface.
var _ Recorder = NopRecorder{}

func (NopRecorder) RecordClassification(common.Result, LookupSource, time.Duration) {}
func (NopRecorder) RecordCacheSize(int)                                            {}
func (NopRecorder) RecordCallbackError(string)                                     {}

// Classification returns the label value used for a result: "bot" or "human".
func Classification(result common.Result) string {
	if result.IsBot {
		return "bot"
	}
	return "human"
}
