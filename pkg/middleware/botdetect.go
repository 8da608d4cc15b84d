package middleware

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SBotDetect/pkg/cache"
	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/metrics"
	"github.com/Suhaibinator/SBotDetect/pkg/patterns"
	"github.com/Suhaibinator/SBotDetect/pkg/scontext"
)

// BotDetector classifies requests by User-Agent, caches the results and
// drives the configured callbacks. It is safe for concurrent use.
type BotDetector struct {
	config     common.BotDetectionConfig
	classifier common.Classifier
	cache      *cache.ResultCache // nil when caching is disabled
	logger     *zap.Logger
	recorder   metrics.Recorder

	stopSweeper func()
	closeOnce   sync.Once
}

// NewBotDetector builds a detector from config. The pattern set is computed
// once here. A nil logger disables logging and a nil recorder discards metrics.
func NewBotDetector(config common.BotDetectionConfig, logger *zap.Logger, recorder metrics.Recorder) (*BotDetector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	config = config.WithDefaults()

	classifier, err := buildClassifier(&config, logger)
	if err != nil {
		return nil, err
	}

	d := &BotDetector{
		config:      config,
		classifier:  classifier,
		logger:      logger,
		recorder:    recorder,
		stopSweeper: func() {},
	}

	if config.IsCacheEnabled() {
		d.cache = cache.New(config.CacheCapacity, config.CacheTTL, config.Clock, logger)
		if config.SweepInterval > 0 {
			d.stopSweeper = d.cache.StartSweeper(context.Background(), config.SweepInterval)
		}
	}

	logger.Debug("Bot detector created",
		zap.Bool("cache_enabled", d.cache != nil),
		zap.Int("cache_capacity", config.CacheCapacity),
		zap.Duration("cache_ttl", config.CacheTTL),
		zap.String("result_key", config.ResultKey),
	)
	return d, nil
}

func buildClassifier(config *common.BotDetectionConfig, logger *zap.Logger) (common.Classifier, error) {
	if config.Classifier != nil {
		if config.HasCustomPatterns() {
			logger.Warn("Custom classifier configured, ignoring pattern customizations",
				zap.Int("additional_patterns", len(config.AdditionalPatterns)),
				zap.Int("excluded_patterns", len(config.ExcludedPatterns)),
			)
		}
		return config.Classifier, nil
	}

	if !config.HasCustomPatterns() {
		return patterns.Default().WithLogger(logger), nil
	}

	list, unresolved := patterns.Build(config.AdditionalPatterns, config.ExcludedPatterns)
	for _, token := range unresolved {
		logger.Debug("Excluded pattern matches no bot signature", zap.String("pattern", token))
	}
	m, err := patterns.New(list)
	if err != nil {
		return nil, err
	}
	return m.WithLogger(logger), nil
}

// Config returns the effective configuration.
func (d *BotDetector) Config() common.BotDetectionConfig {
	return d.config
}

// Classify returns the classification of userAgent, consulting and
// populating the cache. Inputs longer than common.MaxUserAgentLength
// characters are truncated first.
func (d *BotDetector) Classify(userAgent string) common.Result {
	result, _ := d.classify(userAgent)
	return result
}

func (d *BotDetector) classify(raw string) (common.Result, metrics.LookupSource) {
	start := d.config.Clock.Now()
	if raw == "" {
		result := common.EmptyResult()
		d.recorder.RecordClassification(result, metrics.SourceEmpty, 0)
		return result, metrics.SourceEmpty
	}

	input := truncate(raw, common.MaxUserAgentLength)

	source := metrics.SourceUncached
	if d.cache != nil {
		if cached, ok := d.cache.Get(input); ok {
			d.recorder.RecordClassification(cached, metrics.SourceCacheHit, d.config.Clock.Since(start))
			return cached, metrics.SourceCacheHit
		}
		source = metrics.SourceCacheMiss
	}

	result := common.NewResult(input, d.classifier.Matches(input))
	if d.cache != nil {
		d.cache.Put(input, result)
		d.recorder.RecordCacheSize(d.cache.Len())
	}
	d.recorder.RecordClassification(result, source, d.config.Clock.Since(start))
	return result, source
}

// Handle classifies r, publishes the result into the request's state bag
// under the configured key, runs the callbacks and then calls proceed.
//
// OnEveryRequest runs first, then OnBotDetected for bots. Requests without a
// User-Agent get an empty result and skip both callbacks. Errors from the
// callbacks or from proceed are returned unchanged, and the published result
// is not rolled back.
func (d *BotDetector) Handle(r *http.Request, proceed func(*http.Request) error) error {
	raw := d.config.ExtractUserAgent(r)
	result, source := d.classify(raw)

	if ctx := scontext.WithResult(r.Context(), d.config.ResultKey, result); ctx != r.Context() {
		r = r.WithContext(ctx)
	}

	if raw == "" {
		return proceed(r)
	}

	d.logger.Debug("Classified request",
		zap.Bool("is_bot", result.IsBot),
		zap.String("bot_name", result.Name()),
		zap.String("source", string(source)),
		zap.String("path", r.URL.Path),
	)

	if d.config.OnEveryRequest != nil {
		if err := d.config.OnEveryRequest(r, result); err != nil {
			d.recorder.RecordCallbackError(metrics.CallbackOnEveryRequest)
			return err
		}
	}
	if result.IsBot && d.config.OnBotDetected != nil {
		if err := d.config.OnBotDetected(r, result); err != nil {
			d.recorder.RecordCallbackError(metrics.CallbackOnBotDetected)
			return err
		}
	}
	return proceed(r)
}

// CacheLen returns the number of cached results, 0 when caching is disabled.
func (d *BotDetector) CacheLen() int {
	if d.cache == nil {
		return 0
	}
	return d.cache.Len()
}

// ClearCache drops every cached result.
func (d *BotDetector) ClearCache() {
	if d.cache != nil {
		d.cache.Clear()
		d.recorder.RecordCacheSize(0)
	}
}

// Close stops the background cache sweeper. The detector keeps working
// afterwards; expired entries are then only removed on lookup.
func (d *BotDetector) Close() {
	d.closeOnce.Do(d.stopSweeper)
}

// BotDetection adapts a BotDetector into a middleware. Callback errors are
// stored as the request's handler error and passed to the configured
// ErrorHandler, which by default logs them and responds with 500.
func BotDetection(detector *BotDetector) Middleware {
	if detector == nil {
		panic("BotDetection middleware requires a non-nil BotDetector")
	}
	errorHandler := detector.config.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			detector.logger.Error("Bot detection callback failed",
				zap.Error(err),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Attach the state bag up front so the error handler sees the published result.
			_, r = scontext.EnsureRequest(r)

			err := detector.Handle(r, func(r *http.Request) error {
				next.ServeHTTP(w, r)
				return nil
			})
			if err != nil {
				scontext.WithHandlerError(r.Context(), err)
				errorHandler(w, r, err)
			}
		})
	}
}

// truncate cuts s to at most limit characters.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
