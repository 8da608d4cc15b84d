// Package prometheus adapts the metrics.Recorder interface to Prometheus collectors.
package prometheus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/metrics"
)

// Options configure the collector names.
type Options struct {
	Namespace string
	Subsystem string

	// ConstLabels are attached to every collector.
	ConstLabels prometheus.Labels

	// Buckets for the classification duration histogram, in seconds.
	// Defaults to prometheus.ExponentialBuckets(0.00001, 4, 10).
	Buckets []float64
}

// Recorder records detector measurements into Prometheus collectors.
type Recorder struct {
	requests       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	cacheEntries   prometheus.Gauge
	callbackErrors *prometheus.CounterVec
}

// Ensure Recorder implements the metrics.Recorder interface.
var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with registry.
// Collectors that are already registered under the same descriptor are reused,
// so several detectors can share one registry.
func NewRecorder(registry prometheus.Registerer, opts Options) (*Recorder, error) {
	if registry == nil {
		panic("prometheus registry cannot be nil")
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.ExponentialBuckets(0.00001, 4, 10)
	}

	r := &Recorder{}
	var err error

	r.requests, err = register(registry, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        "requests_total",
		Help:        "Classified requests by outcome.",
		ConstLabels: opts.ConstLabels,
	}, []string{"classification"}))
	if err != nil {
		return nil, err
	}

	r.cacheLookups, err = register(registry, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        "cache_lookups_total",
		Help:        "Result cache lookups by source.",
		ConstLabels: opts.ConstLabels,
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	r.duration, err = register(registry, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        "classification_duration_seconds",
		Help:        "Time spent producing a classification, cache lookup included.",
		ConstLabels: opts.ConstLabels,
		Buckets:     opts.Buckets,
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	r.cacheEntries, err = register(registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        "cache_entries",
		Help:        "Entries currently held by the result cache.",
		ConstLabels: opts.ConstLabels,
	}))
	if err != nil {
		return nil, err
	}

	r.callbackErrors, err = register(registry, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        "callback_errors_total",
		Help:        "Errors returned by detection callbacks.",
		ConstLabels: opts.ConstLabels,
	}, []string{"callback"}))
	if err != nil {
		return nil, err
	}

	return r, nil
}

// register registers c, returning the existing collector if an identical one
// is already registered.
func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// RecordClassification counts the request and observes the lookup duration.
func (r *Recorder) RecordClassification(result common.Result, source metrics.LookupSource, duration time.Duration) {
	r.requests.WithLabelValues(metrics.Classification(result)).Inc()
	r.duration.WithLabelValues(string(source)).Observe(duration.Seconds())
	if source == metrics.SourceCacheHit || source == metrics.SourceCacheMiss {
		r.cacheLookups.WithLabelValues(string(source)).Inc()
	}
}

// RecordCacheSize sets the cache_entries gauge.
func (r *Recorder) RecordCacheSize(entries int) {
	r.cacheEntries.Set(float64(entries))
}

// RecordCallbackError counts a failed callback.
func (r *Recorder) RecordCallbackError(callback string) {
	r.callbackErrors.WithLabelValues(callback).Inc()
}
