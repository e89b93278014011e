// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RequestsTotal      *prometheus.CounterVec // labels: kind, outcome
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	DedupShares        prometheus.Counter
	RateLimitDenials   *prometheus.CounterVec // labels: scope (user|global)
	UpstreamRequests   *prometheus.CounterVec // labels: op, class
	RelayUploads       *prometheus.CounterVec // labels: outcome
	TranscriptFailures prometheus.Counter

	// Histograms (seconds)
	UpstreamDuration *prometheus.HistogramVec // labels: op
	PipelineDuration prometheus.Observer

	// Gauges
	InFlightGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ask_requests_total", Help: "Commands processed by kind and outcome"}, []string{"kind", "outcome"})
		CacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "ask_cache_hits_total", Help: "Responses served from the cache"})
		CacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "ask_cache_misses_total", Help: "Requests that went upstream"})
		DedupShares = promauto.NewCounter(prometheus.CounterOpts{Name: "ask_dedup_shares_total", Help: "Requests that piggybacked on an identical in-flight call"})
		RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ask_rate_limit_denials_total", Help: "Admissions denied by scope"}, []string{"scope"})
		UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ask_upstream_requests_total", Help: "Upstream AI attempts by op and result class"}, []string{"op", "class"})
		RelayUploads = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ask_relay_uploads_total", Help: "Image host uploads by outcome"}, []string{"outcome"})
		TranscriptFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "ask_transcript_failures_total", Help: "Chat transcript insert failures"})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "ask_upstream_duration_seconds", Help: "Upstream attempt duration seconds", Buckets: prometheus.DefBuckets}, []string{"op"})
		PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ask_pipeline_duration_seconds", Help: "End-to-end command handling duration seconds", Buckets: prometheus.DefBuckets})
		InFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ask_pipelines_in_flight", Help: "Currently running pipeline instances"})
	})
}

// ObserveUpstream records one upstream attempt. Safe before Init.
func ObserveUpstream(op, class string, d time.Duration) {
	if UpstreamRequests != nil {
		UpstreamRequests.WithLabelValues(op, class).Inc()
	}
	if UpstreamDuration != nil {
		UpstreamDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// CountRequest records a finished command. Safe before Init.
func CountRequest(kind, outcome string) {
	if RequestsTotal != nil {
		RequestsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// CountDenial records a rate-limit denial for a scope. Safe before Init.
func CountDenial(scope string) {
	if RateLimitDenials != nil {
		RateLimitDenials.WithLabelValues(scope).Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
