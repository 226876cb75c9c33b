package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a lightweight summary of the collected metrics.
type MetricsSnapshot struct {
	RequestsTotal            uint64  `json:"requests_total"`
	AverageRequestDurationMs float64 `json:"average_request_duration_ms"`
	CacheHits                uint64  `json:"cache_hits"`
	CacheMisses              uint64  `json:"cache_misses"`
	CacheHitRatio            float64 `json:"cache_hit_ratio"`
	JobsSucceeded            uint64  `json:"jobs_succeeded"`
	JobsFailed               uint64  `json:"jobs_failed"`
	Goroutines               int     `json:"goroutines"`
}

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	jobResults      *prometheus.CounterVec
	emailsQueued    *prometheus.CounterVec
	syncUpdates     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	jobSuccessCount      uint64
	jobFailureCount      uint64
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	jobResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_job_attempts_total",
		Help: "Notification job attempts by type and outcome",
	}, []string{"type", "outcome"})

	emailsQueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_queued_total",
		Help: "Emails handed to the notification queue by template",
	}, []string{"template"})

	syncUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prerequisite_sync_updates_total",
		Help: "Application hub flags set by the prerequisite sync",
	}, []string{"flag"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		jobResults, emailsQueued, syncUpdates, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		jobResults:      jobResults,
		emailsQueued:    emailsQueued,
		syncUpdates:     syncUpdates,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveJob records the outcome of one job attempt. It matches the queue's
// result callback signature.
func (m *MetricsService) ObserveJob(jobType string, _ int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		atomic.AddUint64(&m.jobFailureCount, 1)
	} else {
		atomic.AddUint64(&m.jobSuccessCount, 1)
	}
	m.jobResults.WithLabelValues(jobType, outcome).Inc()
}

// RecordEmailQueued counts an email handed to the queue.
func (m *MetricsService) RecordEmailQueued(template string) {
	if m == nil {
		return
	}
	m.emailsQueued.WithLabelValues(template).Inc()
}

// RecordSyncUpdates counts hub flags set by one sync run.
func (m *MetricsService) RecordSyncUpdates(prerequisites, businessLine int) {
	if m == nil {
		return
	}
	m.syncUpdates.WithLabelValues("prerequisites").Add(float64(prerequisites))
	m.syncUpdates.WithLabelValues("business_line").Add(float64(businessLine))
}

// Snapshot returns aggregated counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	snapshot := MetricsSnapshot{
		RequestsTotal: requests,
		CacheHits:     hits,
		CacheMisses:   misses,
		JobsSucceeded: atomic.LoadUint64(&m.jobSuccessCount),
		JobsFailed:    atomic.LoadUint64(&m.jobFailureCount),
		Goroutines:    runtime.NumGoroutine(),
	}
	if total := hits + misses; total > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(total)
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	return snapshot
}
