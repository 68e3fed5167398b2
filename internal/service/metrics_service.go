package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	ledgerDuration  *prometheus.HistogramVec
	uploadDuration  *prometheus.HistogramVec
	uploadBytes     prometheus.Counter
	refreshJobs     *prometheus.CounterVec
	ledgerEvents    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	ledgerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_call_duration_seconds",
		Help:    "Duration of ledger reads and finalised transactions",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "outcome"})

	uploadDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storage_upload_duration_seconds",
		Help:    "Duration of encrypted uploads including authentication",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})

	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storage_upload_bytes_total",
		Help: "Plaintext bytes uploaded to content storage",
	})

	refreshJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "view_refresh_jobs_total",
		Help: "View refresh jobs by outcome",
	}, []string{"outcome"})

	ledgerEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_total",
		Help: "Ledger events observed by the watcher",
	}, []string{"event"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of journal queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		ledgerDuration, uploadDuration, uploadBytes, refreshJobs, ledgerEvents, dbQueryDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		ledgerDuration:  ledgerDuration,
		uploadDuration:  uploadDuration,
		uploadBytes:     uploadBytes,
		refreshJobs:     refreshJobs,
		ledgerEvents:    ledgerEvents,
		dbQueryDuration: dbQueryDuration,
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

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveLedgerCall records a ledger read or transaction.
func (m *MetricsService) ObserveLedgerCall(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerDuration.WithLabelValues(method, outcomeLabel(err)).Observe(duration.Seconds())
}

// ObserveUpload records an upload attempt.
func (m *MetricsService) ObserveUpload(err error, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.uploadDuration.WithLabelValues(outcomeLabel(err)).Observe(duration.Seconds())
	if err == nil && bytes > 0 {
		m.uploadBytes.Add(float64(bytes))
	}
}

// RecordRefreshJob counts processed refresh jobs.
func (m *MetricsService) RecordRefreshJob(err error) {
	if m == nil {
		return
	}
	m.refreshJobs.WithLabelValues(outcomeLabel(err)).Inc()
}

// RecordLedgerEvent counts a watched ledger event.
func (m *MetricsService) RecordLedgerEvent(name string) {
	if m == nil {
		return
	}
	m.ledgerEvents.WithLabelValues(name).Inc()
}

// ObserveDBQuery records journal query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
