// Package metrics provides Prometheus metrics for the picklist ranking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the picklist service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	latencyBuckets   []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Request metrics
	requestsTotal     *prometheus.CounterVec
	requestsCoalesced prometheus.Counter
	requestDuration   prometheus.Histogram

	// Batch metrics
	batchesProcessed prometheus.Counter
	batchesFailed    prometheus.Counter
	batchLatency     prometheus.Histogram
	batchSize        prometheus.Histogram

	// Model metrics
	modelCalls       *prometheus.CounterVec
	modelLatency     prometheus.Histogram
	modelRetries     prometheus.Counter
	modelTokens      *prometheus.CounterVec
	fallbackTeams    *prometheus.CounterVec
	driftOffset      prometheus.Histogram
	missingRecovered prometheus.Counter

	// Cache metrics
	cacheEntries  *prometheus.GaugeVec
	cacheEvicted  prometheus.Counter
	stalledGauge  prometheus.Gauge
	cacheOpErrors *prometheus.CounterVec

	// Queue and worker metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected prometheus.Counter
	workerCount   prometheus.Gauge
	workerBusy    prometheus.Gauge
	jobLatency    prometheus.Histogram
	jobsCanceled  prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "picklist",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		latencyBuckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.requestsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "requests_total",
		Help:      "Picklist generate requests by outcome",
	}, []string{"outcome"})

	m.requestsCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "requests_coalesced_total",
		Help:      "Generate requests answered from an existing cache entry",
	})

	m.requestDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "request_duration_milliseconds",
		Help:      "End-to-end duration of a ranking job in milliseconds",
		Buckets:   m.latencyBuckets,
	})

	m.batchesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_processed_total",
		Help:      "Batches ranked by the model",
	})

	m.batchesFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_failed_total",
		Help:      "Batches that exhausted their retry budget",
	})

	m.batchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_latency_milliseconds",
		Help:      "Latency of one batch including retries in milliseconds",
		Buckets:   m.latencyBuckets,
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_teams",
		Help:      "Number of teams sent to the model per batch (members plus references)",
		Buckets:   []float64{1, 5, 10, 15, 20, 30, 50, 75, 100},
	})

	m.modelCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_calls_total",
		Help:      "Ranking model calls by result",
	}, []string{"result"})

	m.modelLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_latency_milliseconds",
		Help:      "Latency of a single ranking model call in milliseconds",
		Buckets:   m.latencyBuckets,
	})

	m.modelRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_retries_total",
		Help:      "Retries of ranking model calls",
	})

	m.modelTokens = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_tokens_total",
		Help:      "Tokens consumed by the ranking model",
	}, []string{"direction"})

	m.fallbackTeams = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fallback_teams_total",
		Help:      "Teams scored with the heuristic fallback, by reason",
	}, []string{"reason"})

	m.driftOffset = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "drift_offset_points",
		Help:      "Absolute reference-team drift offset per batch, in score points",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
	})

	m.missingRecovered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "missing_recovered_total",
		Help:      "Fallback teams replaced by a model score on a rank-missing pass",
	})

	m.cacheEntries = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_entries",
		Help:      "Cache entries by status",
	}, []string{"status"})

	m.cacheEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_evicted_total",
		Help:      "Terminal cache entries evicted after their TTL",
	})

	m.stalledGauge = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stalled_entries",
		Help:      "Processing entries without progress within the stall timeout",
	})

	m.cacheOpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_errors_total",
		Help:      "Cache store operation failures by operation",
	}, []string{"op"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Jobs waiting for a worker",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum jobs the queue accepts",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_rejected_total",
		Help:      "Jobs rejected because the queue was full or closed",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Configured ranking workers",
	})

	m.workerBusy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_busy",
		Help:      "Workers currently running a job",
	})

	m.jobLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_wait_milliseconds",
		Help:      "Time a job waited in the queue in milliseconds",
		Buckets:   m.latencyBuckets,
	})

	m.jobsCanceled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "jobs_canceled_total",
		Help:      "Jobs abandoned through cancellation",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_errors_total",
		Help:      "HTTP errors by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_bytes",
		Help:      "Allocated heap bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_milliseconds",
		Help:      "Average GC pause in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
}

// Request Metrics Functions.

// RecordRequest counts a generate request by outcome (success, error, batched, coalesced, rejected).
func RecordRequest(outcome string) {
	globalManager.requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordRequestCoalesced counts a request served by an existing entry.
func RecordRequestCoalesced() {
	globalManager.requestsCoalesced.Inc()
}

// RecordRequestDuration records the end-to-end job duration.
func RecordRequestDuration(latencyMs float64) {
	globalManager.requestDuration.Observe(latencyMs)
}

// Batch Metrics Functions.

// RecordBatchProcessed counts a successfully ranked batch.
func RecordBatchProcessed(teams int, latencyMs float64) {
	globalManager.batchesProcessed.Inc()
	globalManager.batchSize.Observe(float64(teams))
	globalManager.batchLatency.Observe(latencyMs)
}

// RecordBatchFailed counts a batch that failed after retries.
func RecordBatchFailed() {
	globalManager.batchesFailed.Inc()
}

// RecordDriftOffset records the absolute drift correction applied to a batch.
func RecordDriftOffset(offset float64) {
	if offset < 0 {
		offset = -offset
	}
	globalManager.driftOffset.Observe(offset)
}

// Model Metrics Functions.

// RecordModelCall records one model call with its result label and latency.
func RecordModelCall(result string, latencyMs float64) {
	globalManager.modelCalls.WithLabelValues(result).Inc()
	globalManager.modelLatency.Observe(latencyMs)
}

// RecordModelRetry counts a retried model call.
func RecordModelRetry() {
	globalManager.modelRetries.Inc()
}

// RecordModelTokens adds consumed input and output tokens.
func RecordModelTokens(input, output int64) {
	globalManager.modelTokens.WithLabelValues("input").Add(float64(input))
	globalManager.modelTokens.WithLabelValues("output").Add(float64(output))
}

// RecordFallbackTeams counts teams that received a heuristic fallback score.
func RecordFallbackTeams(reason string, n int) {
	if n <= 0 {
		return
	}
	globalManager.fallbackTeams.WithLabelValues(reason).Add(float64(n))
}

// RecordMissingRecovered counts fallbacks replaced on a rank-missing pass.
func RecordMissingRecovered(n int) {
	globalManager.missingRecovered.Add(float64(n))
}

// Cache Metrics Functions.

// UpdateCacheEntries sets the number of cache entries with the given status.
func UpdateCacheEntries(status string, count int) {
	globalManager.cacheEntries.WithLabelValues(status).Set(float64(count))
}

// RecordCacheEvicted counts evicted cache entries.
func RecordCacheEvicted(n int) {
	globalManager.cacheEvicted.Add(float64(n))
}

// UpdateStalledEntries sets the number of stalled entries.
func UpdateStalledEntries(count int) {
	globalManager.stalledGauge.Set(float64(count))
}

// RecordCacheError counts a failed store operation.
func RecordCacheError(op string) {
	globalManager.cacheOpErrors.WithLabelValues(op).Inc()
}

// Queue and Worker Metrics Functions.

// UpdateQueueSize sets the current number of queued jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a rejected job.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// UpdateWorkerCount sets the number of configured workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy adjusts the busy worker gauge by delta.
func AddWorkerBusy(delta int) {
	globalManager.workerBusy.Add(float64(delta))
}

// RecordJobWait records how long a job waited for a worker.
func RecordJobWait(latencyMs float64) {
	globalManager.jobLatency.Observe(latencyMs)
}

// RecordJobCanceled counts a canceled job.
func RecordJobCanceled() {
	globalManager.jobsCanceled.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
