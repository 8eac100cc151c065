// Package metrics provides Prometheus metrics for the rankboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for orphan removal sources.
const (
	SourceUpdate    = "update"
	SourceRemove    = "remove"
	SourceReconcile = "reconcile"
	SourceRead      = "read"
)

// Manager manages all Prometheus metrics for the rankboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Core business metrics
	pointsUpdates      *prometheus.CounterVec
	pointsUpdateErrors *prometheus.CounterVec
	rankQueries        *prometheus.CounterVec
	leaderboards       prometheus.Gauge

	// Rank index maintenance
	orphansRemoved   *prometheus.CounterVec
	indexConflicts   prometheus.Counter
	cleanupsDeferred prometheus.Counter
	indexHealed      prometheus.Counter

	// Reconciliation
	reconcileRuns     prometheus.Counter
	reconcileErrors   prometheus.Counter
	reconcileDuration prometheus.Histogram
	reconcileRemoved  prometheus.Counter
	reconcileRepaired prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Sweep queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueEnqueueErrors      *prometheus.CounterVec
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rankboard",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.pointsUpdates = m.counterVec("points_updates_total", "Points mutations applied, by action", "action")
	m.pointsUpdateErrors = m.counterVec("points_update_errors_total", "Points mutations that failed, by error kind", "kind")
	m.rankQueries = m.counterVec("rank_queries_total", "Rank read operations, by query kind", "kind")
	m.leaderboards = m.gauge("leaderboards", "Leaderboards seen by the last reconciliation pass")

	m.orphansRemoved = m.counterVec("orphan_scores_removed_total", "Orphaned scores removed from the distinct-score index, by source", "source")
	m.indexConflicts = m.counter("index_conflicts_total", "Optimistic index commits aborted because the watched key changed")
	m.cleanupsDeferred = m.counter("orphan_cleanups_deferred_total", "Orphan removals abandoned after exhausting retries and left to reconciliation")
	m.indexHealed = m.counter("index_read_heals_total", "Scores found missing from the index at read time and re-added")

	m.reconcileRuns = m.counter("reconcile_runs_total", "Completed reconciliation passes")
	m.reconcileErrors = m.counter("reconcile_errors_total", "Leaderboard sweeps that failed during reconciliation")
	m.reconcileDuration = m.histogram("reconcile_duration_milliseconds", "Reconciliation pass duration in milliseconds")
	m.reconcileRemoved = m.counter("reconcile_removed_total", "Orphaned scores removed by reconciliation")
	m.reconcileRepaired = m.counter("reconcile_repaired_total", "Missing scores re-added to the index by reconciliation")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Backing store operation latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Backing store operation failures", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.queueSize = m.gauge("sweep_queue_size", "Current number of queued leaderboard sweeps")
	m.queueCapacity = m.gauge("sweep_queue_capacity", "Capacity of the sweep queue")
	m.queueEnqueued = m.counter("sweep_queue_enqueued_total", "Leaderboard sweeps enqueued")
	m.queueEnqueueErrors = m.counterVec("sweep_queue_enqueue_errors_total", "Leaderboard sweeps rejected by the queue", "reason")
	m.workerActiveCount = m.gauge("sweep_workers", "Number of sweep workers")
	m.workerProcessingLatency = m.histogram("sweep_latency_milliseconds", "Single leaderboard sweep latency in milliseconds")
	m.workerErrors = m.counter("sweep_worker_errors_total", "Sweeps that returned an error")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordPointsUpdate counts an applied mutation.
func RecordPointsUpdate(action string) {
	globalManager.pointsUpdates.WithLabelValues(action).Inc()
}

// RecordPointsUpdateError counts a failed mutation.
func RecordPointsUpdateError(kind string) {
	globalManager.pointsUpdateErrors.WithLabelValues(kind).Inc()
}

// RecordRankQuery counts a read; kind is "leaderboard" or "member".
func RecordRankQuery(kind string) {
	globalManager.rankQueries.WithLabelValues(kind).Inc()
}

// UpdateLeaderboards sets the number of known leaderboards.
func UpdateLeaderboards(count int) {
	globalManager.leaderboards.Set(float64(count))
}

// RecordOrphanRemoved counts an orphaned score removal.
func RecordOrphanRemoved(source string) {
	globalManager.orphansRemoved.WithLabelValues(source).Inc()
}

// RecordIndexConflict counts an aborted optimistic commit.
func RecordIndexConflict() {
	globalManager.indexConflicts.Inc()
}

// RecordCleanupDeferred counts an orphan removal left to reconciliation.
func RecordCleanupDeferred() {
	globalManager.cleanupsDeferred.Inc()
}

// RecordIndexHealed counts a read-side index repair.
func RecordIndexHealed() {
	globalManager.indexHealed.Inc()
}

// RecordReconcileRun records a completed reconciliation pass.
func RecordReconcileRun(durationMs float64, removed, repaired int) {
	globalManager.reconcileRuns.Inc()
	globalManager.reconcileDuration.Observe(durationMs)
	globalManager.reconcileRemoved.Add(float64(removed))
	globalManager.reconcileRepaired.Add(float64(repaired))
}

// RecordReconcileError counts a failed leaderboard sweep.
func RecordReconcileError() {
	globalManager.reconcileErrors.Inc()
}

// RecordStoreLatency records a backing store round-trip.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a backing store failure.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateQueueSize sets the current sweep queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the sweep queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted sweep.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError counts a rejected sweep.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of sweep workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records a single sweep duration.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed sweep.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// Configure rebuilds the global manager with opts on a fresh registry. Call it
// once at startup, before anything records or serves metrics.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
