// Package metrics provides Prometheus metrics for the huddle win-probability service.
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

// Manager manages all Prometheus metrics for the huddle service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Packet Pipeline Metrics - The live ingestion path
	packetsProcessed prometheus.Counter
	packetsInvalid   prometheus.Counter
	packetLatency    prometheus.Histogram

	// Smoothing Metrics - Model behavior and state growth
	smoothingUpdates prometheus.Counter
	smoothingStates  prometheus.Gauge
	smoothingLatency prometheus.Histogram

	// Explanation Metrics
	explainSnapshots prometheus.Counter
	explainLatency   prometheus.Histogram

	// Session & Replay Metrics
	sessionsActive    prometheus.Gauge
	sessionsIngested  prometheus.Counter
	ingestDuplicates  prometheus.Counter
	ingestRejected    prometheus.Counter
	replayEvents      *prometheus.CounterVec
	predictionLatency prometheus.Histogram

	// Fanout Metrics - Subscriber delivery health
	subscribersActive   prometheus.Gauge
	broadcasts          prometheus.Counter
	broadcastFailures   prometheus.Counter
	subscriberEvictions prometheus.Counter
	broadcastLatency    prometheus.Histogram

	// Scheduler Metrics - Periodic job health
	jobRuns     *prometheus.CounterVec
	jobFailures *prometheus.CounterVec
	jobLatency  *prometheus.HistogramVec

	// Cache & Audit Metrics
	cacheWrites  prometheus.Counter
	cacheReads   prometheus.Counter
	cacheMisses  prometheus.Counter
	auditAppends prometheus.Counter

	// View Metrics - Read-side analytics store
	viewInserts         prometheus.Counter
	viewRefreshes       prometheus.Counter
	viewRefreshSkipped  prometheus.Counter
	viewRefreshDuration prometheus.Histogram
	viewQueryLatency    prometheus.Histogram

	// Bus Metrics - Pub/sub traffic
	busPublished     prometheus.Counter
	busPublishErrors prometheus.Counter

	// Drift Metrics
	driftChecks  prometheus.Counter
	driftSignals prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "huddle",
		subsystem:        "winprob",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Packet Pipeline Metrics - The live ingestion path
	m.packetsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "packets_processed_total",
		Help:      "Total number of raw packets successfully processed",
	})

	m.packetsInvalid = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "packets_invalid_total",
		Help:      "Total number of packets skipped as malformed or invalid",
	})

	m.packetLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "packet_latency_milliseconds",
		Help:      "End-to-end packet handling latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Smoothing Metrics - Model behavior and state growth
	m.smoothingUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "smoothing_updates_total",
		Help:      "Total number of smoothing model updates",
	})

	m.smoothingStates = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "smoothing_states",
		Help:      "Number of per-contest smoothing states held in memory (never evicted)",
	})

	m.smoothingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "smoothing_latency_milliseconds",
		Help:      "Smoothing model update latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Explanation Metrics
	m.explainSnapshots = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "explain_snapshots_total",
		Help:      "Total number of explanation snapshots computed",
	})

	m.explainLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "explain_latency_milliseconds",
		Help:      "Explanation snapshot computation latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 75, 100, 250, 500, 1000},
	})

	// Session & Replay Metrics
	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_active",
		Help:      "Current number of live replay sessions",
	})

	m.sessionsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_ingested_total",
		Help:      "Total number of game ingestions accepted",
	})

	m.ingestDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_duplicates_total",
		Help:      "Total number of idempotent ingest retries served from existing sessions",
	})

	m.ingestRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_rejected_total",
		Help:      "Total number of ingestions rejected over queue depth capacity",
	})

	m.replayEvents = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "replay_events_total",
			Help:      "Total number of replay events broadcast by event type",
		},
		[]string{"event_type"},
	)

	m.predictionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_latency_milliseconds",
		Help:      "Replay prediction pacing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Fanout Metrics - Subscriber delivery health
	m.subscribersActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscribers_active",
		Help:      "Current number of connected subscribers across all broadcast domains",
	})

	m.broadcasts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_total",
		Help:      "Total number of envelopes broadcast to subscribers",
	})

	m.broadcastFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcast_failures_total",
		Help:      "Total number of failed subscriber deliveries",
	})

	m.subscriberEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscriber_evictions_total",
		Help:      "Total number of subscribers evicted after delivery failure",
	})

	m.broadcastLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcast_latency_milliseconds",
		Help:      "Fanout broadcast latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Scheduler Metrics - Periodic job health
	m.jobRuns = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs by job name",
		},
		[]string{"job"},
	)

	m.jobFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_failures_total",
			Help:      "Total number of scheduled job failures by job name",
		},
		[]string{"job"},
	)

	m.jobLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "job_latency_milliseconds",
			Help:      "Scheduled job run latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"job"},
	)

	// Cache & Audit Metrics
	m.cacheWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_writes_total",
		Help:      "Total number of cache writes",
	})

	m.cacheReads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_reads_total",
		Help:      "Total number of cache reads",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total number of cache reads that found no entry",
	})

	m.auditAppends = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "audit_appends_total",
		Help:      "Total number of packets appended to the audit stream",
	})

	// View Metrics - Read-side analytics store
	m.viewInserts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "view_inserts_total",
		Help:      "Total number of win probability points inserted into the view",
	})

	m.viewRefreshes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "view_refreshes_total",
		Help:      "Total number of materialized view refreshes",
	})

	m.viewRefreshSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "view_refreshes_skipped_total",
		Help:      "Total number of refreshes skipped because nothing changed",
	})

	m.viewRefreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "view_refresh_duration_milliseconds",
		Help:      "Materialized view refresh duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.viewQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "view_query_latency_milliseconds",
		Help:      "Analytics view query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Bus Metrics - Pub/sub traffic
	m.busPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_published_total",
		Help:      "Total number of messages published to the bus",
	})

	m.busPublishErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_publish_errors_total",
		Help:      "Total number of failed bus publishes",
	})

	// Drift Metrics
	m.driftChecks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "drift_checks_total",
		Help:      "Total number of drift checks executed",
	})

	m.driftSignals = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "drift_signals_total",
		Help:      "Total number of drift signals raised",
	})

	// HTTP Performance Metrics - Liveness and websocket upgrade endpoints
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Enhanced Error Metrics - Detailed error tracking
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Packet Pipeline Metrics Functions.

// RecordPacketProcessed increments the processed packets counter.
func RecordPacketProcessed() {
	globalManager.packetsProcessed.Inc()
}

// RecordPacketInvalid increments the invalid packets counter.
func RecordPacketInvalid() {
	globalManager.packetsInvalid.Inc()
}

// RecordPacketLatency records end-to-end packet handling latency in milliseconds.
func RecordPacketLatency(latencyMs float64) {
	globalManager.packetLatency.Observe(latencyMs)
}

// Smoothing Metrics Functions.

// RecordSmoothingUpdate increments the smoothing updates counter.
func RecordSmoothingUpdate() {
	globalManager.smoothingUpdates.Inc()
}

// UpdateSmoothingStates sets the number of per-contest smoothing states.
func UpdateSmoothingStates(count int) {
	globalManager.smoothingStates.Set(float64(count))
}

// RecordSmoothingLatency records smoothing update latency in milliseconds.
func RecordSmoothingLatency(latencyMs float64) {
	globalManager.smoothingLatency.Observe(latencyMs)
}

// Explanation Metrics Functions.

// RecordExplainSnapshot increments the explanation snapshots counter.
func RecordExplainSnapshot() {
	globalManager.explainSnapshots.Inc()
}

// RecordExplainLatency records explanation snapshot latency in milliseconds.
func RecordExplainLatency(latencyMs float64) {
	globalManager.explainLatency.Observe(latencyMs)
}

// Session & Replay Metrics Functions.

// UpdateSessionsActive sets the current number of live sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordSessionIngested increments the accepted ingestions counter.
func RecordSessionIngested() {
	globalManager.sessionsIngested.Inc()
}

// RecordIngestDuplicate increments the idempotent retry counter.
func RecordIngestDuplicate() {
	globalManager.ingestDuplicates.Inc()
}

// RecordIngestRejected increments the capacity rejection counter.
func RecordIngestRejected() {
	globalManager.ingestRejected.Inc()
}

// RecordReplayEvent increments the replay events counter for an event type.
func RecordReplayEvent(eventType string) {
	globalManager.replayEvents.WithLabelValues(eventType).Inc()
}

// RecordPredictionLatency records replay prediction pacing latency in milliseconds.
func RecordPredictionLatency(latencyMs float64) {
	globalManager.predictionLatency.Observe(latencyMs)
}

// Fanout Metrics Functions.

// UpdateSubscribersActive sets the current number of connected subscribers.
func UpdateSubscribersActive(count int) {
	globalManager.subscribersActive.Set(float64(count))
}

// RecordBroadcast increments the broadcasts counter.
func RecordBroadcast() {
	globalManager.broadcasts.Inc()
}

// RecordBroadcastFailure increments the failed deliveries counter.
func RecordBroadcastFailure() {
	globalManager.broadcastFailures.Inc()
}

// RecordSubscriberEviction increments the subscriber evictions counter.
func RecordSubscriberEviction() {
	globalManager.subscriberEvictions.Inc()
}

// RecordBroadcastLatency records fanout broadcast latency in milliseconds.
func RecordBroadcastLatency(latencyMs float64) {
	globalManager.broadcastLatency.Observe(latencyMs)
}

// Scheduler Metrics Functions.

// RecordJobRun increments the run counter for a named job.
func RecordJobRun(job string) {
	globalManager.jobRuns.WithLabelValues(job).Inc()
}

// RecordJobFailure increments the failure counter for a named job.
func RecordJobFailure(job string) {
	globalManager.jobFailures.WithLabelValues(job).Inc()
}

// RecordJobLatency records run latency for a named job in milliseconds.
func RecordJobLatency(job string, latencyMs float64) {
	globalManager.jobLatency.WithLabelValues(job).Observe(latencyMs)
}

// Cache & Audit Metrics Functions.

// RecordCacheWrite increments the cache writes counter.
func RecordCacheWrite() {
	globalManager.cacheWrites.Inc()
}

// RecordCacheRead increments the cache reads counter.
func RecordCacheRead() {
	globalManager.cacheReads.Inc()
}

// RecordCacheMiss increments the cache misses counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordAuditAppend increments the audit stream appends counter.
func RecordAuditAppend() {
	globalManager.auditAppends.Inc()
}

// View Metrics Functions.

// RecordViewInsert increments the view inserts counter.
func RecordViewInsert() {
	globalManager.viewInserts.Inc()
}

// RecordViewRefresh increments the view refreshes counter.
func RecordViewRefresh() {
	globalManager.viewRefreshes.Inc()
}

// RecordViewRefreshSkipped increments the skipped refresh counter.
func RecordViewRefreshSkipped() {
	globalManager.viewRefreshSkipped.Inc()
}

// RecordViewRefreshDuration records view refresh duration in milliseconds.
func RecordViewRefreshDuration(durationMs float64) {
	globalManager.viewRefreshDuration.Observe(durationMs)
}

// RecordViewQueryLatency records analytics query latency in milliseconds.
func RecordViewQueryLatency(latencyMs float64) {
	globalManager.viewQueryLatency.Observe(latencyMs)
}

// Bus Metrics Functions.

// RecordBusPublished increments the published messages counter.
func RecordBusPublished() {
	globalManager.busPublished.Inc()
}

// RecordBusPublishError increments the failed publishes counter.
func RecordBusPublishError() {
	globalManager.busPublishErrors.Inc()
}

// Drift Metrics Functions.

// RecordDriftCheck increments the drift checks counter.
func RecordDriftCheck() {
	globalManager.driftChecks.Inc()
}

// RecordDriftSignal increments the drift signals counter.
func RecordDriftSignal() {
	globalManager.driftSignals.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
