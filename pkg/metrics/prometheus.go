// Package metrics provides Prometheus metrics for the segmentation
// evaluation service.
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

// Millisecond-oriented latency buckets. Evaluating a large volume set
// can take seconds, so the tail stretches further than DefBuckets.
var defaultLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Manager manages all Prometheus metrics for the evaluation service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Core Business Metrics - Submission flow
	submissionsReceived  prometheus.Counter
	submissionsDuplicate prometheus.Counter
	submissionsBusy      prometheus.Counter
	evaluationOutcomes   *prometheus.CounterVec
	evaluationLatency    prometheus.Histogram

	// Scoring Metrics
	subjectScoreLatency prometheus.Histogram
	subjectsScored      prometheus.Counter
	validationFailures  *prometheus.CounterVec

	// Leaderboard Metrics - Store health and competition activity
	leaderboardImprovements prometheus.Counter
	leaderboardSize         prometheus.Gauge
	storeUpdateLatency      prometheus.Histogram
	storeQueryLatency       prometheus.Histogram
	storePersistRetries     prometheus.Counter
	storePersistFailures    prometheus.Counter
	storeSnapshotCount      prometheus.Counter
	storeSnapshotLastUnix   prometheus.Gauge

	// Reference Metrics
	referenceSubjects     prometheus.Gauge
	referenceLoadDuration prometheus.Gauge

	// Capacity Metrics
	evaluationSlots     prometheus.Gauge
	evaluationsInFlight prometheus.Gauge
	resultCacheSize     prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorsByComponent *prometheus.CounterVec

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
		namespace:        "segrank",
		subsystem:        "eval",
		histogramBuckets: defaultLatencyBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
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

// RefreshInterval reports how often gauge metrics should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Core Business Metrics - Submission flow
	m.submissionsReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "submissions_received_total",
		Help:        "Total number of submissions received",
		ConstLabels: m.customLabels,
	})

	m.submissionsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "submissions_duplicate_total",
		Help:        "Total number of submissions served from the result cache",
		ConstLabels: m.customLabels,
	})

	m.submissionsBusy = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "submissions_rejected_busy_total",
		Help:        "Total number of submissions rejected because all evaluation slots were occupied",
		ConstLabels: m.customLabels,
	})

	m.evaluationOutcomes = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "evaluations_total",
			Help:        "Total number of evaluations by outcome",
			ConstLabels: m.customLabels,
		},
		[]string{"outcome"},
	)

	m.evaluationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "evaluation_latency_milliseconds",
		Help:        "End-to-end evaluation latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	// Scoring Metrics
	m.subjectScoreLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "subject_score_latency_milliseconds",
		Help:        "Per-subject macro Dice computation latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.subjectsScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "subjects_scored_total",
		Help:        "Total number of per-subject scores computed",
		ConstLabels: m.customLabels,
	})

	m.validationFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "validation_failures_total",
			Help:        "Total number of rejected submissions by failure kind",
			ConstLabels: m.customLabels,
		},
		[]string{"kind"},
	)

	// Leaderboard Metrics
	m.leaderboardImprovements = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "leaderboard_improvements_total",
		Help:        "Total number of submissions that raised a stored best score",
		ConstLabels: m.customLabels,
	})

	m.leaderboardSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "leaderboard_size",
		Help:        "Number of names currently on the leaderboard",
		ConstLabels: m.customLabels,
	})

	m.storeUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_update_latency_milliseconds",
		Help:        "Leaderboard update latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_query_latency_milliseconds",
		Help:        "Leaderboard query latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.storePersistRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_persist_retries_total",
		Help:        "Total number of retried leaderboard file operations",
		ConstLabels: m.customLabels,
	})

	m.storePersistFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_persist_failures_total",
		Help:        "Total number of leaderboard file operations that failed after retries",
		ConstLabels: m.customLabels,
	})

	m.storeSnapshotCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_snapshot_count_total",
		Help:        "Total number of leaderboard snapshots published",
		ConstLabels: m.customLabels,
	})

	m.storeSnapshotLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_snapshot_last_unix",
		Help:        "Unix timestamp of the last leaderboard snapshot publish",
		ConstLabels: m.customLabels,
	})

	// Reference Metrics
	m.referenceSubjects = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "reference_subjects",
		Help:        "Number of subjects in the loaded reference set",
		ConstLabels: m.customLabels,
	})

	m.referenceLoadDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "reference_load_duration_milliseconds",
		Help:        "Time spent loading the reference archive at startup",
		ConstLabels: m.customLabels,
	})

	// Capacity Metrics
	m.evaluationSlots = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "evaluation_slots",
		Help:        "Configured number of concurrent evaluation slots",
		ConstLabels: m.customLabels,
	})

	m.evaluationsInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "evaluations_in_flight",
		Help:        "Number of evaluations currently holding a slot",
		ConstLabels: m.customLabels,
	})

	m.resultCacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "result_cache_size",
		Help:        "Number of digests held by the result cache",
		ConstLabels: m.customLabels,
	})

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: m.customLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: m.customLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.customLabels,
	})
}

// RecordSubmissionReceived increments the received submissions counter.
func RecordSubmissionReceived() {
	globalManager.submissionsReceived.Inc()
}

// RecordSubmissionDuplicate increments the duplicate submissions counter.
func RecordSubmissionDuplicate() {
	globalManager.submissionsDuplicate.Inc()
}

// RecordSubmissionRejectedBusy increments the busy rejections counter.
func RecordSubmissionRejectedBusy() {
	globalManager.submissionsBusy.Inc()
}

// RecordEvaluationOutcome increments the evaluation counter for an outcome,
// e.g. "scored", "rejected" or "failed".
func RecordEvaluationOutcome(outcome string) {
	globalManager.evaluationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordEvaluationLatency records end-to-end evaluation latency in milliseconds.
func RecordEvaluationLatency(latencyMs float64) {
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordSubjectScoreLatency records one subject's scoring latency in milliseconds.
func RecordSubjectScoreLatency(latencyMs float64) {
	globalManager.subjectScoreLatency.Observe(latencyMs)
}

// RecordSubjectScored increments the per-subject score counter.
func RecordSubjectScored() {
	globalManager.subjectsScored.Inc()
}

// RecordValidationFailure increments the validation failure counter for a kind.
func RecordValidationFailure(kind string) {
	globalManager.validationFailures.WithLabelValues(kind).Inc()
}

// RecordLeaderboardImprovement increments the improvements counter.
func RecordLeaderboardImprovement() {
	globalManager.leaderboardImprovements.Inc()
}

// UpdateLeaderboardSize sets the number of names on the board.
func UpdateLeaderboardSize(count int) {
	globalManager.leaderboardSize.Set(float64(count))
}

// RecordStoreUpdateLatency records leaderboard update latency in milliseconds.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records leaderboard query latency in milliseconds.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordStorePersistRetry increments the retried file operations counter.
func RecordStorePersistRetry() {
	globalManager.storePersistRetries.Inc()
}

// RecordStorePersistFailure increments the exhausted-retries counter.
func RecordStorePersistFailure() {
	globalManager.storePersistFailures.Inc()
}

// RecordStoreSnapshot marks a published leaderboard snapshot.
func RecordStoreSnapshot() {
	globalManager.storeSnapshotCount.Inc()
	globalManager.storeSnapshotLastUnix.Set(float64(time.Now().Unix()))
}

// UpdateReferenceSubjects sets the loaded reference subject count.
func UpdateReferenceSubjects(count int) {
	globalManager.referenceSubjects.Set(float64(count))
}

// UpdateReferenceLoadDuration sets the startup reference load time in milliseconds.
func UpdateReferenceLoadDuration(latencyMs float64) {
	globalManager.referenceLoadDuration.Set(latencyMs)
}

// UpdateEvaluationSlots sets the configured slot count.
func UpdateEvaluationSlots(count int) {
	globalManager.evaluationSlots.Set(float64(count))
}

// UpdateEvaluationsInFlight sets the number of evaluations holding a slot.
func UpdateEvaluationsInFlight(count int) {
	globalManager.evaluationsInFlight.Set(float64(count))
}

// UpdateResultCacheSize sets the number of cached result digests.
func UpdateResultCacheSize(count int) {
	globalManager.resultCacheSize.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

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

// Default returns the global metrics manager.
func Default() *Manager {
	return globalManager
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
