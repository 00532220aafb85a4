// Package metrics provides Prometheus metrics for the boostcalc service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds.
var defaultLatencyBucketsMs = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // read-only defaults

// Manager owns every collector exported by the service.
type Manager struct {
	namespace   string
	subsystem   string
	buckets     []float64
	constLabels prometheus.Labels
	registry    prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enrollment
	enrollmentLookups *prometheus.CounterVec
	registrySize      prometheus.Gauge
	registryReloads   *prometheus.CounterVec
	registryWrites    *prometheus.CounterVec

	// Profile fetch and extraction
	profileFetchLatency prometheus.Histogram
	profileFetchErrors  *prometheus.CounterVec
	profileCacheLookups *prometheus.CounterVec
	itemsExtracted      *prometheus.CounterVec

	// Scoring
	scoringResults      prometheus.Counter
	scoringPoints       prometheus.Histogram
	scoringUnclassified prometheus.Counter
	scoringUnscored     prometheus.Counter

	// Cohort passes
	cohortPassDuration prometheus.Histogram
	cohortSamples      *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            *prometheus.CounterVec

	// Errors by component
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

type global struct {
	manager  *Manager
	registry *prometheus.Registry
}

// Active manager and the registry served on /healthz.
var active atomic.Pointer[global] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	Configure()
}

// Configure replaces the global collectors with a manager built from opts on a
// fresh registry. Handlers capture GetRegistry at construction, so call it first.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	m := NewManager(append(opts, WithPrometheusRegistry(reg))...)
	active.Store(&global{manager: m, registry: reg})
}

func current() *Manager {
	return active.Load().manager
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "boostcalc",
		subsystem: "engine",
		buckets:   defaultLatencyBucketsMs,
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total HTTP requests"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_ms", "HTTP request duration in milliseconds", m.buckets),
		[]string{"endpoint", "method", "status_code"})

	m.enrollmentLookups = auto.NewCounterVec(m.counterOpts("enrollment_lookups_total", "Enrollment lookups by identity path and outcome"),
		[]string{"by", "outcome"})
	m.registrySize = auto.NewGauge(m.gaugeOpts("registry_participants", "Participants currently loaded in the enrollment registry"))
	m.registryReloads = auto.NewCounterVec(m.counterOpts("registry_reloads_total", "Registry loads by outcome"),
		[]string{"outcome"})
	m.registryWrites = auto.NewCounterVec(m.counterOpts("registry_writes_total", "Administrative registry writes by outcome"),
		[]string{"outcome"})

	m.profileFetchLatency = auto.NewHistogram(m.histogramOpts("profile_fetch_latency_ms", "Profile page fetch latency in milliseconds", m.buckets))
	m.profileFetchErrors = auto.NewCounterVec(m.counterOpts("profile_fetch_errors_total", "Profile fetch failures by reason"),
		[]string{"reason"})
	m.profileCacheLookups = auto.NewCounterVec(m.counterOpts("profile_cache_lookups_total", "Profile cache lookups by result"),
		[]string{"result"})
	m.itemsExtracted = auto.NewCounterVec(m.counterOpts("items_extracted_total", "Completion items extracted from profile pages"),
		[]string{"kind"})

	m.scoringResults = auto.NewCounter(m.counterOpts("scoring_results_total", "Score results computed"))
	m.scoringPoints = auto.NewHistogram(m.histogramOpts("scoring_points", "Distribution of total points per score result",
		[]float64{0, 50, 100, 250, 500, 750, 1000, 1500, 2000, 3000}))
	m.scoringUnclassified = auto.NewCounter(m.counterOpts("scoring_unclassified_items_total", "Items excluded from scoring for a missing kind"))
	m.scoringUnscored = auto.NewCounter(m.counterOpts("scoring_unscored_items_total", "Classified items with no weight in the scoring policy"))

	m.cohortPassDuration = auto.NewHistogram(m.histogramOpts("cohort_pass_duration_ms", "Duration of a cohort aggregation pass in milliseconds", m.buckets))
	m.cohortSamples = auto.NewCounterVec(m.counterOpts("cohort_samples_total", "Cohort units by outcome"),
		[]string{"outcome"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Jobs waiting in the cohort queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the cohort queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Cohort queue utilization (0.0-1.0)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueues by reason"),
		[]string{"reason"})

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently running"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_ms", "Per-job processing latency in milliseconds", m.buckets))
	m.workerErrors = auto.NewCounterVec(m.counterOpts("worker_errors_total", "Worker job failures by reason"),
		[]string{"reason"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Allocated heap bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_ms", "Average GC pause in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50}))
}

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	current().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	current().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	current().errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	current().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// Enrollment.

// RecordEnrollmentLookup counts a registry lookup. by is "email" or "profile";
// outcome is "enrolled" or "not_enrolled".
func RecordEnrollmentLookup(by, outcome string) {
	current().enrollmentLookups.WithLabelValues(by, outcome).Inc()
}

func UpdateRegistrySize(count int) {
	current().registrySize.Set(float64(count))
}

func RecordRegistryReload(outcome string) {
	current().registryReloads.WithLabelValues(outcome).Inc()
}

func RecordRegistryWrite(outcome string) {
	current().registryWrites.WithLabelValues(outcome).Inc()
}

// Profile fetch.

func RecordProfileFetchLatency(latencyMs float64) {
	current().profileFetchLatency.Observe(latencyMs)
}

func RecordProfileFetchError(reason string) {
	current().profileFetchErrors.WithLabelValues(reason).Inc()
}

// RecordProfileCacheLookup counts a response cache hit or miss.
func RecordProfileCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	current().profileCacheLookups.WithLabelValues(result).Inc()
}

func RecordItemsExtracted(kind string, n int) {
	current().itemsExtracted.WithLabelValues(kind).Add(float64(n))
}

// Scoring.

// RecordScoringResult observes one computed ScoreResult.
func RecordScoringResult(points, unclassified, unscored int) {
	current().scoringResults.Inc()
	current().scoringPoints.Observe(float64(points))
	if unclassified > 0 {
		current().scoringUnclassified.Add(float64(unclassified))
	}
	if unscored > 0 {
		current().scoringUnscored.Add(float64(unscored))
	}
}

// Cohort.

func RecordCohortPass(durationMs float64) {
	current().cohortPassDuration.Observe(durationMs)
}

// RecordCohortSample counts a cohort unit as "scored" or "failed".
func RecordCohortSample(outcome string) {
	current().cohortSamples.WithLabelValues(outcome).Inc()
}

// Queue.

func UpdateQueueSize(size int) {
	current().queueSize.Set(float64(size))
}

func UpdateQueueCapacity(capacity int) {
	current().queueCapacity.Set(float64(capacity))
}

func UpdateQueueUtilization(utilization float64) {
	current().queueUtilization.Set(utilization)
}

func RecordQueueEnqueue() {
	current().queueEnqueued.Inc()
}

func RecordQueueDequeue() {
	current().queueDequeued.Inc()
}

func RecordQueueEnqueueError(reason string) {
	current().queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Workers.

func UpdateWorkerActiveCount(count int) {
	current().workerActiveCount.Set(float64(count))
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	current().workerProcessingLatency.Observe(latencyMs)
}

func RecordWorkerError(reason string) {
	current().workerErrors.WithLabelValues(reason).Inc()
}

// System.

func UpdateSystemMemoryUsage(bytes uint64) {
	current().systemMemoryUsage.Set(float64(bytes))
}

func UpdateSystemGoroutineCount(count int) {
	current().systemGoroutineCount.Set(float64(count))
}

func RecordSystemGCPauseTime(pauseMs float64) {
	current().systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return active.Load().registry
}
