// Package metrics provides Prometheus metrics for the solcast forecasting pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	stageBuckets     []float64
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Pipeline
	taskOutcomes     *prometheus.CounterVec
	stageLatency     *prometheus.HistogramVec
	cyclesTotal      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	forecastRows     *prometheus.CounterVec
	currentRevision  *prometheus.GaugeVec
	sunriseBlock     *prometheus.GaugeVec
	sunsetBlock      *prometheus.GaugeVec
	sanitizedSamples *prometheus.CounterVec
	blendedModels    *prometheus.CounterVec

	// Storage
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueRejected    *prometheus.CounterVec

	// Workers
	workerActiveCount prometheus.Gauge
	workerPanics      prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "solcast",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		stageBuckets:     []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval reports how often gauges sampled from the runtime should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.taskOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_outcomes_total",
		Help:      "Per-plant task outcomes by stage and status (success, skip, error)",
	}, []string{"stage", "status"})

	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_latency_milliseconds",
		Help:      "Latency of a single plant task per stage in milliseconds",
		Buckets:   m.stageBuckets,
	}, []string{"stage"})

	m.cyclesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cycles_total",
		Help:      "Completed pipeline cycles by result",
	}, []string{"result"})

	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full process/train/forecast cycle",
		Buckets:   m.histogramBuckets,
	})

	m.forecastRows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "forecast_rows_total",
		Help:      "Forecast rows emitted by horizon",
	}, []string{"horizon"})

	m.currentRevision = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "current_revision",
		Help:      "Revision attached to the most recent forecast batch",
	}, []string{"horizon"})

	m.sunriseBlock = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "daylight_sunrise_block",
		Help:      "Sunrise time-block of the last detected daylight window",
	}, []string{"plant_id"})

	m.sunsetBlock = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "daylight_sunset_block",
		Help:      "Sunset time-block of the last detected daylight window",
	}, []string{"plant_id"})

	m.sanitizedSamples = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sanitized_samples_total",
		Help:      "Samples corrected during sanitization by correction kind",
	}, []string{"kind"})

	m.blendedModels = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trained_models_total",
		Help:      "Trained models by horizon and whether recency blending was applied",
	}, []string{"horizon", "blended"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "repository",
		Name:      "operation_latency_milliseconds",
		Help:      "Latency of store operations in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"store", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "repository",
		Name:      "errors_total",
		Help:      "Store operation failures (not-found excluded)",
	}, []string{"store", "op"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Plant tasks waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Maximum number of queued plant tasks",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "utilization_ratio",
		Help:      "Queue size divided by capacity",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "rejected_total",
		Help:      "Tasks rejected by the queue by reason",
	}, []string{"reason"})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "active_count",
		Help:      "Number of running workers",
	})

	m.workerPanics = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "panics_total",
		Help:      "Task handler panics recovered by workers",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP error responses by endpoint, error type and severity",
	}, []string{"endpoint", "error_type", "severity"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Current heap allocation in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutine_count",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_milliseconds",
		Help:      "Average GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	})
}

// RecordTaskOutcome counts one per-plant task result.
func RecordTaskOutcome(stage, status string) {
	globalManager.taskOutcomes.WithLabelValues(stage, status).Inc()
}

// RecordStageLatency records the latency of one plant task in milliseconds.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordCycle counts a finished pipeline cycle and its duration.
func RecordCycle(result string, d time.Duration) {
	globalManager.cyclesTotal.WithLabelValues(result).Inc()
	globalManager.cycleDuration.Observe(d.Seconds())
}

// RecordForecastRows adds emitted forecast rows for a horizon.
func RecordForecastRows(horizon string, n int) {
	globalManager.forecastRows.WithLabelValues(horizon).Add(float64(n))
}

// UpdateCurrentRevision sets the revision of the latest batch for a horizon.
func UpdateCurrentRevision(horizon string, revision int) {
	globalManager.currentRevision.WithLabelValues(horizon).Set(float64(revision))
}

// UpdateDaylightWindow sets the last detected window for a plant.
func UpdateDaylightWindow(plantID string, sunrise, sunset int) {
	globalManager.sunriseBlock.WithLabelValues(plantID).Set(float64(sunrise))
	globalManager.sunsetBlock.WithLabelValues(plantID).Set(float64(sunset))
}

// RecordSanitized adds n corrected samples of the given kind (zeroed, nulled, clipped).
func RecordSanitized(kind string, n int) {
	if n > 0 {
		globalManager.sanitizedSamples.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordTrainedModel counts a trained model.
func RecordTrainedModel(horizon string, blended bool) {
	label := "false"
	if blended {
		label = "true"
	}
	globalManager.blendedModels.WithLabelValues(horizon, label).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(store, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(store, op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(store, op string) {
	globalManager.storeErrors.WithLabelValues(store, op).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueRejected counts a task the queue refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerPanic counts a recovered handler panic.
func RecordWorkerPanic() {
	globalManager.workerPanics.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, errorType, severity string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets heap allocation bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval reports how often the global manager's runtime gauges should
// be sampled.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
