package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "shiftboard").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "shiftboard",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the dashboard server.
type metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	activeSessions   prometheus.Gauge
	sessionsEvicted  prometheus.Counter
	sessionDiskBytes prometheus.Gauge
	uploadBytes      prometheus.Histogram
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheEvictions   prometheus.Counter
}

// globalMetrics is the singleton metrics instance, created on first call to
// Prometheus().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method", "route"}),

		requestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of HTTP requests currently being served",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of live upload sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_evicted_total",
			Help:        "Total sessions evicted or expired",
			ConstLabels: config.ConstLabels,
		}),

		sessionDiskBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "session_disk_bytes",
			Help:        "Bytes of extracted session data on disk",
			ConstLabels: config.ConstLabels,
		}),

		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upload_bytes",
			Help:        "Uploaded archive size in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1 << 16, 1 << 20, 10 << 20, 50 << 20, 100 << 20},
		}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dataset_cache_hits_total",
			Help:        "Total dataset cache hits",
			ConstLabels: config.ConstLabels,
		}),

		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dataset_cache_misses_total",
			Help:        "Total dataset cache misses",
			ConstLabels: config.ConstLabels,
		}),

		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dataset_cache_evictions_total",
			Help:        "Total dataset cache evictions",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus creates middleware that records request counts, durations, and
// in-flight gauge. Route labels use chi route patterns to keep cardinality
// bounded.
//
// Expose the scrape endpoint with promhttp.Handler().
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			m.requestsInFlight.Inc()
			start := time.Now()

			next.ServeHTTP(rec, r)

			m.requestsInFlight.Dec()
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			route := routePattern(r)
			m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		})
	}
}

// RecordSessionCreate records a new session.
func RecordSessionCreate() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Inc()
	}
}

// RecordSessionDestroy records a removed session.
func RecordSessionDestroy() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Dec()
	}
}

// RecordSessionEvicted records an evicted or expired session.
func RecordSessionEvicted() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Dec()
		globalMetrics.sessionsEvicted.Inc()
	}
}

// RecordSessionDiskBytes moves the on-disk gauge by delta bytes. Pass the
// extracted size on create and its negation on removal.
func RecordSessionDiskBytes(delta int64) {
	if globalMetrics != nil {
		globalMetrics.sessionDiskBytes.Add(float64(delta))
	}
}

// RecordUploadBytes records the size of an accepted archive.
func RecordUploadBytes(n int64) {
	if globalMetrics != nil {
		globalMetrics.uploadBytes.Observe(float64(n))
	}
}

// RecordCacheAccess records dataset cache hit/miss/eviction deltas.
func RecordCacheAccess(hits, misses, evictions int64) {
	if globalMetrics != nil {
		globalMetrics.cacheHits.Add(float64(hits))
		globalMetrics.cacheMisses.Add(float64(misses))
		globalMetrics.cacheEvictions.Add(float64(evictions))
	}
}
