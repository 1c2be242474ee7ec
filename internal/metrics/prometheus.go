package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the query cache
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	cacheHitsTotal     *prometheus.CounterVec
	cacheMissesTotal   *prometheus.CounterVec
	fetchesTotal       *prometheus.CounterVec
	fetchAttemptsTotal *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
	sharedTotal        *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec

	// Histograms
	fetchDuration *prometheus.HistogramVec

	// Gauges
	cacheEntries  prometheus.Gauge
	activeQueries prometheus.Gauge

	// Circuit breaker
	circuitBreakerState      *prometheus.GaugeVec
	circuitBreakerTripsTotal *prometheus.CounterVec
}

// Default histogram buckets for fetch duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Reads served from a fresh cache entry",
			},
			[]string{"resource"},
		),

		cacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Reads that found no entry or a stale one",
			},
			[]string{"resource"},
		),

		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Settled fetch sequences by outcome",
			},
			[]string{"resource", "status"},
		),

		fetchAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Individual network attempts, including retries",
			},
			[]string{"resource"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retries scheduled after a retryable failure",
			},
			[]string{"resource", "kind"},
		),

		sharedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shared_results_total",
				Help:      "Fetch results delivered to more than one caller",
			},
			[]string{"resource"},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evictions_total",
				Help:      "Cache entries removed, by reason",
			},
			[]string{"reason"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_milliseconds",
				Help:      "Duration of fetch sequences in milliseconds, retries included",
				Buckets:   buckets,
			},
			[]string{"resource", "status"},
		),

		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Current number of live cache entries",
			},
		),

		activeQueries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_queries",
				Help:      "Number of started, not yet closed query subscriptions",
			},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"key"},
		),

		circuitBreakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"key", "to_state"},
		),
	}

	registry.MustRegister(
		pm.cacheHitsTotal,
		pm.cacheMissesTotal,
		pm.fetchesTotal,
		pm.fetchAttemptsTotal,
		pm.retriesTotal,
		pm.sharedTotal,
		pm.evictionsTotal,
		pm.fetchDuration,
		pm.cacheEntries,
		pm.activeQueries,
		pm.circuitBreakerState,
		pm.circuitBreakerTripsTotal,
	)

	promMetrics = pm
}

func recordPrometheusHit(resource string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheHitsTotal.WithLabelValues(resource).Inc()
}

func recordPrometheusMiss(resource string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheMissesTotal.WithLabelValues(resource).Inc()
}

func recordPrometheusFetch(resource string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.fetchesTotal.WithLabelValues(resource, status).Inc()
	promMetrics.fetchDuration.WithLabelValues(resource, status).Observe(float64(durationMs))
}

func recordPrometheusAttempt(resource string) {
	if promMetrics == nil {
		return
	}
	promMetrics.fetchAttemptsTotal.WithLabelValues(resource).Inc()
}

func recordPrometheusRetry(resource, kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.retriesTotal.WithLabelValues(resource, kind).Inc()
}

func recordPrometheusShared(resource string) {
	if promMetrics == nil {
		return
	}
	promMetrics.sharedTotal.WithLabelValues(resource).Inc()
}

func recordPrometheusEviction(reason string) {
	if promMetrics == nil {
		return
	}
	promMetrics.evictionsTotal.WithLabelValues(reason).Inc()
}

// SetCacheEntries sets the live entry gauge
func SetCacheEntries(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheEntries.Set(float64(n))
}

// IncActiveQueries increments the active subscription gauge
func IncActiveQueries() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeQueries.Inc()
}

// DecActiveQueries decrements the active subscription gauge
func DecActiveQueries() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeQueries.Dec()
}

// SetCircuitBreakerState sets the breaker state gauge for a cache key
func SetCircuitBreakerState(key string, state int) {
	if promMetrics == nil {
		return
	}
	promMetrics.circuitBreakerState.WithLabelValues(key).Set(float64(state))
}

// RecordCircuitBreakerTrip records a breaker state transition
func RecordCircuitBreakerTrip(key, toState string) {
	if promMetrics == nil {
		return
	}
	promMetrics.circuitBreakerTripsTotal.WithLabelValues(key, toState).Inc()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
