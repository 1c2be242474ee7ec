package metrics

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and exposes query cache metrics
type Metrics struct {
	// Read path
	Hits   atomic.Int64
	Misses atomic.Int64

	// Fetch sequences
	Fetches   atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	Attempts  atomic.Int64
	Retries   atomic.Int64
	Shared    atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	Evictions atomic.Int64

	// Per-resource metrics
	resources sync.Map // resource -> *ResourceMetrics

	startTime time.Time
}

// ResourceMetrics tracks metrics for a single resource
type ResourceMetrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	Retries   atomic.Int64
	TotalMs   atomic.Int64
}

const maxInt64 = int64(^uint64(0) >> 1)

// Global metrics instance
var global = New()

// New creates an empty metrics set. Most callers use Global.
func New() *Metrics {
	m := &Metrics{startTime: time.Now()}
	m.MinLatencyMs.Store(maxInt64)
	return m
}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// Resource maps a cache key to its resource label: the first key segment.
// "project-42" and "project-7" both report as "project".
func Resource(key string) string {
	if i := strings.IndexByte(key, '-'); i > 0 {
		return key[:i]
	}
	return key
}

// RecordHit records a read served from a fresh entry
func (m *Metrics) RecordHit(key string) {
	res := Resource(key)
	m.Hits.Add(1)
	m.resource(res).Hits.Add(1)
	recordPrometheusHit(res)
}

// RecordMiss records a read that needed the network
func (m *Metrics) RecordMiss(key string) {
	res := Resource(key)
	m.Misses.Add(1)
	m.resource(res).Misses.Add(1)
	recordPrometheusMiss(res)
}

// RecordAttempt records one network attempt
func (m *Metrics) RecordAttempt(key string) {
	m.Attempts.Add(1)
	recordPrometheusAttempt(Resource(key))
}

// RecordRetry records a retry scheduled after a failure of the given kind
func (m *Metrics) RecordRetry(key, kind string) {
	res := Resource(key)
	m.Retries.Add(1)
	m.resource(res).Retries.Add(1)
	recordPrometheusRetry(res, kind)
}

// RecordFetch records a settled fetch sequence
func (m *Metrics) RecordFetch(key string, durationMs int64, success bool) {
	res := Resource(key)
	m.Fetches.Add(1)
	if success {
		m.Successes.Add(1)
	} else {
		m.Failures.Add(1)
	}
	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	rm := m.resource(res)
	if success {
		rm.Successes.Add(1)
	} else {
		rm.Failures.Add(1)
	}
	rm.TotalMs.Add(durationMs)

	recordPrometheusFetch(res, durationMs, success)
}

// RecordShared records a fetch result delivered to a joined caller
func (m *Metrics) RecordShared(key string) {
	m.Shared.Add(1)
	recordPrometheusShared(Resource(key))
}

// RecordEviction records an entry removal
func (m *Metrics) RecordEviction(reason string) {
	m.Evictions.Add(1)
	recordPrometheusEviction(reason)
}

func (m *Metrics) resource(name string) *ResourceMetrics {
	if v, ok := m.resources.Load(name); ok {
		return v.(*ResourceMetrics)
	}
	actual, _ := m.resources.LoadOrStore(name, &ResourceMetrics{})
	return actual.(*ResourceMetrics)
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.Fetches.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == maxInt64 {
		minLatency = 0
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"reads": map[string]interface{}{
			"hits":     m.Hits.Load(),
			"misses":   m.Misses.Load(),
			"hit_rate": hitRate(m.Hits.Load(), m.Misses.Load()),
		},
		"fetches": map[string]interface{}{
			"total":    total,
			"success":  m.Successes.Load(),
			"failed":   m.Failures.Load(),
			"attempts": m.Attempts.Load(),
			"retries":  m.Retries.Load(),
			"shared":   m.Shared.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"evictions": m.Evictions.Load(),
	}
}

// ResourceStats returns per-resource metrics
func (m *Metrics) ResourceStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.resources.Range(func(key, value interface{}) bool {
		rm := value.(*ResourceMetrics)
		settled := rm.Successes.Load() + rm.Failures.Load()
		avgMs := float64(0)
		if settled > 0 {
			avgMs = float64(rm.TotalMs.Load()) / float64(settled)
		}
		result[key.(string)] = map[string]interface{}{
			"hits":      rm.Hits.Load(),
			"misses":    rm.Misses.Load(),
			"successes": rm.Successes.Load(),
			"failures":  rm.Failures.Load(),
			"retries":   rm.Retries.Load(),
			"avg_ms":    avgMs,
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["resources"] = m.ResourceStats()
		json.NewEncoder(w).Encode(result)
	})
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		current := target.Load()
		if value >= current {
			return
		}
		if target.CompareAndSwap(current, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		current := target.Load()
		if value <= current {
			return
		}
		if target.CompareAndSwap(current, value) {
			return
		}
	}
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}
