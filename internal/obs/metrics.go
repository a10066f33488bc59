// Package obs holds the Prometheus instrumentation for the sync engine.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the counters and gauges exposed on /metrics.
// A nil *Metrics is valid everywhere and records nothing, so tests
// and library consumers can opt out.
type Metrics struct {
	RefreshCycles       *prometheus.CounterVec
	FetchRetries        prometheus.Counter
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	CacheEvictions      prometheus.Counter
	NormalizeFallbacks  prometheus.Counter
	CacheSizeBytes      prometheus.Gauge
	LastSuccessfulSync  prometheus.Gauge
}

// New registers the engine metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		RefreshCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assetsync_refresh_cycles_total",
			Help: "Refresh cycles by terminal result (success, exhausted).",
		}, []string{"result"}),
		FetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_fetch_retries_total",
			Help: "Fetch attempts that were retries after a failure.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_cache_hits_total",
			Help: "Cache reads that returned a valid entry.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_cache_misses_total",
			Help: "Cache reads that missed, expired, or failed to parse.",
		}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_cache_evictions_total",
			Help: "Entries removed by maintenance (expiry, corruption, budget).",
		}),
		NormalizeFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_normalize_fallbacks_total",
			Help: "Records that normalized to the fallback display record.",
		}),
		CacheSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "assetsync_cache_size_bytes",
			Help: "Total serialized size of the cache at last sweep.",
		}),
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "assetsync_last_successful_sync_timestamp",
			Help: "Unix time of the last successful refresh cycle.",
		}),
	}
}

// ObserveRefresh records a terminal refresh outcome.
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshCycles.WithLabelValues(result).Inc()
}

// ObserveRetry records one retry attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.FetchRetries.Inc()
}

// ObserveCacheHit records a valid cache read.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveCacheMiss records a cache miss.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// ObserveEvictions records n entries removed by maintenance.
func (m *Metrics) ObserveEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.Add(float64(n))
}

// ObserveNormalizeFallback records one fallback display record.
func (m *Metrics) ObserveNormalizeFallback() {
	if m == nil {
		return
	}
	m.NormalizeFallbacks.Inc()
}

// SetCacheSize records the serialized cache size.
func (m *Metrics) SetCacheSize(bytes int64) {
	if m == nil {
		return
	}
	m.CacheSizeBytes.Set(float64(bytes))
}

// SetLastSuccess records the last successful sync time.
func (m *Metrics) SetLastSuccess(unix int64) {
	if m == nil {
		return
	}
	m.LastSuccessfulSync.Set(float64(unix))
}
