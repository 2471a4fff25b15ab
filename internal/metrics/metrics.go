// file: internal/metrics/metrics.go
// version: 1.1.0
// guid: 9f8e7d6c-5b4a-3210-9fed-cba876543210

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	fetchStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "catalog_fetches_started_total",
		Help:      "Total number of provider fetches started by outcome path",
	}, []string{"catalog"})
	fetchCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "catalog_fetches_completed_total",
		Help:      "Total number of provider fetches that imported successfully",
	}, []string{"catalog"})
	fetchFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "catalog_fetches_failed_total",
		Help:      "Total number of provider fetches that failed",
	}, []string{"catalog"})
	fetchFallback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "catalog_fetch_fallbacks_total",
		Help:      "Total number of failed fetches served from stale cache",
	}, []string{"catalog"})
	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamvault",
		Name:      "catalog_fetch_duration_seconds",
		Help:      "Histogram of provider fetch-and-import durations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 1.6, 10),
	}, []string{"catalog"})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "result_cache_hits_total",
		Help:      "Total number of result cache hits",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "result_cache_misses_total",
		Help:      "Total number of result cache misses",
	})
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "result_cache_evictions_total",
		Help:      "Total number of result cache entries evicted by the size bound",
	})

	windowLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamvault",
		Name:      "window_chunk_load_duration_seconds",
		Help:      "Histogram of window chunk load durations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	windowLoadFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamvault",
		Name:      "window_chunk_loads_failed_total",
		Help:      "Total number of window chunk loads that failed",
	})

	catalogsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamvault",
		Name:      "catalogs_total",
		Help:      "Current number of imported catalogs",
	})
	itemsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamvault",
		Name:      "catalog_items_total",
		Help:      "Item count of the most recently imported catalog by collection",
	}, []string{"collection"})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(fetchStarted, fetchCompleted, fetchFailed, fetchFallback, fetchDuration,
			cacheHits, cacheMisses, cacheEvictions,
			windowLoadDuration, windowLoadFailed,
			catalogsGauge, itemsGauge)
	})
}

// Fetch lifecycle helpers
func IncFetchStarted(catalog string)   { fetchStarted.WithLabelValues(catalog).Inc() }
func IncFetchCompleted(catalog string) { fetchCompleted.WithLabelValues(catalog).Inc() }
func IncFetchFailed(catalog string)    { fetchFailed.WithLabelValues(catalog).Inc() }
func IncFetchFallback(catalog string)  { fetchFallback.WithLabelValues(catalog).Inc() }
func ObserveFetchDuration(catalog string, d time.Duration) {
	fetchDuration.WithLabelValues(catalog).Observe(d.Seconds())
}

// Result cache helpers
func IncCacheHit()      { cacheHits.Inc() }
func IncCacheMiss()     { cacheMisses.Inc() }
func IncCacheEviction() { cacheEvictions.Inc() }

// Window helpers
func ObserveWindowLoad(d time.Duration) { windowLoadDuration.Observe(d.Seconds()) }
func IncWindowLoadFailed()              { windowLoadFailed.Inc() }

// Gauges
func SetCatalogs(n int) { catalogsGauge.Set(float64(n)) }
func SetItems(collection string, n int) {
	itemsGauge.WithLabelValues(collection).Set(float64(n))
}
