package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels fetches resolved from the upstream catalog.
	OutcomeSuccess = "success"
	// OutcomeCacheHit labels fetches resolved from the local cache.
	OutcomeCacheHit = "cache_hit"
	// OutcomeTimeout labels fetches that hit the request deadline.
	OutcomeTimeout = "timeout"
	// OutcomeError labels fetches that failed for any other reason.
	OutcomeError = "error"
	// OutcomeCancelled labels fetches superseded or cancelled by the user.
	OutcomeCancelled = "cancelled"
)

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "fetches_total",
			Help:      "Total number of catalog fetches handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "quakewatch",
			Name:      "fetch_seconds",
			Help:      "Catalog fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "cache_evictions_total",
			Help:      "Entries evicted from the response cache to stay under budget.",
		},
	)

	cacheSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "cache_skips_total",
			Help:      "Payloads skipped at admission because they exceed the cache budget.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quakewatch",
			Name:      "cache_size_bytes",
			Help:      "Approximate bytes held by the response cache.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quakewatch",
			Name:      "cache_entries",
			Help:      "Entries currently held by the response cache.",
		},
	)
)

// Register attaches quakewatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fetchesTotal,
		fetchDurationSeconds,
		cacheEvictionsTotal,
		cacheSkipsTotal,
		cacheSizeBytes,
		cacheEntries,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFetch records a fetch duration and outcome label.
func ObserveFetch(duration time.Duration, outcome string) {
	fetchesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}

// CacheEviction counts one budget-driven eviction.
func CacheEviction() {
	cacheEvictionsTotal.Inc()
}

// CacheSkip counts one oversized payload refused at admission.
func CacheSkip() {
	cacheSkipsTotal.Inc()
}

// SetCacheUsage publishes the cache's current footprint.
func SetCacheUsage(bytes int64, entries int) {
	cacheSizeBytes.Set(float64(bytes))
	cacheEntries.Set(float64(entries))
}
