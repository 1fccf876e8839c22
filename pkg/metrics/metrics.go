package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_requests_total",
		Help: "Total number of tile fetch requests issued",
	})

	TileCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_cancellations_total",
		Help: "Total number of tile fetches that ended cancelled or superseded",
	})

	TileDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_deliveries_total",
		Help: "Total number of tiles delivered, by source (network, cache, placeholder)",
	}, []string{"source"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_cache_hits_total",
		Help: "Total number of fallback cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_cache_misses_total",
		Help: "Total number of fallback cache misses",
	})

	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_cache_write_failures_total",
		Help: "Total number of failed background cache writes",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilefetch_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
