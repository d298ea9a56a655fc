// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// CodesIssuedTotal counts codes handed to callers by source (pool, allocator, alias).
	CodesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortcode_codes_issued_total",
			Help: "Total number of short codes issued",
		},
		[]string{"source"},
	)

	// CollisionsTotal counts candidates that already existed.
	CollisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortcode_collisions_total",
			Help: "Total number of candidate collisions",
		},
	)

	// ReservedRejectionsTotal counts candidates discarded by the reserved filter.
	ReservedRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortcode_reserved_rejections_total",
			Help: "Total number of candidates rejected as reserved or profane",
		},
	)

	// ExhaustedTotal counts allocations that ran out of attempts.
	ExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortcode_exhausted_total",
			Help: "Total number of allocations that exhausted their retry budget",
		},
	)

	// CacheHitsTotal counts existence cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMissesTotal counts existence cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheErrorsTotal counts cache failures that were degraded to the store.
	CacheErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Total number of cache errors",
		},
	)

	// DBQueryDuration measures database query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// AllocationDuration measures a complete single-code allocation.
	AllocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortcode_allocation_duration_seconds",
			Help:    "Single code allocation duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"outcome"},
	)

	// PoolSize tracks the number of codes waiting in the pool.
	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortcode_pool_size",
			Help: "Number of pre-generated codes in the pool",
		},
	)

	// PoolRequestsTotal counts pool withdrawals by result (hit, miss).
	PoolRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortcode_pool_requests_total",
			Help: "Total number of pool withdrawals",
		},
		[]string{"result"},
	)

	// PoolRefillsTotal counts refill runs by status (ok, error).
	PoolRefillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortcode_pool_refills_total",
			Help: "Total number of pool refill runs",
		},
		[]string{"status"},
	)

	// CollisionRate is the lifetime collision rate from the last snapshot.
	CollisionRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortcode_collision_rate",
			Help: "Collisions divided by generation attempts",
		},
	)

	// SequenceCurrent is the highest sequential ID observed.
	SequenceCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortcode_sequence_current",
			Help: "Highest sequential ID handed out",
		},
	)

	// ActiveConnections tracks in-flight HTTP requests.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	// DBConnections reports connection pool usage per shard and state
	// (acquired, idle, total, max).
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shortcode_db_connections",
			Help: "Database connections per shard by state",
		},
		[]string{"shard", "state"},
	)

	// AlertsTotal counts collision alerts raised.
	AlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortcode_collision_alerts_total",
			Help: "Total number of collision rate alerts",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIssued records a code handed to a caller.
func RecordIssued(source string) {
	CodesIssuedTotal.WithLabelValues(source).Inc()
}

// RecordCollision records a candidate collision.
func RecordCollision() {
	CollisionsTotal.Inc()
}

// RecordReservedRejection records a candidate dropped by the filter.
func RecordReservedRejection() {
	ReservedRejectionsTotal.Inc()
}

// RecordExhausted records an allocation that ran out of attempts.
func RecordExhausted() {
	ExhaustedTotal.Inc()
}

// RecordCacheHit records a cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheError records a cache failure.
func RecordCacheError() {
	CacheErrorsTotal.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAllocation records the duration and outcome of a single allocation.
func RecordAllocation(outcome string, duration time.Duration) {
	AllocationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordPoolRequest records a pool withdrawal.
func RecordPoolRequest(hit bool) {
	if hit {
		PoolRequestsTotal.WithLabelValues("hit").Inc()
		return
	}
	PoolRequestsTotal.WithLabelValues("miss").Inc()
}

// RecordPoolRefill records a refill run.
func RecordPoolRefill(err error) {
	if err != nil {
		PoolRefillsTotal.WithLabelValues("error").Inc()
		return
	}
	PoolRefillsTotal.WithLabelValues("ok").Inc()
}

// SetPoolSize records the current pool size.
func SetPoolSize(n int) {
	PoolSize.Set(float64(n))
}

// SetCollisionRate records the latest collision rate.
func SetCollisionRate(rate float64) {
	CollisionRate.Set(rate)
}

// SetSequenceCurrent records the highest sequential ID.
func SetSequenceCurrent(v uint64) {
	SequenceCurrent.Set(float64(v))
}

// RecordAlert records a raised collision alert.
func RecordAlert() {
	AlertsTotal.Inc()
}

// SetDBConnections records connection pool usage for a shard.
func SetDBConnections(shard int, acquired, idle, total, maxConns int32) {
	label := strconv.Itoa(shard)
	DBConnections.WithLabelValues(label, "acquired").Set(float64(acquired))
	DBConnections.WithLabelValues(label, "idle").Set(float64(idle))
	DBConnections.WithLabelValues(label, "total").Set(float64(total))
	DBConnections.WithLabelValues(label, "max").Set(float64(maxConns))
}
