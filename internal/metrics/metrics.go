package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pcindex_requests_total",
		Help: "Total number of API requests by endpoint",
	}, []string{"endpoint"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pcindex_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"endpoint"})
	EmptyResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcindex_empty_results_total",
		Help: "Total number of queries returning no postcodes",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pcindex_cache_hits_total",
		Help: "Total query cache hits by tier",
	}, []string{"tier"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pcindex_cache_misses_total",
		Help: "Total query cache misses by tier",
	}, []string{"tier"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcindex_rate_limited_total",
		Help: "Total requests rejected by the rate limiter",
	})
	QueryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pcindex_query_duration_ms",
		Help:    "Index query duration in milliseconds by mode",
		Buckets: msBuckets,
	}, []string{"mode"})
	QueryPoints = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pcindex_query_points",
		Help:    "Number of query points per index query",
		Buckets: []float64{1, 4, 16, 64, 256, 1024, 4096},
	})
	BuildRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pcindex_build_records_total",
		Help: "Records seen during index builds by kind",
	}, []string{"kind"})
	BuildJoinMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcindex_build_join_misses_total",
		Help: "Location records dropped because their address id had no postcode",
	})
	BuildDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pcindex_build_duration_ms",
		Help:    "Index build phase duration in milliseconds",
		Buckets: []float64{100, 1000, 10000, 60000, 300000, 1200000},
	}, []string{"phase"})
	StoreRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pcindex_store_rows_total",
		Help: "Rows bulk loaded into PostGIS by table",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(QueryPoints)
	prometheus.MustRegister(BuildRecordsTotal)
	prometheus.MustRegister(BuildJoinMissesTotal)
	prometheus.MustRegister(BuildDurationMs)
	prometheus.MustRegister(StoreRowsTotal)
}

// 文档注释：返回 Prometheus 指标处理器，由主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
