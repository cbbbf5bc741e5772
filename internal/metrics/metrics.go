package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "query_cache_total",
			Help:      "Query embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Catalog fetch metrics.
var (
	FetchPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "fetch_pages_total",
			Help:      "Catalog pages fetched by outcome",
		},
		[]string{"outcome"}, // "ok" / "failed"
	)

	FetchRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "fetch_records_total",
			Help:      "Catalog records fetched",
		},
	)
)

// Ingest pipeline metrics.
var (
	IngestRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "ingest_records_total",
			Help:      "Records processed by the ingest pipeline, by outcome",
		},
		[]string{"outcome"}, // "embedded" / "skipped" / "invalid"
	)

	IngestBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "ingest_batches_total",
			Help:      "Embedding batches by outcome",
		},
		[]string{"outcome"}, // "committed" / "failed"
	)
)

// Search metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperdex",
			Name:      "search_requests_total",
			Help:      "Search requests by mode and status",
		},
		[]string{"mode", "status"},
	)
)

var metricsRegistered bool

// Register registers all paperdex Prometheus metrics. Must be called once from main.
func Register() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(QueryCacheTotal)
	prometheus.MustRegister(FetchPagesTotal)
	prometheus.MustRegister(FetchRecordsTotal)
	prometheus.MustRegister(IngestRecordsTotal)
	prometheus.MustRegister(IngestBatchesTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	metricsRegistered = true
}
