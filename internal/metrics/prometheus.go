package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_analyst_uploads_total",
			Help: "Total dataset uploads by outcome",
		},
		[]string{"status"},
	)

	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "data_analyst_upload_bytes",
			Help:    "Uploaded dataset sizes in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	ProcessingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_analyst_processing_total",
			Help: "Detached processing task outcomes",
		},
		[]string{"status"},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "data_analyst_processing_duration_seconds",
			Help:    "Time from dispatch to processing completion",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_analyst_query_total",
			Help: "Total dataset queries by outcome",
		},
		[]string{"status"},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "data_analyst_query_duration_seconds",
			Help:    "Query round-trip duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	TasksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "data_analyst_tasks_dropped_total",
			Help: "Detached tasks dropped because the queue was full",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_analyst_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_analyst_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DatasetsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "data_analyst_datasets_deleted_total",
			Help: "Total datasets deleted",
		},
	)
)

func Init() {
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(UploadBytes)
	prometheus.MustRegister(ProcessingTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(TasksDropped)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DatasetsDeleted)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
