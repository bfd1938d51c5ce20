package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blustick_batches_ingested_total",
		Help: "Total number of detection batches committed.",
	})

	BatchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blustick_batches_failed_total",
		Help: "Total number of detection batches rolled back.",
	})

	DetectionsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blustick_detections_inserted_total",
		Help: "Total number of detection rows committed across all batches.",
	})

	QueriesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blustick_queries_served_total",
		Help: "Total number of read queries served, labelled by query name.",
	}, []string{"query"})

	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blustick_auth_rejections_total",
		Help: "Total number of rejected requests, labelled by reason.",
	}, []string{"reason"})

	BatchIngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blustick_batch_ingest_duration_ms",
		Help:    "Batch ingestion latency in milliseconds, commit included.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blustick_batch_size_records",
		Help:    "Number of records per submitted batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)
