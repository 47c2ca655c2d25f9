// Package metrics defines the engine's Prometheus collectors and the
// /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Seeding.
	SeedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskmate_seed_records_total",
		Help: "Records upserted during seeding",
	}, []string{"collection"})
	SeedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskmate_seed_batches_total",
		Help: "Batches upserted during seeding",
	}, []string{"collection"})
	SeedSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskmate_seed_skipped_total",
		Help: "Seeding runs skipped because the collection already existed",
	}, []string{"collection"})
	SeedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deskmate_seed_duration_seconds",
		Help:    "Wall time of a full collection seed",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"collection"})

	// Query path.
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskmate_search_requests_total",
		Help: "Similarity searches by collection and outcome",
	}, []string{"collection", "status"})
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deskmate_search_duration_seconds",
		Help:    "End-to-end search latency including query embedding",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})
	EmbedDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deskmate_embed_duration_seconds",
		Help:    "Embedding backend call latency",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
