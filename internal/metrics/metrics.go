// Package metrics holds the Prometheus collectors for imports and Notion
// traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notionvault_import_runs_total",
		Help: "Number of finished import runs",
	})

	ImportRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notionvault_import_run_duration_seconds",
		Help:    "Wall time of import runs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	ImportItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notionvault_import_items_total",
			Help: "Pages processed by import runs, by outcome",
		},
		[]string{"status"},
	)

	AssetBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notionvault_asset_bytes_total",
		Help: "Bytes of attachments downloaded into the vault",
	})

	AssetFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notionvault_asset_failures_total",
		Help: "Attachment downloads that failed",
	})

	NotionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notionvault_notion_requests_total",
			Help: "Completed Notion API calls by operation and HTTP status (0 when no response arrived)",
		},
		[]string{"op", "status"},
	)
)

// ObserveRun records a finished run.
func ObserveRun(started, finished time.Time) {
	ImportRuns.Inc()
	ImportRunDuration.Observe(finished.Sub(started).Seconds())
}

// ObserveNotionRequest records one Notion API call.
func ObserveNotionRequest(op string, status int) {
	NotionRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}
