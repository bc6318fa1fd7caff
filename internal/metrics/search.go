package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facetd",
			Name:      "searches_total",
			Help:      "Total number of executed searches",
		},
		[]string{"path", "status"}, // path: simple / advanced / facet_lookup
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facetd",
			Name:      "search_duration_seconds",
			Help:      "Search execution duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"path"},
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facetd",
			Name:      "exports_total",
			Help:      "Total number of CSV exports",
		},
		[]string{"status"},
	)

	SavedSearchOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facetd",
			Name:      "saved_search_ops_total",
			Help:      "Total saved-search operations",
		},
		[]string{"op", "status"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(SavedSearchOpsTotal)
	searchMetricsRegistered = true
}
