package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by route pattern and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtps_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtps_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// FrequencyRequestsTotal counts frequency requests by category and result.
	FrequencyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtps_frequency_requests_total",
			Help: "Total number of frequency requests by category and result",
		},
		[]string{"category", "result"},
	)
	// QueriesTotal counts loader queries by table and outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtps_queries_total",
			Help: "Total number of frequency queries by table and outcome",
		},
		[]string{"table", "outcome"},
	)
	// QueryDuration is the latency of loader queries.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtps_query_duration_seconds",
			Help:    "Frequency query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)
)

// ObserveQuery records one loader query
func ObserveQuery(table, outcome string, d time.Duration) {
	QueriesTotal.WithLabelValues(table, outcome).Inc()
	QueryDuration.WithLabelValues(table).Observe(d.Seconds())
}

// ObserveFrequencyRequest records the result of one frequency request.
// An unrecognised category is recorded as "none".
func ObserveFrequencyRequest(category, result string) {
	if category == "" {
		category = "none"
	}
	FrequencyRequestsTotal.WithLabelValues(category, result).Inc()
}
