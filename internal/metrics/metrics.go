package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swiftreader_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swiftreader_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SummariesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swiftreader_summaries_generated_total",
			Help: "Total number of summaries delivered, by tier.",
		},
		[]string{"tier"},
	)

	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swiftreader_quota_denials_total",
			Help: "Total number of denied summary requests, by reason.",
		},
		[]string{"reason"},
	)

	UpstreamRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swiftreader_upstream_request_duration_seconds",
			Help:    "Summarization upstream request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swiftreader_upstream_errors_total",
			Help: "Total number of failed summarization upstream calls, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SummariesGeneratedTotal,
		QuotaDenialsTotal,
		UpstreamRequestDuration,
		UpstreamErrorsTotal,
	)
}
