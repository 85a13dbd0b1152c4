package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newMetricsMiddleware(
	next http.Handler,
	serviceName string,
	registry prometheus.Registerer,
) http.Handler {
	labels := prometheus.Labels{"service": serviceName}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "accountd_http_requests_total",
			Help:        "Number of HTTP requests processed, by method and status code.",
			ConstLabels: labels,
		},
		[]string{"method", "code"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "accountd_http_request_duration_seconds",
			Help:        "Duration of HTTP requests.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	registry.MustRegister(requests, duration)

	return promhttp.InstrumentHandlerCounter(
		requests,
		promhttp.InstrumentHandlerDuration(duration, next),
	)
}
