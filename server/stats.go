package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "blog_requests_total",
		Help: "A counter for requests to the blog handler.",
	},
	[]string{"code", "method"},
)

var requestHistograms = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "blog_request_duration_seconds",
		Help: "request durations for the blog handler",
	},
	[]string{"route", "code"})

func promhttpCounter(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(requestCounter, next)
}

// MetricsHandler serves the prometheus metrics of this process. It is meant
// for a separate listener, outside the public routes.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
