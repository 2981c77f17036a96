package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the prometheus metrics of the directory API.
type Metrics struct {
	r *prometheus.Registry

	// Requests by kind, endpoint and status code
	Requests *prometheus.CounterVec

	// Latency by kind and endpoint
	Duration *prometheus.HistogramVec

	// Items returned per list page
	PageItems *prometheus.HistogramVec
}

// NewMetrics creates the API metrics on a private registry.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		r: r,
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdash_api_requests_total",
				Help: "Total number of directory API requests",
			},
			[]string{"kind", "endpoint", "code"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetdash_api_request_duration_seconds",
				Help:    "Time spent answering directory API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "endpoint"},
		),
		PageItems: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetdash_api_page_items",
				Help:    "Number of items returned per list page",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
			[]string{"kind"},
		),
	}
	r.MustRegister(m.Requests, m.Duration, m.PageItems)
	return m
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.r
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.r, promhttp.HandlerOpts{
		Registry:          m.r,
		EnableOpenMetrics: true,
	})
}
