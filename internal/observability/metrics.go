package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's metric instruments on a private registry.
// Constructed once and passed explicitly; there is no package-level registry,
// so the shutdown sequence is the only writer/reader pair that matters.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation during drain.
	HTTPRequestsInFlight prometheus.Gauge
}

// NewMetrics builds the registry with process/runtime collectors and the
// request instruments registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpRequestsTotal",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "statusCode"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httpRequestDurationSeconds",
				Help:    "HTTP request latency in seconds (per request)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "httpRequestsInFlight",
				Help: "Number of HTTP requests currently being served",
			},
		),
	}

	registry.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight)
	return m
}

// Handler returns an http.Handler serving the registry in the exposition
// format, content type negotiated by promhttp.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
