// Package metrics holds the Prometheus collectors shared across the HTTP
// layer. Collectors live on a dedicated registry so tests can construct
// isolated instances without duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	AuthAttempts  *prometheus.CounterVec
	TokensIssued  prometheus.Counter
	TokensRevoked prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ward_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ward_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ward_auth_attempts_total",
			Help: "Authentication outcomes by operation and result.",
		}, []string{"operation", "result"}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ward_tokens_issued_total",
			Help: "Access tokens issued at login.",
		}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ward_tokens_revoked_total",
			Help: "Tokens blacklisted at logout.",
		}),
	}

	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.AuthAttempts, m.TokensIssued, m.TokensRevoked)
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
