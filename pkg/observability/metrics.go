package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Token cache metrics
	TokenCacheLoadsTotal       *prometheus.CounterVec
	TokenCacheWritesTotal      prometheus.Counter
	TokenCacheClearsTotal      prometheus.Counter
	TokenCacheWriteErrorsTotal prometheus.Counter

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Sign-in/out metrics
	SignInsTotal  *prometheus.CounterVec
	SignOutsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvass_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TokenCacheLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_token_cache_loads_total",
				Help: "Token cache loads from the distributed store by outcome (hit, miss)",
			},
			[]string{"outcome"},
		),
		TokenCacheWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "canvass_token_cache_writes_total",
				Help: "Token cache batches persisted to the distributed store",
			},
		),
		TokenCacheClearsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "canvass_token_cache_clears_total",
				Help: "Token cache entries removed after the in-memory set emptied",
			},
		),
		TokenCacheWriteErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "canvass_token_cache_write_errors_total",
				Help: "Failed token cache persist attempts",
			},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_authz_decisions_total",
				Help: "Authorization requirement evaluations by requirement and outcome",
			},
			[]string{"requirement", "outcome"},
		),
		SignInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_sign_ins_total",
				Help: "Completed sign-in attempts by outcome",
			},
			[]string{"outcome"},
		),
		SignOutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_sign_outs_total",
				Help: "Completed sign-out attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TokenCacheLoadsTotal,
		m.TokenCacheWritesTotal,
		m.TokenCacheClearsTotal,
		m.TokenCacheWriteErrorsTotal,
		m.AuthzDecisionsTotal,
		m.SignInsTotal,
		m.SignOutsTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry in Prometheus format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
