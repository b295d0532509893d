package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	InventoryRequestsTotal   *prometheus.CounterVec
	InventoryRequestDuration *prometheus.HistogramVec

	PoolReloadsTotal *prometheus.CounterVec
	PoolSize         *prometheus.GaugeVec
	SelectionsTotal  *prometheus.CounterVec

	BindingsTotal       *prometheus.CounterVec
	BlockedTotal        *prometheus.CounterVec
	FeedbackErrorsTotal *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		InventoryRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyservice_inventory_requests_total",
				Help: "Total number of calls to the proxy inventory service.",
			},
			[]string{"endpoint", "outcome"}, // outcome: ok, refresh, unblock, error
		),
		InventoryRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxyservice_inventory_request_duration_seconds",
				Help:    "Duration of calls to the proxy inventory service.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		PoolReloadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyservice_pool_reloads_total",
				Help: "Total number of proxy pool reloads.",
			},
			[]string{"target", "trigger", "outcome"},
		),
		PoolSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "proxyservice_pool_size",
				Help: "Current number of proxies held in each target pool.",
			},
			[]string{"target"},
		),
		SelectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyservice_proxy_selections_total",
				Help: "Total number of proxy selections.",
			},
			[]string{"target", "outcome"}, // outcome: ok, unavailable, error
		),
		BindingsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyservice_request_bindings_total",
				Help: "Total number of outbound requests processed by the binder.",
			},
			[]string{"outcome"},
		),
		BlockedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyservice_proxies_blocked_total",
				Help: "Total number of proxies reported as blocked.",
			},
			[]string{"target", "reason"},
		),
		FeedbackErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyservice_feedback_errors_total",
				Help: "Total number of failures writing block feedback to a store.",
			},
			[]string{"store"},
		),
	}
}

// NewNop returns metrics registered on a private registry that is never scraped.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
