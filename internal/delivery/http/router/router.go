package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/delivery/http/handler"
	"github.com/user/proxyservice/internal/delivery/http/middleware"
	"github.com/user/proxyservice/pkg/metrics"
)

func New(h *handler.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)
		r.Get("/targets", h.HandleListTargets)
		r.Route("/targets/{targetID}", func(r chi.Router) {
			r.Get("/", h.HandleGetTarget)
			r.Get("/exists", h.HandleTargetExists)
			r.Get("/blocked", h.HandleBlockCounts)
			r.Post("/blocked", h.HandleReportBlocked)
			r.Get("/events", h.HandleBlockEvents)
		})
	})

	return r
}
