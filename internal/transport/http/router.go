// Package httptransport is the thin HTTP surface over the governance engine.
// Handlers decode, delegate, and encode; business behavior lives in the
// domain services.
package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fingov/internal/platform/health"
	"fingov/internal/platform/middleware"
)

// NewRouter wires all endpoints with the middleware stack. Governed endpoints
// sit behind the actor-context middleware; health and metrics do not.
func NewRouter(h *Handler, probes *health.Handler, signingKey []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	probes.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ActorContext(signingKey, h.logger))

		r.Post("/v1/actions", h.handleExecuteAction)
		r.Get("/v1/workflows/{entityType}/{entityID}", h.handleWorkflowMetadata)
		r.Post("/v1/sla/sweep", h.handleSLASweep)
		r.Get("/v1/audit/integrity", h.handleAuditIntegrity)
		r.Get("/v1/audit/trail/{entityType}/{entityID}", h.handleAuditTrail)
		r.Get("/v1/audit/report", h.handleAuditReport)
	})

	return r
}
