package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskgate/internal/platform/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Decision *DecisionHandler
	Audit    *AuditHandler
	Admin    *AdminHandler
	Health   *HealthHandler
}

// NewRouter wires all endpoints. The decision endpoint and health check are
// open; audit reads and admin controls sit behind operator auth.
func NewRouter(h Handlers, validator middleware.JWTValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)

	h.Health.Register(r)
	h.Decision.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth(validator, logger))
		h.Audit.Register(protected)

		protected.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireRole("admin", logger))
			h.Admin.Register(admin)
		})
	})

	return r
}
