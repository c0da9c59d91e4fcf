package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WriterStats reports the audit pipeline's runtime state for health checks.
type WriterStats interface {
	QueueDepth() int
	Written() uint64
	Unflushed() int64
}

type HealthHandler struct {
	audit AuditService
	stats WriterStats
}

func NewHealthHandler(audit AuditService, stats WriterStats) *HealthHandler {
	return &HealthHandler{audit: audit, stats: stats}
}

func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
}

// HandleHealth reports degraded (503) when the audit store is suspect; the
// chain being untrustworthy means decisions cannot be safely recorded.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	suspect := h.audit.Suspect()
	body := map[string]any{
		"status":              "ok",
		"audit_store_suspect": suspect,
		"audit_queue_depth":   h.stats.QueueDepth(),
		"audit_written":       h.stats.Written(),
	}
	status := http.StatusOK
	if suspect {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}
