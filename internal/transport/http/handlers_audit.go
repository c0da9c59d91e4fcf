package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"riskgate/internal/audit"
)

// AuditService exposes the read side of the audit trail.
type AuditService interface {
	Read(ctx context.Context, from, to uint64) ([]audit.Record, error)
	Find(ctx context.Context, eventID string) (*audit.Record, error)
	Verify(ctx context.Context) error
	Suspect() bool
}

type AuditHandler struct {
	service AuditService
	logger  *slog.Logger
}

func NewAuditHandler(service AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{service: service, logger: logger}
}

// Register mounts the audit read endpoints; the caller wraps them in auth.
func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/v1/audit/records", h.HandleRead)
	r.Get("/v1/audit/events/{eventID}", h.HandleFind)
	r.Get("/v1/audit/verify", h.HandleVerify)
}

// HandleRead handles GET /v1/audit/records?from=&to=.
func (h *AuditHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	from, ok := queryUint(r, "from", 0)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Description: "from must be a non-negative integer"})
		return
	}
	to, ok := queryUint(r, "to", ^uint64(0))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Description: "to must be a non-negative integer"})
		return
	}

	records, err := h.service.Read(r.Context(), from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// HandleFind handles GET /v1/audit/events/{eventID}, resolving the record
// through the event index.
func (h *AuditHandler) HandleFind(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	record, err := h.service.Find(r.Context(), eventID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleVerify handles GET /v1/audit/verify, walking the full chain.
func (h *AuditHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Verify(r.Context()); err != nil {
		var integrity *audit.IntegrityError
		if errors.As(err, &integrity) {
			h.logger.ErrorContext(r.Context(), "audit chain verification failed",
				"sequence_no", integrity.SequenceNo,
				"reason", integrity.Reason,
			)
			writeJSON(w, http.StatusConflict, map[string]any{
				"intact":      false,
				"sequence_no": integrity.SequenceNo,
				"reason":      integrity.Reason,
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intact": true})
}

func queryUint(r *http.Request, key string, fallback uint64) (uint64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
