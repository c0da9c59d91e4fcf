package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"riskgate/internal/platform/middleware"
)

// KillSwitch is the operator-facing emergency control.
type KillSwitch interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	IsEscalateOnly(ctx context.Context) bool
}

type AdminHandler struct {
	killSwitch KillSwitch
	logger     *slog.Logger
}

func NewAdminHandler(killSwitch KillSwitch, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{killSwitch: killSwitch, logger: logger}
}

// Register mounts the admin endpoints; the caller wraps them in auth.
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/v1/admin/killswitch", h.HandleKillSwitch)
	r.Get("/v1/admin/killswitch", h.HandleKillSwitchStatus)
}

type killSwitchRequest struct {
	Active bool `json:"active"`
}

// HandleKillSwitch handles POST /v1/admin/killswitch, forcing or releasing
// escalate-only mode. Every toggle is logged with the operator identity.
func (h *AdminHandler) HandleKillSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Description: "malformed JSON body"})
		return
	}

	var err error
	if req.Active {
		err = h.killSwitch.Activate(ctx)
	} else {
		err = h.killSwitch.Deactivate(ctx)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.WarnContext(ctx, "kill switch toggled",
		"active", req.Active,
		"operator", middleware.GetSubject(ctx),
		"request_id", middleware.GetRequestID(ctx),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"escalate_only": req.Active})
}

// HandleKillSwitchStatus handles GET /v1/admin/killswitch.
func (h *AdminHandler) HandleKillSwitchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"escalate_only": h.killSwitch.IsEscalateOnly(r.Context()),
	})
}
