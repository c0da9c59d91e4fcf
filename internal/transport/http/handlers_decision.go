// Package httptransport is the thin HTTP layer over the decision pipeline
// and audit trail. Handlers delegate to services and hold no business logic.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"riskgate/internal/domain"
	"riskgate/internal/platform/middleware"
)

// DecisionService runs the pipeline for one login event.
type DecisionService interface {
	Process(ctx context.Context, event domain.LoginEvent) (domain.Decision, error)
}

type DecisionHandler struct {
	service DecisionService
	logger  *slog.Logger
}

func NewDecisionHandler(service DecisionService, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{service: service, logger: logger}
}

// Register mounts the decision endpoint on the router.
func (h *DecisionHandler) Register(r chi.Router) {
	r.Post("/v1/decisions", h.HandleDecide)
}

type decisionResponse struct {
	EventID            string    `json:"event_id"`
	SessionID          string    `json:"session_id"`
	UserID             string    `json:"user_id"`
	Outcome            string    `json:"outcome"`
	Confidence         float64   `json:"confidence"`
	Risk               float64   `json:"risk"`
	Disagreement       float64   `json:"disagreement"`
	ConstraintsApplied []string  `json:"constraints_applied,omitempty"`
	Rationale          []string  `json:"rationale,omitempty"`
	DecidedAt          time.Time `json:"decided_at"`
}

// HandleDecide handles POST /v1/decisions.
func (h *DecisionHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	var event domain.LoginEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Description: "malformed JSON body"})
		return
	}

	decision, err := h.service.Process(ctx, event)
	if err != nil {
		h.logger.WarnContext(ctx, "decision request rejected",
			"request_id", requestID,
			"event_id", event.EventID,
			"error", err,
		)
		writeError(w, h.logger, err)
		return
	}

	h.logger.InfoContext(ctx, "decision served",
		"request_id", requestID,
		"event_id", decision.EventID,
		"outcome", decision.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	status := http.StatusOK
	if decision.Outcome == domain.OutcomeRequestFailed {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, decisionResponse{
		EventID:            decision.EventID,
		SessionID:          decision.SessionID,
		UserID:             decision.UserID,
		Outcome:            string(decision.Outcome),
		Confidence:         decision.Confidence,
		Risk:               decision.Risk,
		Disagreement:       decision.Disagreement,
		ConstraintsApplied: decision.ConstraintsApplied,
		Rationale:          decision.Rationale,
		DecidedAt:          decision.DecidedAt,
	})
}
