package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"riskgate/pkg/sentinel"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeError maps sentinel errors onto HTTP statuses so handlers stay free
// of status-code logic.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, sentinel.ErrMissingEventID),
		errors.Is(err, sentinel.ErrMissingSessionID),
		errors.Is(err, sentinel.ErrMissingUserID):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Description: err.Error()})
	case errors.Is(err, sentinel.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	case errors.Is(err, sentinel.ErrQueueFull), errors.Is(err, sentinel.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}
