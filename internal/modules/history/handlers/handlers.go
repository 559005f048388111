// Package handlers provides HTTP handlers for portfolio history.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/history"
	"github.com/rs/zerolog"
)

// HistoryService is the subset of history.Service used by the handlers
type HistoryService interface {
	GetHistory(ctx context.Context, userID string, r history.Range, interval history.Interval) (*history.History, error)
}

// Handler handles history HTTP requests
type Handler struct {
	service HistoryService
	log     zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(service HistoryService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "history").Logger(),
	}
}

// HandleGetHistory handles GET /api/history?range=1W&interval=daily
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	rng := history.Range(r.URL.Query().Get("range"))
	if rng == "" {
		rng = history.Range1M
	}
	interval := history.Interval(r.URL.Query().Get("interval"))
	if interval == "" {
		interval = history.IntervalDaily
	}

	result, err := h.service.GetHistory(r.Context(), userID, rng, interval)
	if err != nil {
		if domain.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get history")
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"range":     rng,
			"interval":  interval,
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
