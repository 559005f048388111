// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// SummaryService is the subset of portfolio.Service used by the handlers
type SummaryService interface {
	GetSummary(ctx context.Context, userID string) (*portfolio.Summary, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service SummaryService
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service SummaryService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetSummary handles GET /api/portfolio/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetConcentration handles GET /api/portfolio/concentration
func (h *Handler) HandleGetConcentration(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"herfindahl_index": summary.Concentration.HerfindahlIndex,
			"top_5_weight":     summary.Concentration.Top5Weight,
			"num_positions":    summary.Concentration.NumPositions,
			"interpretation": map[string]string{
				"herfindahl": "Lower is more diversified (1/N is perfectly equal)",
				"top_n":      "Percentage of positions value in the top 5 holdings",
			},
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) (*portfolio.Summary, bool) {
	userID, _ := identity.UserID(r.Context())

	summary, err := h.service.GetSummary(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get portfolio summary")
		http.Error(w, "Failed to get portfolio summary", http.StatusInternalServerError)
		return nil, false
	}
	return summary, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
