// Package handlers provides HTTP handlers for market hours operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/market_hours"
	"github.com/rs/zerolog"
)

// StatusService is the subset of MarketHoursService used by the handlers
type StatusService interface {
	GetMarketStatus(ctx context.Context, now time.Time) (*market_hours.MarketStatus, error)
	GetTradingCalendar(ctx context.Context, start, end time.Time) ([]domain.TradingDay, error)
}

// Handler handles market hours HTTP requests
type Handler struct {
	service StatusService
	log     zerolog.Logger
	now     func() time.Time
}

// NewHandler creates a new market hours handler
func NewHandler(service StatusService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "market_hours").Logger(),
		now:     time.Now,
	}
}

// HandleGetStatus handles GET /api/market-hours/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	status, err := h.service.GetMarketStatus(r.Context(), now)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get market status")
		http.Error(w, "Failed to get market status", statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": status,
		"metadata": map[string]interface{}{
			"timestamp": now.Format(time.RFC3339),
		},
	})
}

// HandleGetCalendar handles GET /api/market-hours/calendar?start=YYYY-MM-DD&end=YYYY-MM-DD
// Defaults to the next 7 days.
func (h *Handler) HandleGetCalendar(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	start, end := now, now.AddDate(0, 0, 7)

	if s := r.URL.Query().Get("start"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			http.Error(w, "Invalid start date", http.StatusBadRequest)
			return
		}
		start = parsed
	}
	if e := r.URL.Query().Get("end"); e != "" {
		parsed, err := time.Parse("2006-01-02", e)
		if err != nil {
			http.Error(w, "Invalid end date", http.StatusBadRequest)
			return
		}
		end = parsed
	}

	days, err := h.service.GetTradingCalendar(r.Context(), start, end)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trading calendar")
		http.Error(w, "Failed to get trading calendar", statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"days":  days,
			"count": len(days),
		},
		"metadata": map[string]interface{}{
			"timestamp": now.Format(time.RFC3339),
		},
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCalendarUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
