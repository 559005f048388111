// Package handlers provides HTTP handlers for price lookups.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/modules/prices"
	"github.com/aristath/papertrader/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// PriceService is the subset of prices.Service used by the handlers
type PriceService interface {
	GetStockPrice(ctx context.Context, symbol string) prices.Quote
	GetStockPrices(ctx context.Context, symbols []string) []prices.Quote
	GetMultiplePrices(ctx context.Context, symbols []string) map[string]float64
}

// Handler handles price HTTP requests
type Handler struct {
	service        PriceService
	log            zerolog.Logger
	streamInterval time.Duration
}

// NewHandler creates a new prices handler
func NewHandler(service PriceService, streamInterval time.Duration, log zerolog.Logger) *Handler {
	if streamInterval <= 0 {
		streamInterval = 5 * time.Second
	}
	return &Handler{
		service:        service,
		streamInterval: streamInterval,
		log:            log.With().Str("handler", "prices").Logger(),
	}
}

// HandleGetPrice handles GET /api/prices/{symbol}
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := utils.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	quote := h.service.GetStockPrice(r.Context(), symbol)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": quote,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPrices handles GET /api/prices?symbols=A,B
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbols := utils.ParseSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		http.Error(w, "symbols query parameter is required", http.StatusBadRequest)
		return
	}

	quotes := h.service.GetStockPrices(r.Context(), symbols)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"prices": quotes,
			"count":  len(quotes),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
