// Package handlers provides HTTP handlers for risk metrics operations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/risk"
	"github.com/rs/zerolog"
)

// MetricsService is the subset of risk.Service used by the handlers
type MetricsService interface {
	GetRiskMetrics(ctx context.Context, userID string) (*risk.Report, error)
}

// Handler handles risk metrics HTTP requests
type Handler struct {
	service MetricsService
	log     zerolog.Logger
}

// NewHandler creates a new risk metrics handler
func NewHandler(service MetricsService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetMetrics handles GET /api/risk/metrics
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"annualization": map[string]interface{}{
				"periods_per_year": risk.HoursPerYear,
				"frequency":        "hourly",
			},
		},
	})
}

// HandleGetPortfolioVolatility handles GET /api/risk/portfolio/volatility
func (h *Handler) HandleGetPortfolioVolatility(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "volatility", func(rep *risk.Report) float64 { return rep.Volatility })
}

// HandleGetPortfolioSharpe handles GET /api/risk/portfolio/sharpe
func (h *Handler) HandleGetPortfolioSharpe(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "sharpe_ratio", func(rep *risk.Report) float64 { return rep.SharpeRatio })
}

// HandleGetPortfolioSortino handles GET /api/risk/portfolio/sortino
func (h *Handler) HandleGetPortfolioSortino(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "sortino_ratio", func(rep *risk.Report) float64 { return rep.SortinoRatio })
}

// HandleGetPortfolioMaxDrawdown handles GET /api/risk/portfolio/max-drawdown
func (h *Handler) HandleGetPortfolioMaxDrawdown(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "max_drawdown", func(rep *risk.Report) float64 { return rep.MaxDrawdown })
}

// HandleGetPortfolioBeta handles GET /api/risk/portfolio/beta
func (h *Handler) HandleGetPortfolioBeta(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "beta", func(rep *risk.Report) float64 { return rep.Beta })
}

func (h *Handler) single(w http.ResponseWriter, r *http.Request, name string, pick func(*risk.Report) float64) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			name:           pick(report),
			"observations": report.Observations,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) (*risk.Report, bool) {
	userID, _ := identity.UserID(r.Context())

	report, err := h.service.GetRiskMetrics(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to compute risk metrics")
		http.Error(w, "Failed to compute risk metrics", http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
