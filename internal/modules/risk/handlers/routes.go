package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk metrics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/metrics", h.HandleGetMetrics)

		// Single-metric endpoints
		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/volatility", h.HandleGetPortfolioVolatility)
			r.Get("/sharpe", h.HandleGetPortfolioSharpe)
			r.Get("/sortino", h.HandleGetPortfolioSortino)
			r.Get("/max-drawdown", h.HandleGetPortfolioMaxDrawdown)
			r.Get("/beta", h.HandleGetPortfolioBeta)
		})
	})
}
