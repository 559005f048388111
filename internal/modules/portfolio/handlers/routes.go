package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/summary", h.HandleGetSummary)             // NAV, P&L and valued positions
		r.Get("/concentration", h.HandleGetConcentration) // Concentration metrics
	})
}
