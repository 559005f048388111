package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the history route
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.HandleGetHistory)
}
