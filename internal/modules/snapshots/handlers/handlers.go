// Package handlers provides HTTP handlers for snapshot operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// BackfillBudget bounds one backfill request below the API timeout.
// Hours created within the budget are kept and reported; the rest follow on the next call.
const BackfillBudget = 45 * time.Second

// Engine is the subset of snapshots.Engine used by the handlers
type Engine interface {
	RunBackfill(ctx context.Context, userID string) (*snapshots.BackfillResult, error)
}

// Store is the subset of snapshots.Repository used by the handlers
type Store interface {
	Latest(ctx context.Context, userID string) (*domain.Snapshot, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]domain.Snapshot, error)
}

// Handler handles snapshot HTTP requests
type Handler struct {
	engine Engine
	store  Store
	log    zerolog.Logger
	budget time.Duration
}

// NewHandler creates a new snapshot handler
func NewHandler(engine Engine, store Store, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		store:  store,
		log:    log.With().Str("handler", "snapshots").Logger(),
		budget: BackfillBudget,
	}
}

// HandleBackfill handles POST /api/snapshots/backfill
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), h.budget)
	defer cancel()

	result, err := h.engine.RunBackfill(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Snapshot backfill failed")
		if errors.Is(err, domain.ErrCalendarUnavailable) {
			http.Error(w, "Trading calendar unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Snapshot backfill failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetLatest handles GET /api/snapshots/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	snap, err := h.store.Latest(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest snapshot")
		http.Error(w, "Failed to get latest snapshot", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "No snapshots yet", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListSnapshots handles GET /api/snapshots?since=RFC3339
func (h *Handler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	snaps, err := h.store.ListSince(r.Context(), userID, since)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"snapshots": snaps,
			"count":     len(snaps),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
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
