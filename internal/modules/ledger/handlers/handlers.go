// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountantService is the subset of ledger.Accountant used by the handlers
type AccountantService interface {
	ApplyTransaction(ctx context.Context, userID string, req ledger.TransactionRequest) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	ListPositions(ctx context.Context, userID string) ([]domain.Position, error)
	GetTransactionStats(ctx context.Context, userID string) (*ledger.TransactionStats, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	accountant AccountantService
	log        zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(accountant AccountantService, log zerolog.Logger) *Handler {
	return &Handler{
		accountant: accountant,
		log:        log.With().Str("handler", "ledger").Logger(),
	}
}

// CreateTransactionRequest is the body of POST /api/transactions
type CreateTransactionRequest struct {
	Action   string           `json:"action"`
	Symbol   string           `json:"symbol,omitempty"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
}

// HandleCreateTransaction handles POST /api/transactions
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	var body CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req := ledger.TransactionRequest{Action: domain.Action(body.Action), Symbol: body.Symbol}
	if body.Quantity != nil {
		req.Quantity = *body.Quantity
	}
	if body.Amount != nil {
		req.Amount = *body.Amount
	}

	txn, err := h.accountant.ApplyTransaction(r.Context(), userID, req)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to create transaction")
			http.Error(w, "Failed to create transaction", status)
			return
		}
		h.writeError(w, status, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": txn,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetTransactions handles GET /api/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	transactions, err := h.accountant.ListTransactions(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get transactions")
		http.Error(w, "Failed to get transactions", http.StatusInternalServerError)
		return
	}

	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"transactions": transactions,
			"count":        len(transactions),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetTransactionStats handles GET /api/transactions/stats
func (h *Handler) HandleGetTransactionStats(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	stats, err := h.accountant.GetTransactionStats(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get transaction stats")
		http.Error(w, "Failed to get transaction stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": stats,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPositions handles GET /api/positions
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	positions, err := h.accountant.ListPositions(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get positions")
		http.Error(w, "Failed to get positions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"positions": positions,
			"count":     len(positions),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsBusinessRule(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a business error with a machine-readable code
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    errorCode(err),
			"message": err.Error(),
		},
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrNoShortSelling):
		return "no_short_selling"
	case errors.Is(err, domain.ErrOversell):
		return "oversell"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrPriceUnavailable):
		return "price_unavailable"
	default:
		return "invalid_argument"
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
