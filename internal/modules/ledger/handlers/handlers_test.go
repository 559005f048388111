package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type staticPricer map[string]float64

func (p staticPricer) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, ok := p[symbol]
	if !ok {
		return 0, errors.New("no quote")
	}
	return price, nil
}

// setupTestRouter wires a real accountant over an in-memory ledger
func setupTestRouter(t *testing.T) http.Handler {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema(database.NameLedger)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	acc := ledger.NewAccountant(
		db,
		ledger.NewTransactionRepository(db, log),
		ledger.NewPositionRepository(db, log),
		staticPricer{"AAPL": 100, "MSFT": 50},
		nil,
		log,
	)

	r := chi.NewRouter()
	r.Use(identity.RequireUser(nil))
	NewHandler(acc, log).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(identity.HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHandleCreateTransaction(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "deposit",
			body:           map[string]interface{}{"action": "deposit", "amount": 1000},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "buy",
			body:           map[string]interface{}{"action": "buy", "symbol": "aapl", "quantity": "2"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "insufficient funds",
			body:           map[string]interface{}{"action": "buy", "symbol": "AAPL", "quantity": 100},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "insufficient_funds",
		},
		{
			name:           "oversell",
			body:           map[string]interface{}{"action": "sell", "symbol": "AAPL", "quantity": 3},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "oversell",
		},
		{
			name:           "short sell",
			body:           map[string]interface{}{"action": "sell", "symbol": "MSFT", "quantity": 1},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "no_short_selling",
		},
		{
			name:           "unpriceable symbol",
			body:           map[string]interface{}{"action": "buy", "symbol": "ZZZZ", "quantity": 1},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "price_unavailable",
		},
		{
			name:           "zero amount",
			body:           map[string]interface{}{"action": "deposit", "amount": 0},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_amount",
		},
		{
			name:           "unknown action",
			body:           map[string]interface{}{"action": "borrow", "amount": 5},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/transactions", "u1", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			response := decode(t, w)
			if tt.expectedCode != "" {
				errBody := response["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedCode, errBody["code"])
			} else {
				assert.NotNil(t, response["data"])
			}
		})
	}
}

func TestHandleCreateTransaction_InvalidBody(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString("{not json"))
	req.Header.Set(identity.HeaderUserID, "u1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetPositionsAndStats(t *testing.T) {
	router := setupTestRouter(t)

	require.Equal(t, http.StatusCreated, do(t, router, "POST", "/transactions", "u1",
		map[string]interface{}{"action": "deposit", "amount": 500}).Code)
	require.Equal(t, http.StatusCreated, do(t, router, "POST", "/transactions", "u1",
		map[string]interface{}{"action": "buy", "symbol": "AAPL", "quantity": 3}).Code)

	w := do(t, router, "GET", "/positions", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
	position := data["positions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "AAPL", position["symbol"])
	assert.Equal(t, "3", position["quantity"])

	// Other users see nothing
	w = do(t, router, "GET", "/positions", "u2", nil)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])

	w = do(t, router, "GET", "/transactions/stats", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total_transactions"])
	assert.Equal(t, "300", stats["total_bought"])

	w = do(t, router, "GET", "/transactions?limit=1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	txns := data["transactions"].([]interface{})
	require.Len(t, txns, 1)
	assert.Equal(t, string(domain.ActionBuy), txns[0].(map[string]interface{})["action"])
}

func TestRoutesRequireUser(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, "GET", "/positions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
