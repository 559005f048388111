package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMetricsService struct {
	mock.Mock
}

func (m *mockMetricsService) GetRiskMetrics(ctx context.Context, userID string) (*risk.Report, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Report), args.Error(1)
}

func setupRouter(svc MetricsService) http.Handler {
	router := chi.NewRouter()
	router.Use(identity.RequireUser(nil))
	NewHandler(svc, zerolog.New(nil).Level(zerolog.Disabled)).RegisterRoutes(router)
	return router
}

func request(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(identity.HeaderUserID, "user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleGetMetrics(t *testing.T) {
	svc := new(mockMetricsService)
	svc.On("GetRiskMetrics", "user-1").Return(&risk.Report{
		Metrics:      risk.Metrics{Volatility: 0.2, SharpeRatio: 1.5, MaxDrawdown: 12.5, Beta: 0.9, Observations: 40},
		RiskFreeRate: 0.045,
		Benchmark:    "SPY",
	}, nil)

	w := request(setupRouter(svc), "/risk/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data     risk.Report            `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0.2, body.Data.Volatility)
	assert.Equal(t, 12.5, body.Data.MaxDrawdown)
	assert.Equal(t, "SPY", body.Data.Benchmark)
	assert.Contains(t, body.Metadata, "annualization")
}

func TestSingleMetricEndpoints(t *testing.T) {
	svc := new(mockMetricsService)
	svc.On("GetRiskMetrics", "user-1").Return(&risk.Report{
		Metrics: risk.Metrics{Volatility: 0.2, SharpeRatio: 1.5, SortinoRatio: 2.1, MaxDrawdown: 12.5, Beta: 0.9, Observations: 40},
	}, nil)
	router := setupRouter(svc)

	tests := []struct {
		path string
		key  string
		want float64
	}{
		{"/risk/portfolio/volatility", "volatility", 0.2},
		{"/risk/portfolio/sharpe", "sharpe_ratio", 1.5},
		{"/risk/portfolio/sortino", "sortino_ratio", 2.1},
		{"/risk/portfolio/max-drawdown", "max_drawdown", 12.5},
		{"/risk/portfolio/beta", "beta", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			w := request(router, tt.path)
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Data map[string]float64 `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Data[tt.key])
			assert.Equal(t, 40.0, body.Data["observations"])
		})
	}
}

func TestHandleGetMetrics_Error(t *testing.T) {
	svc := new(mockMetricsService)
	svc.On("GetRiskMetrics", "user-1").Return(nil, errors.New("db closed"))

	w := request(setupRouter(svc), "/risk/metrics")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
