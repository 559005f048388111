package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/market_hours"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	status *market_hours.MarketStatus
	days   []domain.TradingDay
	err    error
}

func (f *fakeService) GetMarketStatus(ctx context.Context, now time.Time) (*market_hours.MarketStatus, error) {
	return f.status, f.err
}

func (f *fakeService) GetTradingCalendar(ctx context.Context, start, end time.Time) ([]domain.TradingDay, error) {
	return f.days, f.err
}

func serve(svc StatusService, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandleGetStatus(t *testing.T) {
	svc := &fakeService{status: &market_hours.MarketStatus{Open: true, Timezone: "America/New_York", ClosesAt: "16:00"}}

	w := serve(svc, "/market-hours/status")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data market_hours.MarketStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Data.Open)
	assert.Equal(t, "16:00", response.Data.ClosesAt)
}

func TestHandleGetStatus_CalendarUnavailable(t *testing.T) {
	w := serve(&fakeService{err: domain.ErrCalendarUnavailable}, "/market-hours/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleGetCalendar(t *testing.T) {
	svc := &fakeService{days: []domain.TradingDay{{Date: "2026-03-02", Open: "09:30", Close: "16:00"}}}

	w := serve(svc, "/market-hours/calendar?start=2026-03-02&end=2026-03-02")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(svc, "/market-hours/calendar?start=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
