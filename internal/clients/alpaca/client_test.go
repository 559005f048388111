package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:     "key",
		APISecret:  "secret",
		DataURL:    srv.URL,
		TradingURL: srv.URL,
		RateLimit:  1000,
	}, zerolog.Nop())
}

func TestGetLatestPrice_Trade(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.Equal(t, "/v2/stocks/AAPL/trades/latest", r.URL.Path)
		assert.Equal(t, "iex", r.URL.Query().Get("feed"))
		w.Write([]byte(`{"symbol":"AAPL","trade":{"p":187.25}}`))
	})

	price, err := client.GetLatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.25, price)
}

func TestGetLatestPrice_QuoteFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		quote   string
		want    float64
		wantErr error
	}{
		{"midpoint", `{"quote":{"bp":99,"ap":101}}`, 100, nil},
		{"bid only", `{"quote":{"bp":99,"ap":0}}`, 99, nil},
		{"ask only", `{"quote":{"bp":0,"ap":101}}`, 101, nil},
		{"empty book", `{"quote":{"bp":0,"ap":0}}`, 0, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v2/stocks/XYZ/trades/latest":
					w.Write([]byte(`{"trade":{"p":0}}`))
				case "/v2/stocks/XYZ/quotes/latest":
					w.Write([]byte(tt.quote))
				default:
					http.NotFound(w, r)
				}
			})

			price, err := client.GetLatestPrice(context.Background(), "XYZ")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, price)
		})
	}
}

func TestGetLatestPrice_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusInternalServerError, domain.ErrUnavailable},
		{http.StatusForbidden, domain.ErrUnavailable},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnprocessableEntity, domain.ErrNotFound},
		{http.StatusBadRequest, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.GetLatestPrice(context.Background(), "AAPL")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			assert.ErrorAs(t, err, &apiErr)
		})
	}
}

func TestGetHistoricalPrice(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1Min", q.Get("timeframe"))
		assert.Equal(t, "2026-03-02T15:00:00Z", q.Get("start"))
		assert.Equal(t, "2026-03-02T15:01:00Z", q.Get("end"))
		w.Write([]byte(`{"bars":[{"t":"2026-03-02T15:00:00Z","c":188.5}],"next_page_token":null}`))
	})
	client.now = func() time.Time { return at.Add(time.Hour) }

	price, err := client.GetHistoricalPrice(context.Background(), "AAPL", at)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, 188.5, *price)
}

func TestGetHistoricalPrice_TooRecent(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	called := false

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	client.now = func() time.Time { return at.Add(16 * time.Minute) }

	price, err := client.GetHistoricalPrice(context.Background(), "AAPL", at)
	require.NoError(t, err)
	assert.Nil(t, price)
	assert.False(t, called)
}

func TestGetHistoricalPrice_NoBar(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[]}`))
	})
	client.now = func() time.Time { return at.Add(time.Hour) }

	price, err := client.GetHistoricalPrice(context.Background(), "AAPL", at)
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestGetBenchmarkSeries_FollowsPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1Hour", r.URL.Query().Get("timeframe"))
		if r.URL.Query().Get("page_token") == "" {
			w.Write([]byte(`{"bars":[{"t":"2026-03-02T14:00:00Z","o":399.5,"c":400},{"t":"2026-03-02T15:00:00Z","o":400,"c":401}],"next_page_token":"abc"}`))
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("page_token"))
		w.Write([]byte(`{"bars":[{"t":"2026-03-02T16:00:00Z","o":401,"c":402}],"next_page_token":null}`))
	})

	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	series, err := client.GetBenchmarkSeries(context.Background(), "SPY", start, start.Add(3*time.Hour), domain.GranularityHour)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.True(t, series[0].Timestamp.Equal(start))
	assert.Equal(t, 399.5, series[0].Open)
	for i, want := range []float64{400, 401, 402} {
		assert.Equal(t, want, series[i].Close)
		assert.True(t, series[i].Timestamp.Equal(start.Add(time.Duration(i)*time.Hour)))
	}
}

func TestGetTradingCalendar(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/calendar", r.URL.Path)
		assert.Equal(t, "2026-03-02", r.URL.Query().Get("start"))
		assert.Equal(t, "2026-03-06", r.URL.Query().Get("end"))
		w.Write([]byte(`[{"date":"2026-03-02","open":"09:30","close":"16:00"},{"date":"2026-03-03","open":"09:30","close":"13:00"}]`))
	})

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	days, err := client.GetTradingCalendar(context.Background(), start, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, []domain.TradingDay{
		{Date: "2026-03-02", Open: "09:30", Close: "16:00"},
		{Date: "2026-03-03", Open: "09:30", Close: "13:00"},
	}, days)
}
