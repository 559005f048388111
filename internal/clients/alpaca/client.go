// Package alpaca provides a market data and calendar client for the Alpaca REST APIs.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultDataURL    = "https://data.alpaca.markets"
	DefaultTradingURL = "https://paper-api.alpaca.markets"
	DefaultFeed       = "iex"
	DefaultTimeout    = 15 * time.Second
	DefaultRateLimit  = 3 // requests per second

	// Bars newer than this are not served on the consolidated feed
	recencyDelay = 15 * time.Minute
	// Extra margin so the 1-minute bar window has fully closed
	recencyMargin = 2 * time.Minute

	barsPageLimit = 10000
)

// Config configures the client
type Config struct {
	APIKey     string
	APISecret  string
	DataURL    string
	TradingURL string
	Feed       string
	RateLimit  float64
}

// Client talks to the Alpaca market data and trading APIs
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
	now        func() time.Time
	cfg        Config
}

// NewClient creates a new Alpaca client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.TradingURL == "" {
		cfg.TradingURL = DefaultTradingURL
	}
	if cfg.Feed == "" {
		cfg.Feed = DefaultFeed
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		log:        log.With().Str("client", "alpaca").Logger(),
		now:        time.Now,
	}
}

// APIError is a non-2xx response from Alpaca
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap classifies the status code into a domain error.
// Unknown or malformed symbols come back as 404, 400 or 422.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound,
		e.StatusCode == http.StatusBadRequest,
		e.StatusCode == http.StatusUnprocessableEntity:
		return domain.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return domain.ErrUnavailable
	}
}

// get performs a rate-limited, authenticated GET and decodes the JSON body
func (c *Client) get(ctx context.Context, baseURL, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecret)
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("path", path).Msg("Alpaca API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to execute request: %v: %w", err, domain.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %v: %w", err, domain.ErrUnavailable)
	}

	return nil
}

type latestTradeResponse struct {
	Trade *struct {
		Price float64 `json:"p"`
	} `json:"trade"`
}

type latestQuoteResponse struct {
	Quote *struct {
		BidPrice float64 `json:"bp"`
		AskPrice float64 `json:"ap"`
	} `json:"quote"`
}

// GetLatestPrice returns the last trade price, falling back to the quote
// midpoint, then the bid, then the ask.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{"feed": {c.cfg.Feed}}

	var trade latestTradeResponse
	err := c.get(ctx, c.cfg.DataURL, fmt.Sprintf("/v2/stocks/%s/trades/latest", url.PathEscape(symbol)), params, &trade)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	if err == nil && trade.Trade != nil && trade.Trade.Price > 0 {
		return trade.Trade.Price, nil
	}

	var quote latestQuoteResponse
	if err := c.get(ctx, c.cfg.DataURL, fmt.Sprintf("/v2/stocks/%s/quotes/latest", url.PathEscape(symbol)), params, &quote); err != nil {
		return 0, err
	}
	if quote.Quote != nil {
		bid, ask := quote.Quote.BidPrice, quote.Quote.AskPrice
		switch {
		case bid > 0 && ask > 0:
			return (bid + ask) / 2, nil
		case bid > 0:
			return bid, nil
		case ask > 0:
			return ask, nil
		}
	}

	return 0, fmt.Errorf("no trade or quote for %s: %w", symbol, domain.ErrNotFound)
}

type barsResponse struct {
	Bars          []domain.Bar `json:"bars"`
	NextPageToken *string `json:"next_page_token"`
}

// getBars collects all bars in [start, end), following pagination
func (c *Client) getBars(ctx context.Context, symbol string, start, end time.Time, granularity domain.Granularity) ([]domain.Bar, error) {
	params := url.Values{
		"timeframe":  {string(granularity)},
		"start":      {start.UTC().Format(time.RFC3339)},
		"end":        {end.UTC().Format(time.RFC3339)},
		"feed":       {c.cfg.Feed},
		"adjustment": {"raw"},
		"limit":      {fmt.Sprint(barsPageLimit)},
	}
	path := fmt.Sprintf("/v2/stocks/%s/bars", url.PathEscape(symbol))

	var all []domain.Bar
	for {
		var page barsResponse
		if err := c.get(ctx, c.cfg.DataURL, path, params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Bars...)

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		params.Set("page_token", *page.NextPageToken)
	}
	return all, nil
}

// GetHistoricalPrice returns the close of the 1-minute bar starting at t.
// Returns nil when t is inside the recency window or no bar was printed.
func (c *Client) GetHistoricalPrice(ctx context.Context, symbol string, t time.Time) (*float64, error) {
	if t.Add(recencyDelay + recencyMargin).After(c.now()) {
		return nil, nil
	}

	bars, err := c.getBars(ctx, symbol, t, t.Add(time.Minute), domain.GranularityMinute)
	if err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	price := bars[0].Close
	return &price, nil
}

// GetBenchmarkSeries returns the bars for symbol in [start, end], oldest first.
// Extended-hours bars are included; callers align them to their own timestamps.
func (c *Client) GetBenchmarkSeries(ctx context.Context, symbol string, start, end time.Time, granularity domain.Granularity) ([]domain.Bar, error) {
	bars, err := c.getBars(ctx, symbol, start, end, granularity)
	if err != nil {
		return nil, fmt.Errorf("failed to get benchmark bars for %s: %w", symbol, err)
	}
	return bars, nil
}

type calendarDay struct {
	Date  string `json:"date"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// GetTradingCalendar returns the exchange sessions between start and end (inclusive dates)
func (c *Client) GetTradingCalendar(ctx context.Context, start, end time.Time) ([]domain.TradingDay, error) {
	params := url.Values{
		"start": {start.Format("2006-01-02")},
		"end":   {end.Format("2006-01-02")},
	}

	var days []calendarDay
	if err := c.get(ctx, c.cfg.TradingURL, "/v2/calendar", params, &days); err != nil {
		return nil, fmt.Errorf("failed to get trading calendar: %w", err)
	}

	result := make([]domain.TradingDay, 0, len(days))
	for _, d := range days {
		result = append(result, domain.TradingDay{Date: d.Date, Open: d.Open, Close: d.Close})
	}
	return result, nil
}
