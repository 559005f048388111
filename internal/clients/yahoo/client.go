// Package yahoo provides the risk-free rate from the Yahoo Finance 10-year Treasury yield (^TNX).
package yahoo

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// TreasuryYieldSymbol is the CBOE 10-year Treasury yield index
const TreasuryYieldSymbol = "^TNX"

// Quotes above this are in the legacy CBOE convention of yield × 10
const legacyScaleThreshold = 20.0

// CacheStore is the subset of clientdata.Repository used by the client
type CacheStore interface {
	Store(table, key string, data interface{}, ttl time.Duration) error
	GetIfFresh(table, key string, dest interface{}) (bool, error)
	Get(table, key string, dest interface{}) (bool, error)
}

type cachedRate struct {
	Rate      float64   `msgpack:"rate"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// Client fetches the risk-free rate using go-yfinance
type Client struct {
	cache CacheStore
	log   zerolog.Logger
	quote func(symbol string) (float64, error)
}

// NewClient creates a new Yahoo client. cache is optional.
func NewClient(cache CacheStore, log zerolog.Logger) *Client {
	return &Client{
		cache: cache,
		log:   log.With().Str("client", "yahoo").Logger(),
		quote: fetchRegularMarketPrice,
	}
}

func fetchRegularMarketPrice(symbol string) (float64, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	quote, err := t.Quote()
	if err != nil {
		return 0, fmt.Errorf("failed to get quote: %w", err)
	}
	if quote == nil || quote.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("no market price for %s", symbol)
	}
	return quote.RegularMarketPrice, nil
}

// yieldToFraction converts a ^TNX quote to an annual rate as a decimal fraction (4.5 -> 0.045)
func yieldToFraction(quote float64) float64 {
	percent := quote
	if percent >= legacyScaleThreshold {
		percent /= 10
	}
	return percent / 100
}

// RiskFreeRate returns the annualized risk-free rate as a decimal fraction.
// A fresh cached value is preferred; a stale one is returned when Yahoo fails.
func (c *Client) RiskFreeRate(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if c.cache != nil {
		var cached cachedRate
		if ok, err := c.cache.GetIfFresh(clientdata.TableRiskFreeRate, TreasuryYieldSymbol, &cached); err == nil && ok {
			c.log.Debug().Float64("rate", cached.Rate).Msg("Cache hit")
			return cached.Rate, nil
		}
	}

	raw, err := c.quote(TreasuryYieldSymbol)
	if err != nil {
		if stale, ok := c.getStale(); ok {
			c.log.Warn().
				Err(err).
				Float64("rate", stale).
				Msg("Yahoo quote failed, using stale cached rate")
			return stale, nil
		}
		return 0, fmt.Errorf("failed to fetch %s: %w", TreasuryYieldSymbol, err)
	}

	rate := yieldToFraction(raw)

	if c.cache != nil {
		entry := cachedRate{Rate: rate, FetchedAt: time.Now().UTC()}
		if err := c.cache.Store(clientdata.TableRiskFreeRate, TreasuryYieldSymbol, entry, clientdata.TTLRiskFreeRate); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache risk-free rate")
		}
	}

	c.log.Info().Float64("quote", raw).Float64("rate", rate).Msg("Fetched risk-free rate")
	return rate, nil
}

func (c *Client) getStale() (float64, bool) {
	if c.cache == nil {
		return 0, false
	}
	var cached cachedRate
	ok, err := c.cache.Get(clientdata.TableRiskFreeRate, TreasuryYieldSymbol, &cached)
	if err != nil || !ok {
		return 0, false
	}
	return cached.Rate, true
}
