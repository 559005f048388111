package domain

import (
	"context"
	"time"
)

// PriceSource is the raw market data provider.
// Implementations classify failures as ErrNotFound, ErrRateLimited or ErrUnavailable.
type PriceSource interface {
	// GetLatestPrice returns the most recent trade or quote price
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)

	// GetHistoricalPrice returns the close of the bar starting at t.
	// Returns nil, nil when t is too recent to query or no bar exists.
	GetHistoricalPrice(ctx context.Context, symbol string, t time.Time) (*float64, error)

	// GetBenchmarkSeries returns the bars between start and end, oldest first
	GetBenchmarkSeries(ctx context.Context, symbol string, start, end time.Time, granularity Granularity) ([]Bar, error)
}

// PriceProvider is the cached, retrying price layer consumed by the services
type PriceProvider interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)

	// GetMultiplePrices omits symbols whose price could not be fetched
	GetMultiplePrices(ctx context.Context, symbols []string) map[string]float64

	GetHistoricalPrice(ctx context.Context, symbol string, t time.Time) (*float64, error)
	GetBenchmarkSeries(ctx context.Context, symbol string, start, end time.Time, granularity Granularity) ([]Bar, error)
}

// CalendarProvider supplies the exchange trading calendar
type CalendarProvider interface {
	GetTradingCalendar(ctx context.Context, start, end time.Time) ([]TradingDay, error)
}

// RiskFreeRateProvider supplies the annualized risk-free rate as a decimal fraction
type RiskFreeRateProvider interface {
	RiskFreeRate(ctx context.Context) (float64, error)
}

// Cache is a process-wide key/value store with per-entry expiry
type Cache interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{}, ttl time.Duration)
}
