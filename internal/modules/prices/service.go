// Package prices provides the cached, retrying price layer over the market data provider.
package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLatestTTL is how long a live price is served from memory
	DefaultLatestTTL = 10 * time.Second
	// HistoricalTTL applies to resolved historical bars, which never change
	HistoricalTTL = 24 * time.Hour

	maxAttempts      = 3
	retryBackoffUnit = 400 * time.Millisecond
	fetchConcurrency = 8
)

// LastKnownStore persists the most recent successful quote per symbol
type LastKnownStore interface {
	Store(table, key string, data interface{}, ttl time.Duration) error
	Get(table, key string, dest interface{}) (bool, error)
}

type lastKnown struct {
	Price     float64   `msgpack:"price"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// Service wraps a PriceSource with an in-memory cache, request coalescing
// and retry on rate limiting.
type Service struct {
	source    domain.PriceSource
	cache     domain.Cache
	lastKnown LastKnownStore
	group     singleflight.Group
	log       zerolog.Logger
	latestTTL time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewService creates a price service. lastKnown may be nil.
func NewService(source domain.PriceSource, cache domain.Cache, lastKnown LastKnownStore, latestTTL time.Duration, log zerolog.Logger) *Service {
	if latestTTL <= 0 {
		latestTTL = DefaultLatestTTL
	}
	return &Service{
		source:    source,
		cache:     cache,
		lastKnown: lastKnown,
		latestTTL: latestTTL,
		log:       log.With().Str("service", "prices").Logger(),
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry retries fn on ErrRateLimited only, backing off 400ms × attempt
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		s.log.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Msg("Rate limited by price source, backing off")

		if sleepErr := s.sleep(ctx, retryBackoffUnit*time.Duration(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func latestKey(symbol string) string {
	return "latest:" + symbol
}

func historicalKey(symbol string, t time.Time) string {
	return fmt.Sprintf("hist:%s:%d", symbol, t.Unix())
}

// GetLatestPrice returns the current price for symbol, from cache when fresh
func (s *Service) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("empty symbol: %w", domain.ErrInvalidArgument)
	}

	key := latestKey(symbol)
	if v, ok := s.cache.Get(key); ok {
		return v.(float64), nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var price float64
		err := s.withRetry(ctx, "latest", func() error {
			p, err := s.source.GetLatestPrice(ctx, symbol)
			if err != nil {
				return err
			}
			price = p
			return nil
		})
		if err != nil {
			return 0.0, err
		}

		s.cache.Put(key, price, s.latestTTL)
		s.rememberLastKnown(symbol, price)
		return price, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest price for %s: %w", symbol, err)
	}
	return v.(float64), nil
}

func (s *Service) rememberLastKnown(symbol string, price float64) {
	if s.lastKnown == nil {
		return
	}
	entry := lastKnown{Price: price, FetchedAt: time.Now().UTC()}
	if err := s.lastKnown.Store(clientdata.TableCurrentPrices, symbol, entry, clientdata.TTLCurrentPrice); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist last known price")
	}
}

// GetLastKnownPrice returns the last persisted quote for symbol, however old.
// The second return value is false when no quote was ever stored.
func (s *Service) GetLastKnownPrice(symbol string) (float64, bool) {
	if s.lastKnown == nil {
		return 0, false
	}
	var entry lastKnown
	ok, err := s.lastKnown.Get(clientdata.TableCurrentPrices, utils.NormalizeSymbol(symbol), &entry)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to read last known price")
		return 0, false
	}
	if !ok || entry.Price <= 0 {
		return 0, false
	}
	return entry.Price, true
}

// GetMultiplePrices fetches prices concurrently. Symbols that fail are omitted.
func (s *Service) GetMultiplePrices(ctx context.Context, symbols []string) map[string]float64 {
	symbols = utils.UniqueSymbols(symbols)
	results := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	prices := make([]float64, len(symbols))
	ok := make([]bool, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			price, err := s.GetLatestPrice(gctx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed")
				return nil
			}
			prices[i] = price
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, symbol := range symbols {
		if ok[i] {
			results[symbol] = prices[i]
		}
	}
	return results
}

// GetHistoricalPrice returns the 1-minute close at t, or nil when none is available.
// Only resolved prices are cached; a nil result is re-queried next time.
func (s *Service) GetHistoricalPrice(ctx context.Context, symbol string, t time.Time) (*float64, error) {
	symbol = utils.NormalizeSymbol(symbol)
	key := historicalKey(symbol, t)
	if v, ok := s.cache.Get(key); ok {
		price := v.(float64)
		return &price, nil
	}

	var result *float64
	err := s.withRetry(ctx, "historical", func() error {
		p, err := s.source.GetHistoricalPrice(ctx, symbol, t)
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get historical price for %s at %s: %w", symbol, t.Format(time.RFC3339), err)
	}

	if result != nil {
		s.cache.Put(key, *result, HistoricalTTL)
	}
	return result, nil
}

// GetBenchmarkSeries returns the bars for symbol between start and end, oldest first
func (s *Service) GetBenchmarkSeries(ctx context.Context, symbol string, start, end time.Time, granularity domain.Granularity) ([]domain.Bar, error) {
	symbol = utils.NormalizeSymbol(symbol)

	var series []domain.Bar
	err := s.withRetry(ctx, "benchmark", func() error {
		out, err := s.source.GetBenchmarkSeries(ctx, symbol, start, end, granularity)
		if err != nil {
			return err
		}
		series = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get benchmark series for %s: %w", symbol, err)
	}
	return series, nil
}

// Quote is a single price lookup result as exposed over the API
type Quote struct {
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price"`
	Success bool    `json:"success"`
}

// GetStockPrice returns a Quote for one symbol, with Success=false on failure
func (s *Service) GetStockPrice(ctx context.Context, symbol string) Quote {
	symbol = utils.NormalizeSymbol(symbol)
	price, err := s.GetLatestPrice(ctx, symbol)
	if err != nil {
		return Quote{Symbol: symbol}
	}
	return Quote{Symbol: symbol, Price: price, Success: true}
}

// GetStockPrices returns one Quote per requested symbol in request order
func (s *Service) GetStockPrices(ctx context.Context, symbols []string) []Quote {
	symbols = utils.UniqueSymbols(symbols)
	prices := s.GetMultiplePrices(ctx, symbols)

	quotes := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		price, ok := prices[symbol]
		quotes = append(quotes, Quote{Symbol: symbol, Price: price, Success: ok})
	}
	return quotes
}

// GetCachedPrices returns whatever is in the memory cache without touching the source
func (s *Service) GetCachedPrices(symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, symbol := range utils.UniqueSymbols(symbols) {
		if v, ok := s.cache.Get(latestKey(symbol)); ok {
			out[symbol] = v.(float64)
		}
	}
	return out
}
