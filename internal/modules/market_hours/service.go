// Package market_hours decides which hours fall inside exchange trading sessions.
package market_hours

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
)

// ExchangeTimezone is the reference timezone for trading sessions and bucketing
const ExchangeTimezone = "America/New_York"

// statusLookahead bounds the search for the next session
const statusLookahead = 14 * 24 * time.Hour

// CalendarCache is the subset of clientdata.Repository used by the service
type CalendarCache interface {
	Store(table, key string, data interface{}, ttl time.Duration) error
	GetIfFresh(table, key string, dest interface{}) (bool, error)
	Get(table, key string, dest interface{}) (bool, error)
}

// MarketStatus is the current state of the exchange
type MarketStatus struct {
	Open      bool   `json:"open"`
	Timezone  string `json:"timezone"`
	ClosesAt  string `json:"closes_at,omitempty"`  // HH:MM local, when open
	OpensAt   string `json:"opens_at,omitempty"`   // HH:MM local, when closed
	OpensDate string `json:"opens_date,omitempty"` // set when the next session is on a later date
}

// MarketHoursService fetches the trading calendar with a persistent cache
type MarketHoursService struct {
	provider domain.CalendarProvider
	cache    CalendarCache
	loc      *time.Location
	log      zerolog.Logger
}

// NewMarketHoursService creates a new market hours service. cache may be nil.
func NewMarketHoursService(provider domain.CalendarProvider, cache CalendarCache, log zerolog.Logger) (*MarketHoursService, error) {
	loc, err := time.LoadLocation(ExchangeTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange timezone: %w", err)
	}
	return &MarketHoursService{
		provider: provider,
		cache:    cache,
		loc:      loc,
		log:      log.With().Str("service", "market_hours").Logger(),
	}, nil
}

// Location returns the exchange timezone
func (s *MarketHoursService) Location() *time.Location {
	return s.loc
}

// GetTradingCalendar returns all sessions whose date lies in [start, end] (exchange-local dates).
// The calendar is fetched in whole-month chunks so consecutive runs share cache entries.
func (s *MarketHoursService) GetTradingCalendar(ctx context.Context, start, end time.Time) ([]domain.TradingDay, error) {
	start = start.In(s.loc)
	end = end.In(s.loc)
	if end.Before(start) {
		return nil, fmt.Errorf("calendar range end before start: %w", domain.ErrInvalidArgument)
	}

	fromDate := start.Format("2006-01-02")
	toDate := end.Format("2006-01-02")

	var days []domain.TradingDay
	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, s.loc)
	for !month.After(end) {
		chunk, err := s.getMonth(ctx, month)
		if err != nil {
			return nil, err
		}
		for _, d := range chunk {
			if d.Date >= fromDate && d.Date <= toDate {
				days = append(days, d)
			}
		}
		month = month.AddDate(0, 1, 0)
	}

	return days, nil
}

// getMonth returns the sessions of one calendar month, cache first,
// falling back to stale cache when the provider fails.
func (s *MarketHoursService) getMonth(ctx context.Context, month time.Time) ([]domain.TradingDay, error) {
	key := month.Format("2006-01")

	if s.cache != nil {
		var cached []domain.TradingDay
		ok, err := s.cache.GetIfFresh(clientdata.TableTradingCalendar, key, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("month", key).Msg("Failed to read calendar cache")
		} else if ok {
			return cached, nil
		}
	}

	last := month.AddDate(0, 1, -1)
	days, err := s.provider.GetTradingCalendar(ctx, month, last)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if stale, ok := s.getStale(key); ok {
			s.log.Warn().Err(err).Str("month", key).Msg("Calendar provider failed, using stale cached calendar")
			return stale, nil
		}
		return nil, fmt.Errorf("failed to fetch calendar for %s: %v: %w", key, err, domain.ErrCalendarUnavailable)
	}

	if s.cache != nil {
		if err := s.cache.Store(clientdata.TableTradingCalendar, key, days, clientdata.TTLTradingCalendar); err != nil {
			s.log.Warn().Err(err).Str("month", key).Msg("Failed to cache trading calendar")
		}
	}

	s.log.Debug().Str("month", key).Int("sessions", len(days)).Msg("Fetched trading calendar")
	return days, nil
}

func (s *MarketHoursService) getStale(key string) ([]domain.TradingDay, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached []domain.TradingDay
	ok, err := s.cache.Get(clientdata.TableTradingCalendar, key, &cached)
	if err != nil || !ok {
		return nil, false
	}
	return cached, true
}

// Gate fetches the calendar covering [start, end] once and returns an eligibility checker
func (s *MarketHoursService) Gate(ctx context.Context, start, end time.Time) (*Gate, error) {
	days, err := s.GetTradingCalendar(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return NewGate(days, s.loc)
}

// GetMarketStatus reports whether the exchange is open at now and when it next opens or closes
func (s *MarketHoursService) GetMarketStatus(ctx context.Context, now time.Time) (*MarketStatus, error) {
	gate, err := s.Gate(ctx, now, now.Add(statusLookahead))
	if err != nil {
		return nil, err
	}

	local := now.In(s.loc)
	status := &MarketStatus{Timezone: s.loc.String()}

	if sess, ok := gate.sessionFor(local); ok && gate.IsEligible(now) {
		status.Open = true
		status.ClosesAt = sess.close.Format("15:04")
		return status, nil
	}

	if next, ok := gate.NextOpen(now); ok {
		next = next.In(s.loc)
		status.OpensAt = next.Format("15:04")
		if next.Format("2006-01-02") != local.Format("2006-01-02") {
			status.OpensDate = next.Format("2006-01-02")
		}
	}

	return status, nil
}
