package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/market_hours"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

// weekdayCalendar opens 09:30-16:00 New York time, Monday to Friday
type weekdayCalendar struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *weekdayCalendar) GetTradingCalendar(ctx context.Context, start, end time.Time) ([]domain.TradingDay, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return nil, domain.ErrUnavailable
	}

	var days []domain.TradingDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, domain.TradingDay{Date: d.Format("2006-01-02"), Open: "09:30", Close: "16:00"})
	}
	return days, nil
}

func (c *weekdayCalendar) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakePricer serves fixed closes keyed by symbol and unix time
type fakePricer struct {
	mu     sync.Mutex
	closes map[string]map[int64]float64
	failOn map[string]bool
	delay  time.Duration
}

func newFakePricer() *fakePricer {
	return &fakePricer{
		closes: make(map[string]map[int64]float64),
		failOn: make(map[string]bool),
	}
}

func (p *fakePricer) set(symbol string, t time.Time, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closes[symbol] == nil {
		p.closes[symbol] = make(map[int64]float64)
	}
	p.closes[symbol][t.Unix()] = price
}

func (p *fakePricer) GetHistoricalPrice(ctx context.Context, symbol string, t time.Time) (*float64, error) {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[symbol] {
		return nil, domain.ErrUnavailable
	}
	price, ok := p.closes[symbol][t.Unix()]
	if !ok {
		return nil, nil
	}
	return &price, nil
}

// failingStore fails every Upsert after the first failAfter successes
type failingStore struct {
	*Repository
	failAfter int
	upserts   int
}

func (s *failingStore) Upsert(ctx context.Context, snap *domain.Snapshot) error {
	if s.upserts >= s.failAfter {
		return errors.New("disk full")
	}
	s.upserts++
	return s.Repository.Upsert(ctx, snap)
}

type fixture struct {
	engine    *Engine
	repo      *Repository
	txRepo    *ledger.TransactionRepository
	posRepo   *ledger.PositionRepository
	pricer    *fakePricer
	calendar  *weekdayCalendar
	hours     *market_hours.MarketHoursService
	historyDB *sql.DB
}

func openDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema(name)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	log := zerolog.Nop()

	ledgerDB := openDB(t, database.NameLedger)
	historyDB := openDB(t, database.NameHistory)

	calendar := &weekdayCalendar{}
	hours, err := market_hours.NewMarketHoursService(calendar, nil, log)
	require.NoError(t, err)

	f := &fixture{
		repo:      NewRepository(historyDB, log),
		txRepo:    ledger.NewTransactionRepository(ledgerDB, log),
		posRepo:   ledger.NewPositionRepository(ledgerDB, log),
		pricer:    newFakePricer(),
		calendar:  calendar,
		hours:     hours,
		historyDB: historyDB,
	}
	f.engine = NewEngine(f.repo, f.txRepo, f.posRepo, f.pricer, f.hours, 0, log)
	f.setNow(now)
	return f
}

func (f *fixture) setNow(now time.Time) {
	f.engine.now = func() time.Time { return now }
}

func (f *fixture) deposit(t *testing.T, amount string, at time.Time) {
	t.Helper()
	require.NoError(t, f.txRepo.Create(context.Background(), &domain.Transaction{
		ID:         uuid.New().String(),
		UserID:     testUser,
		Action:     domain.ActionDeposit,
		Price:      decimal.RequireFromString(amount),
		ExecutedAt: at,
	}))
}

// buy records the ledger entry and position directly, bypassing the accountant
func (f *fixture) buy(t *testing.T, symbol, qty, price string, at time.Time) {
	t.Helper()
	q := decimal.RequireFromString(qty)
	sym := symbol
	require.NoError(t, f.txRepo.Create(context.Background(), &domain.Transaction{
		ID:         uuid.New().String(),
		UserID:     testUser,
		Action:     domain.ActionBuy,
		Symbol:     &sym,
		Quantity:   &q,
		Price:      decimal.RequireFromString(price),
		ExecutedAt: at,
	}))
	require.NoError(t, f.posRepo.Upsert(context.Background(), &domain.Position{
		ID:          uuid.New().String(),
		UserID:      testUser,
		Symbol:      symbol,
		Quantity:    q,
		AvgCost:     decimal.RequireFromString(price),
		LastUpdated: at,
	}))
}

func (f *fixture) seedSnapshot(t *testing.T, at time.Time, value string) {
	t.Helper()
	require.NoError(t, f.repo.Upsert(context.Background(), &domain.Snapshot{
		UserID:    testUser,
		Timestamp: at,
		EOHValue:  decimal.RequireFromString(value),
	}))
}

func (f *fixture) snapshots(t *testing.T) []domain.Snapshot {
	t.Helper()
	snaps, err := f.repo.ListSince(context.Background(), testUser, time.Time{})
	require.NoError(t, err)
	return snaps
}

func ny(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(market_hours.ExchangeTimezone)
	require.NoError(t, err)
	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return parsed
}
