package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/market_hours"
	"github.com/aristath/papertrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// PublicationDelay is how long the price source withholds historical minute bars
	PublicationDelay = 15 * time.Minute
	// SafetyMargin covers the bar window end and clock skew
	SafetyMargin = 2 * time.Minute

	// DefaultMaxHoursPerRun bounds the snapshots written by one run
	DefaultMaxHoursPerRun = 31 * 24

	priceConcurrency = 8
)

// SnapshotStore persists snapshots; the latest row is the backfill cursor
type SnapshotStore interface {
	Latest(ctx context.Context, userID string) (*domain.Snapshot, error)
	Upsert(ctx context.Context, snap *domain.Snapshot) error
}

// CashReader folds the ledger up to an instant
type CashReader interface {
	CashBalance(ctx context.Context, userID string, asOf *time.Time) (decimal.Decimal, error)
}

// PositionLister returns the user's current positions
type PositionLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Position, error)
}

// HistoricalPricer resolves the 1-minute close at an hour, nil when unavailable
type HistoricalPricer interface {
	GetHistoricalPrice(ctx context.Context, symbol string, t time.Time) (*float64, error)
}

// GateProvider builds a calendar gate covering a time range
type GateProvider interface {
	Gate(ctx context.Context, start, end time.Time) (*market_hours.Gate, error)
}

// BackfillResult summarizes one RunBackfill call
type BackfillResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	// Interrupted is set when the context expired before the cursor caught up;
	// the created hours are persisted and the next run resumes after them.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Engine fills the hourly NAV series for a user from the last stored snapshot up to now
type Engine struct {
	store          SnapshotStore
	cash           CashReader
	positions      PositionLister
	prices         HistoricalPricer
	gates          GateProvider
	locks          *utils.KeyedMutex
	now            func() time.Time
	log            zerolog.Logger
	maxHoursPerRun int
}

// NewEngine creates a snapshot engine. A maxHoursPerRun <= 0 uses DefaultMaxHoursPerRun.
func NewEngine(
	store SnapshotStore,
	cash CashReader,
	positions PositionLister,
	prices HistoricalPricer,
	gates GateProvider,
	maxHoursPerRun int,
	log zerolog.Logger,
) *Engine {
	if maxHoursPerRun <= 0 {
		maxHoursPerRun = DefaultMaxHoursPerRun
	}
	return &Engine{
		store:          store,
		cash:           cash,
		positions:      positions,
		prices:         prices,
		gates:          gates,
		locks:          utils.NewKeyedMutex(),
		now:            time.Now,
		maxHoursPerRun: maxHoursPerRun,
		log:            log.With().Str("service", "snapshot_engine").Logger(),
	}
}

// RunBackfill creates the missing hourly snapshots for userID.
//
// With no stored snapshot only the current hour is recorded (when the market is open).
// Otherwise the cursor advances hour by hour from the latest stored snapshot,
// skipping hours outside trading sessions, until it reaches the publication window.
// A failed write aborts the run; the next run resumes from storage.
// An expired ctx between hours ends the run early without an error.
func (e *Engine) RunBackfill(ctx context.Context, userID string) (*BackfillResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidArgument)
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	return e.backfill(ctx, userID)
}

// TryRunBackfill is RunBackfill without waiting: ran is false when a backfill
// for userID is already in progress.
func (e *Engine) TryRunBackfill(ctx context.Context, userID string) (result *BackfillResult, ran bool, err error) {
	if userID == "" {
		return nil, false, fmt.Errorf("user id is required: %w", domain.ErrInvalidArgument)
	}

	unlock, ok := e.locks.TryLock(userID)
	if !ok {
		return nil, false, nil
	}
	defer unlock()

	result, err = e.backfill(ctx, userID)
	return result, true, err
}

func (e *Engine) backfill(ctx context.Context, userID string) (*BackfillResult, error) {
	now := e.now()
	result := &BackfillResult{}

	latest, err := e.store.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}

	if latest == nil {
		return e.snapshotCurrentHour(ctx, userID, now)
	}

	cursor := latest.Timestamp.Truncate(time.Hour)
	if !cursor.Add(PublicationDelay).Before(now) {
		return result, nil
	}

	gate, err := e.gates.Gate(ctx, cursor, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load trading calendar: %w", err)
	}

	positions, err := e.positions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			e.interrupted(userID, cursor, result)
			break
		}

		cursor = cursor.Add(time.Hour)
		if !cursor.Add(PublicationDelay + SafetyMargin).Before(now) {
			break
		}

		if !gate.IsEligible(cursor) {
			result.Skipped++
			continue
		}

		if result.Created >= e.maxHoursPerRun {
			e.log.Info().
				Str("user_id", userID).
				Int("limit", e.maxHoursPerRun).
				Msg("Backfill limit reached, resuming next run")
			break
		}

		if err := e.snapshotAt(ctx, userID, cursor, positions); err != nil {
			if isContextDone(ctx, err) {
				e.interrupted(userID, cursor, result)
				break
			}
			e.log.Error().
				Err(err).
				Str("user_id", userID).
				Time("hour", cursor).
				Int("created", result.Created).
				Msg("Backfill aborted")
			return result, err
		}
		result.Created++
	}

	if result.Created > 0 {
		e.log.Info().
			Str("user_id", userID).
			Int("created", result.Created).
			Int("skipped", result.Skipped).
			Msg("Snapshot backfill completed")
	}

	return result, nil
}

func (e *Engine) interrupted(userID string, hour time.Time, result *BackfillResult) {
	result.Interrupted = true
	e.log.Info().
		Str("user_id", userID).
		Time("hour", hour).
		Int("created", result.Created).
		Msg("Backfill interrupted, resuming next run")
}

func isContextDone(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))
}

func (e *Engine) snapshotCurrentHour(ctx context.Context, userID string, now time.Time) (*BackfillResult, error) {
	hour := now.Truncate(time.Hour)

	gate, err := e.gates.Gate(ctx, hour, hour)
	if err != nil {
		return nil, fmt.Errorf("failed to load trading calendar: %w", err)
	}
	if !gate.IsEligible(hour) {
		return &BackfillResult{Skipped: 1}, nil
	}

	positions, err := e.positions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := e.snapshotAt(ctx, userID, hour, positions); err != nil {
		return nil, err
	}

	e.log.Info().Str("user_id", userID).Time("hour", hour).Msg("Created first snapshot")
	return &BackfillResult{Created: 1}, nil
}

func (e *Engine) snapshotAt(ctx context.Context, userID string, hour time.Time, positions []domain.Position) error {
	nav, err := e.NAVAt(ctx, userID, hour, positions)
	if err != nil {
		return err
	}

	return e.store.Upsert(ctx, &domain.Snapshot{
		UserID:    userID,
		EOHValue:  nav,
		Timestamp: hour,
	})
}

// NAVAt values the portfolio at hour: cash from transactions executed up to hour plus
// each position at its historical close, or at its average cost when no close is available.
func (e *Engine) NAVAt(ctx context.Context, userID string, hour time.Time, positions []domain.Position) (decimal.Decimal, error) {
	cash, err := e.cash.CashBalance(ctx, userID, &hour)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute cash at %s: %w", hour.Format(time.RFC3339), err)
	}

	values := make([]decimal.Decimal, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(priceConcurrency)
	for i, pos := range positions {
		i, pos := i, pos
		g.Go(func() error {
			price := pos.AvgCost

			p, err := e.prices.GetHistoricalPrice(gctx, pos.Symbol, hour)
			switch {
			case err != nil:
				e.log.Warn().
					Err(err).
					Str("symbol", pos.Symbol).
					Time("hour", hour).
					Msg("Historical price failed, using average cost")
			case p != nil && *p > 0:
				price = decimal.NewFromFloat(*p)
			}

			values[i] = pos.Quantity.Mul(price)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	nav := cash
	for _, v := range values {
		nav = nav.Add(v)
	}
	return nav, nil
}
