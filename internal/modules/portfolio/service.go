// Package portfolio values a user's open positions against live prices.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const performerLimit = 5

// LedgerReader is the subset of ledger.Accountant the aggregator reads
type LedgerReader interface {
	ListPositions(ctx context.Context, userID string) ([]domain.Position, error)
	GetCash(ctx context.Context, userID string) (decimal.Decimal, error)
	GetTransactionStats(ctx context.Context, userID string) (*ledger.TransactionStats, error)
}

// PriceReader supplies live prices with a last-known fallback
type PriceReader interface {
	GetMultiplePrices(ctx context.Context, symbols []string) map[string]float64
	GetLastKnownPrice(symbol string) (float64, bool)
}

// PositionView is a position valued at the current price
type PositionView struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	PnlPercent    float64         `json:"pnl_percent"`
	Weight        float64         `json:"weight"` // share of positions value, 0-1
	IsEstimate    bool            `json:"is_estimate"`
	PriceSource   string          `json:"price_source"` // live, last_known or avg_cost
}

// Concentration summarizes how evenly the positions value is spread
type Concentration struct {
	HerfindahlIndex float64 `json:"herfindahl_index"`
	Top5Weight      float64 `json:"top_5_weight"` // percent
	NumPositions    int     `json:"num_positions"`
}

// Summary is the live view of a user's portfolio
type Summary struct {
	Cash            decimal.Decimal `json:"cash"`
	PositionsValue  decimal.Decimal `json:"positions_value"`
	CostBasis       decimal.Decimal `json:"cost_basis"`
	NAV             decimal.Decimal `json:"nav"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl   decimal.Decimal `json:"unrealized_pnl"`
	TotalPnl        decimal.Decimal `json:"total_pnl"`
	PnlPercent      float64         `json:"pnl_percent"` // total P&L over total deposited
	EstimatedCount  int             `json:"estimated_count"`
	Positions       []PositionView  `json:"positions"`
	BestPerformers  []PositionView  `json:"best_performers"`
	WorstPerformers []PositionView  `json:"worst_performers"`
	Concentration   Concentration   `json:"concentration"`
}

// Service aggregates ledger state and prices into a Summary
type Service struct {
	ledger LedgerReader
	prices PriceReader
	log    zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(ledger LedgerReader, prices PriceReader, log zerolog.Logger) *Service {
	return &Service{
		ledger: ledger,
		prices: prices,
		log:    log.With().Str("service", "portfolio").Logger(),
	}
}

// GetSummary values every open position and totals the portfolio.
// Positions without a live price use the last known price, then avgCost, and are flagged as estimates.
func (s *Service) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	positions, err := s.ledger.ListPositions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	cash, err := s.ledger.GetCash(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cash balance: %w", err)
	}

	stats, err := s.ledger.GetTransactionStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction stats: %w", err)
	}

	symbols := make([]string, len(positions))
	for i, pos := range positions {
		symbols[i] = pos.Symbol
	}
	live := map[string]float64{}
	if len(symbols) > 0 {
		live = s.prices.GetMultiplePrices(ctx, symbols)
	}

	summary := &Summary{
		Cash:            cash,
		RealizedPnl:     stats.RealizedPnl,
		Positions:       make([]PositionView, 0, len(positions)),
		BestPerformers:  []PositionView{},
		WorstPerformers: []PositionView{},
	}

	for _, pos := range positions {
		view := s.valuePosition(pos, live)
		if view.IsEstimate {
			summary.EstimatedCount++
		}
		summary.PositionsValue = summary.PositionsValue.Add(view.MarketValue)
		summary.CostBasis = summary.CostBasis.Add(view.CostBasis)
		summary.UnrealizedPnl = summary.UnrealizedPnl.Add(view.UnrealizedPnl)
		summary.Positions = append(summary.Positions, view)
	}

	if summary.EstimatedCount > 0 {
		s.log.Warn().
			Str("user_id", userID).
			Int("estimated", summary.EstimatedCount).
			Msg("Some positions valued without a live price")
	}

	summary.NAV = cash.Add(summary.PositionsValue)
	summary.TotalPnl = summary.RealizedPnl.Add(summary.UnrealizedPnl)
	if stats.TotalDeposited.IsPositive() {
		summary.PnlPercent = round(summary.TotalPnl.Div(stats.TotalDeposited).InexactFloat64()*100, 2)
	}

	summary.Concentration = applyWeights(summary.Positions, summary.PositionsValue)
	summary.BestPerformers, summary.WorstPerformers = performers(summary.Positions)

	return summary, nil
}

func (s *Service) valuePosition(pos domain.Position, live map[string]float64) PositionView {
	view := PositionView{
		Symbol:   pos.Symbol,
		Quantity: pos.Quantity,
		AvgCost:  pos.AvgCost,
	}

	if price, ok := live[pos.Symbol]; ok {
		view.CurrentPrice = decimal.NewFromFloat(price)
		view.PriceSource = "live"
	} else if price, ok := s.prices.GetLastKnownPrice(pos.Symbol); ok {
		view.CurrentPrice = decimal.NewFromFloat(price)
		view.PriceSource = "last_known"
		view.IsEstimate = true
	} else {
		view.CurrentPrice = pos.AvgCost
		view.PriceSource = "avg_cost"
		view.IsEstimate = true
	}

	view.MarketValue = view.CurrentPrice.Mul(pos.Quantity)
	view.CostBasis = pos.AvgCost.Mul(pos.Quantity)
	view.UnrealizedPnl = view.MarketValue.Sub(view.CostBasis)
	if view.CostBasis.IsPositive() {
		view.PnlPercent = round(view.UnrealizedPnl.Div(view.CostBasis).InexactFloat64()*100, 2)
	}
	return view
}

// applyWeights sets each position's weight and returns the concentration metrics
func applyWeights(views []PositionView, total decimal.Decimal) Concentration {
	c := Concentration{NumPositions: len(views)}
	if !total.IsPositive() {
		return c
	}

	weights := make([]float64, len(views))
	for i := range views {
		weight := views[i].MarketValue.Div(total).InexactFloat64()
		views[i].Weight = weight
		weights[i] = weight
		c.HerfindahlIndex += weight * weight
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	for i := 0; i < len(weights) && i < performerLimit; i++ {
		c.Top5Weight += weights[i]
	}

	c.HerfindahlIndex = round(c.HerfindahlIndex, 4)
	c.Top5Weight = round(c.Top5Weight*100, 2)
	return c
}

// performers returns up to five gainers (best first) and five losers (worst first)
func performers(views []PositionView) (best, worst []PositionView) {
	best = []PositionView{}
	worst = []PositionView{}
	for _, v := range views {
		if v.PnlPercent >= 0 {
			best = append(best, v)
		}
		if v.PnlPercent <= 0 {
			worst = append(worst, v)
		}
	}

	sort.SliceStable(best, func(i, j int) bool { return best[i].PnlPercent > best[j].PnlPercent })
	sort.SliceStable(worst, func(i, j int) bool { return worst[i].PnlPercent < worst[j].PnlPercent })

	if len(best) > performerLimit {
		best = best[:performerLimit]
	}
	if len(worst) > performerLimit {
		worst = worst[:performerLimit]
	}
	return best, worst
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
