// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the kind of ledger entry
type Action string

const (
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionDeposit, ActionWithdraw:
		return true
	}
	return false
}

// IsTrade reports whether the action moves a security position
func (a Action) IsTrade() bool {
	return a == ActionBuy || a == ActionSell
}

// Transaction is an immutable ledger entry.
// Symbol and Quantity are nil for deposits and withdrawals; Price then holds the cash amount.
type Transaction struct {
	ExecutedAt  time.Time        `json:"executed_at"`
	Symbol      *string          `json:"symbol"`
	Quantity    *decimal.Decimal `json:"quantity"`
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Action      Action           `json:"action"`
	Price       decimal.Decimal  `json:"price"`
	RealizedPnl decimal.Decimal  `json:"realized_pnl"`
}

// CashDelta returns the signed effect of the transaction on the cash balance
func (t Transaction) CashDelta() decimal.Decimal {
	qty := decimal.Zero
	if t.Quantity != nil {
		qty = *t.Quantity
	}

	switch t.Action {
	case ActionDeposit:
		return t.Price
	case ActionWithdraw:
		return t.Price.Neg()
	case ActionBuy:
		return t.Price.Mul(qty).Neg()
	case ActionSell:
		return t.Price.Mul(qty)
	}
	return decimal.Zero
}

// FoldCash derives the cash balance from a set of ledger entries:
// deposits - withdrawals - buy notional + sell notional.
func FoldCash(txns []Transaction) decimal.Decimal {
	cash := decimal.Zero
	for _, t := range txns {
		cash = cash.Add(t.CashDelta())
	}
	return cash
}

// Position is the materialized holding of one symbol for one user.
// A zero-quantity position is never persisted.
type Position struct {
	LastUpdated time.Time       `json:"last_updated"`
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
}

// Snapshot is the end-of-hour net asset value for one user
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	EOHValue  decimal.Decimal `json:"eoh_value"`
}

// TradingDay is one session of the exchange calendar.
// Open and Close are "HH:MM" in exchange-local time.
type TradingDay struct {
	Date  string `json:"date" msgpack:"date"`
	Open  string `json:"open" msgpack:"open"`
	Close string `json:"close" msgpack:"close"`
}

// Bar is one aggregated price bar; Timestamp is the bar start
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	Close     float64   `json:"c"`
}

// Granularity is the bar width requested from a price source
type Granularity string

const (
	GranularityMinute Granularity = "1Min"
	GranularityHour   Granularity = "1Hour"
	GranularityDay    Granularity = "1Day"
)
