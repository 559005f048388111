package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LatestPricer prices a new trade
type LatestPricer interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// TransactionRequest is a trade or cash movement to apply to a user's ledger.
// Quantity is used by buy/sell, Amount by deposit/withdraw.
type TransactionRequest struct {
	Action   domain.Action
	Symbol   string
	Quantity decimal.Decimal
	Amount   decimal.Decimal
}

// TransactionStats summarizes a user's ledger
type TransactionStats struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalBought       decimal.Decimal `json:"total_bought"`
	TotalSold         decimal.Decimal `json:"total_sold"`
	TotalDeposited    decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn    decimal.Decimal `json:"total_withdrawn"`
	RealizedPnl       decimal.Decimal `json:"realized_pnl"`
}

// Accountant applies transactions to the ledger using weighted-average cost basis.
// All mutations for one user are serialized; the ledger append and the position
// write commit together or not at all.
type Accountant struct {
	ledgerDB *sql.DB
	txRepo   *TransactionRepository
	posRepo  *PositionRepository
	pricer   LatestPricer
	locks    *utils.KeyedMutex
	now      func() time.Time
	log      zerolog.Logger
}

// NewAccountant creates a new accountant
func NewAccountant(
	ledgerDB *sql.DB,
	txRepo *TransactionRepository,
	posRepo *PositionRepository,
	pricer LatestPricer,
	locks *utils.KeyedMutex,
	log zerolog.Logger,
) *Accountant {
	if locks == nil {
		locks = utils.NewKeyedMutex()
	}
	return &Accountant{
		ledgerDB: ledgerDB,
		txRepo:   txRepo,
		posRepo:  posRepo,
		pricer:   pricer,
		locks:    locks,
		now:      time.Now,
		log:      log.With().Str("service", "accountant").Logger(),
	}
}

// ApplyTransaction validates and applies req for userID, returning the recorded ledger entry.
// Business-rule violations (ErrInsufficientFunds, ErrNoShortSelling, ErrOversell) leave no state behind.
func (a *Accountant) ApplyTransaction(ctx context.Context, userID string, req TransactionRequest) (*domain.Transaction, error) {
	req, err := normalizeRequest(userID, req)
	if err != nil {
		return nil, err
	}

	unlock := a.locks.Lock(userID)
	defer unlock()

	// Priced exactly once; the same price feeds the position and the ledger entry
	var price decimal.Decimal
	if req.Action.IsTrade() {
		price, err = a.fetchPrice(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
	}

	txn := &domain.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Action:      req.Action,
		RealizedPnl: decimal.Zero,
		ExecutedAt:  a.now().UTC(),
	}

	err = database.WithTransactionContext(ctx, a.ledgerDB, func(tx *sql.Tx) error {
		txRepo := a.txRepo.WithTx(tx)
		posRepo := a.posRepo.WithTx(tx)

		switch req.Action {
		case domain.ActionDeposit:
			txn.Price = req.Amount
		case domain.ActionWithdraw:
			if err := a.withdraw(ctx, txRepo, userID, req.Amount); err != nil {
				return err
			}
			txn.Price = req.Amount
		case domain.ActionBuy:
			if err := a.buy(ctx, txRepo, posRepo, userID, req, price); err != nil {
				return err
			}
			a.fillTrade(txn, req, price)
		case domain.ActionSell:
			realized, err := a.sell(ctx, posRepo, userID, req, price)
			if err != nil {
				return err
			}
			a.fillTrade(txn, req, price)
			txn.RealizedPnl = realized
		}

		return txRepo.Create(ctx, txn)
	})
	if err != nil {
		if domain.IsBusinessRule(err) {
			a.log.Info().Err(err).Str("user_id", userID).Str("action", string(req.Action)).Msg("Transaction rejected")
		} else {
			a.log.Error().Err(err).Str("user_id", userID).Str("action", string(req.Action)).Msg("Failed to apply transaction")
		}
		return nil, err
	}

	a.log.Info().
		Str("user_id", userID).
		Str("action", string(txn.Action)).
		Str("symbol", req.Symbol).
		Str("price", txn.Price.String()).
		Str("realized_pnl", txn.RealizedPnl.String()).
		Msg("Transaction applied")

	return txn, nil
}

func (a *Accountant) withdraw(ctx context.Context, txRepo *TransactionRepository, userID string, amount decimal.Decimal) error {
	cash, err := txRepo.CashBalance(ctx, userID, nil)
	if err != nil {
		return err
	}
	if amount.GreaterThan(cash) {
		return fmt.Errorf("%w: withdrawing %s with %s available", domain.ErrInsufficientFunds, amount, cash)
	}
	return nil
}

func (a *Accountant) buy(
	ctx context.Context,
	txRepo *TransactionRepository,
	posRepo *PositionRepository,
	userID string,
	req TransactionRequest,
	price decimal.Decimal,
) error {
	cash, err := txRepo.CashBalance(ctx, userID, nil)
	if err != nil {
		return err
	}

	totalCost := price.Mul(req.Quantity)
	if totalCost.GreaterThan(cash) {
		return fmt.Errorf("%w: order costs %s with %s available", domain.ErrInsufficientFunds, totalCost, cash)
	}

	existing, err := posRepo.GetBySymbol(ctx, userID, req.Symbol)
	if err != nil {
		return err
	}

	now := a.now().UTC()
	if existing == nil {
		return posRepo.Upsert(ctx, &domain.Position{
			ID:          uuid.New().String(),
			UserID:      userID,
			Symbol:      req.Symbol,
			Quantity:    req.Quantity,
			AvgCost:     price,
			LastUpdated: now,
		})
	}

	existing.AvgCost = WeightedAverageCost(existing.Quantity, existing.AvgCost, req.Quantity, price)
	existing.Quantity = existing.Quantity.Add(req.Quantity)
	existing.LastUpdated = now
	return posRepo.Upsert(ctx, existing)
}

func (a *Accountant) sell(
	ctx context.Context,
	posRepo *PositionRepository,
	userID string,
	req TransactionRequest,
	price decimal.Decimal,
) (decimal.Decimal, error) {
	existing, err := posRepo.GetBySymbol(ctx, userID, req.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if existing == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrNoShortSelling, req.Symbol)
	}

	// Computed against the cost basis before the position changes
	realized := price.Sub(existing.AvgCost).Mul(req.Quantity)

	if req.Quantity.GreaterThan(existing.Quantity) {
		return decimal.Zero, fmt.Errorf("%w: selling %s of %s held in %s",
			domain.ErrOversell, req.Quantity, existing.Quantity, req.Symbol)
	}

	remaining := existing.Quantity.Sub(req.Quantity)
	if remaining.IsZero() {
		if err := posRepo.Delete(ctx, userID, req.Symbol); err != nil {
			return decimal.Zero, err
		}
		return realized, nil
	}

	existing.Quantity = remaining
	existing.LastUpdated = a.now().UTC()
	if err := posRepo.Upsert(ctx, existing); err != nil {
		return decimal.Zero, err
	}

	return realized, nil
}

func (a *Accountant) fillTrade(txn *domain.Transaction, req TransactionRequest, price decimal.Decimal) {
	symbol := req.Symbol
	quantity := req.Quantity
	txn.Symbol = &symbol
	txn.Quantity = &quantity
	txn.Price = price
}

func (a *Accountant) fetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if a.pricer == nil {
		return decimal.Zero, fmt.Errorf("%w: no price provider configured", domain.ErrPriceUnavailable)
	}

	price, err := a.pricer.GetLatestPrice(ctx, symbol)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("Cannot price trade")
		return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s: non-positive price %v", domain.ErrPriceUnavailable, symbol, price)
	}

	return decimal.NewFromFloat(price), nil
}

// ListTransactions returns the user's ledger, newest first
func (a *Accountant) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return a.txRepo.ListByUser(ctx, userID, nil, SortDescending)
}

// ListPositions returns the user's open positions
func (a *Accountant) ListPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	return a.posRepo.ListByUser(ctx, userID)
}

// GetCash returns the user's current cash balance
func (a *Accountant) GetCash(ctx context.Context, userID string) (decimal.Decimal, error) {
	return a.txRepo.CashBalance(ctx, userID, nil)
}

// GetRealizedPnl returns the user's realized P&L across all sells
func (a *Accountant) GetRealizedPnl(ctx context.Context, userID string) (decimal.Decimal, error) {
	return a.txRepo.RealizedPnl(ctx, userID)
}

// GetTransactionStats summarizes the user's ledger
func (a *Accountant) GetTransactionStats(ctx context.Context, userID string) (*TransactionStats, error) {
	transactions, err := a.txRepo.ListByUser(ctx, userID, nil, SortAscending)
	if err != nil {
		return nil, err
	}

	stats := &TransactionStats{
		TotalTransactions: len(transactions),
		TotalBought:       decimal.Zero,
		TotalSold:         decimal.Zero,
		TotalDeposited:    decimal.Zero,
		TotalWithdrawn:    decimal.Zero,
		RealizedPnl:       decimal.Zero,
	}

	for _, t := range transactions {
		switch t.Action {
		case domain.ActionBuy:
			stats.TotalBought = stats.TotalBought.Add(t.CashDelta().Neg())
		case domain.ActionSell:
			stats.TotalSold = stats.TotalSold.Add(t.CashDelta())
			stats.RealizedPnl = stats.RealizedPnl.Add(t.RealizedPnl)
		case domain.ActionDeposit:
			stats.TotalDeposited = stats.TotalDeposited.Add(t.Price)
		case domain.ActionWithdraw:
			stats.TotalWithdrawn = stats.TotalWithdrawn.Add(t.Price)
		}
	}

	return stats, nil
}

// WeightedAverageCost blends an existing holding with a new purchase:
// (oldQty*oldAvg + qty*price) / (oldQty + qty)
func WeightedAverageCost(oldQty, oldAvg, qty, price decimal.Decimal) decimal.Decimal {
	total := oldQty.Add(qty)
	if total.IsZero() {
		return decimal.Zero
	}
	return oldQty.Mul(oldAvg).Add(qty.Mul(price)).Div(total)
}

func normalizeRequest(userID string, req TransactionRequest) (TransactionRequest, error) {
	if userID == "" {
		return req, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if !req.Action.Valid() {
		return req, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidArgument, req.Action)
	}

	if req.Action.IsTrade() {
		req.Symbol = utils.NormalizeSymbol(req.Symbol)
		if req.Symbol == "" {
			return req, fmt.Errorf("%w: symbol is required for %s", domain.ErrInvalidArgument, req.Action)
		}
		if !req.Quantity.IsPositive() {
			return req, fmt.Errorf("%w: quantity %s", domain.ErrInvalidAmount, req.Quantity)
		}
		return req, nil
	}

	if !req.Amount.IsPositive() {
		return req, fmt.Errorf("%w: amount %s", domain.ErrInvalidAmount, req.Amount)
	}
	req.Symbol = ""
	return req, nil
}
