package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func deposit(t *testing.T, acc *Accountant, userID, amount string) {
	t.Helper()
	_, err := acc.ApplyTransaction(context.Background(), userID, TransactionRequest{
		Action: domain.ActionDeposit,
		Amount: dec(amount),
	})
	require.NoError(t, err)
}

func trade(acc *Accountant, userID string, action domain.Action, symbol, qty string) (*domain.Transaction, error) {
	return acc.ApplyTransaction(context.Background(), userID, TransactionRequest{
		Action:   action,
		Symbol:   symbol,
		Quantity: dec(qty),
	})
}

func TestApplyTransaction_DepositAndWithdraw(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	ctx := context.Background()

	deposit(t, acc, "u1", "1000")

	txn, err := acc.ApplyTransaction(ctx, "u1", TransactionRequest{Action: domain.ActionWithdraw, Amount: dec("400")})
	require.NoError(t, err)
	assert.Nil(t, txn.Symbol)
	assert.Nil(t, txn.Quantity)
	assertDecimal(t, "400", txn.Price)

	cash, err := acc.GetCash(ctx, "u1")
	require.NoError(t, err)
	assertDecimal(t, "600", cash)

	_, err = acc.ApplyTransaction(ctx, "u1", TransactionRequest{Action: domain.ActionWithdraw, Amount: dec("600.01")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 2, countRows(t, db, "transactions"))

	pricer.AssertNotCalled(t, "GetLatestPrice", mock.Anything, mock.Anything)
}

func TestApplyTransaction_WeightedAverageCost(t *testing.T) {
	acc, pricer, _ := setupAccountant(t)
	ctx := context.Background()
	deposit(t, acc, "u1", "10000")

	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(100.0, nil).Once()
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(120.0, nil).Once()

	_, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "10")
	require.NoError(t, err)
	txn, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "10")
	require.NoError(t, err)
	assert.True(t, txn.RealizedPnl.IsZero())

	positions, err := acc.ListPositions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDecimal(t, "20", positions[0].Quantity)
	assertDecimal(t, "110", positions[0].AvgCost)

	cash, err := acc.GetCash(ctx, "u1")
	require.NoError(t, err)
	assertDecimal(t, "7800", cash)

	pricer.AssertExpectations(t)
}

func TestApplyTransaction_SellPreservesAvgCost(t *testing.T) {
	acc, pricer, _ := setupAccountant(t)
	ctx := context.Background()
	deposit(t, acc, "u1", "10000")

	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(100.0, nil).Once()
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(120.0, nil).Once()
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(150.0, nil).Once()

	_, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "10")
	require.NoError(t, err)
	_, err = trade(acc, "u1", domain.ActionBuy, "AAPL", "10")
	require.NoError(t, err)

	txn, err := trade(acc, "u1", domain.ActionSell, "AAPL", "5")
	require.NoError(t, err)
	assertDecimal(t, "200", txn.RealizedPnl)
	assertDecimal(t, "150", txn.Price)

	positions, err := acc.ListPositions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDecimal(t, "15", positions[0].Quantity)
	assertDecimal(t, "110", positions[0].AvgCost)

	realized, err := acc.GetRealizedPnl(ctx, "u1")
	require.NoError(t, err)
	assertDecimal(t, "200", realized)
}

func TestApplyTransaction_FullSellDeletesPosition(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	ctx := context.Background()
	deposit(t, acc, "u1", "1000")

	pricer.On("GetLatestPrice", mock.Anything, "MSFT").Return(50.0, nil).Once()
	pricer.On("GetLatestPrice", mock.Anything, "MSFT").Return(40.0, nil).Once()

	_, err := trade(acc, "u1", domain.ActionBuy, "MSFT", "4")
	require.NoError(t, err)
	txn, err := trade(acc, "u1", domain.ActionSell, "msft", "4")
	require.NoError(t, err)
	assertDecimal(t, "-40", txn.RealizedPnl)

	positions, err := acc.ListPositions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, 0, countRows(t, db, "positions"))
}

func TestApplyTransaction_OversellRejected(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	ctx := context.Background()
	deposit(t, acc, "u1", "1000")

	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(100.0, nil)

	_, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "3")
	require.NoError(t, err)

	_, err = trade(acc, "u1", domain.ActionSell, "AAPL", "3.5")
	assert.ErrorIs(t, err, domain.ErrOversell)

	positions, err := acc.ListPositions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDecimal(t, "3", positions[0].Quantity)
	assertDecimal(t, "100", positions[0].AvgCost)
	assert.Equal(t, 2, countRows(t, db, "transactions"))
}

func TestApplyTransaction_NoShortSelling(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	deposit(t, acc, "u1", "1000")
	pricer.On("GetLatestPrice", mock.Anything, "TSLA").Return(200.0, nil)

	_, err := trade(acc, "u1", domain.ActionSell, "TSLA", "1")
	assert.ErrorIs(t, err, domain.ErrNoShortSelling)
	assert.Equal(t, 1, countRows(t, db, "transactions"))
}

func TestApplyTransaction_CashSufficiency(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	deposit(t, acc, "u1", "1000")
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(100.0, nil)

	_, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "15")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, 1, countRows(t, db, "transactions"))
	assert.Equal(t, 0, countRows(t, db, "positions"))
}

func TestApplyTransaction_Validation(t *testing.T) {
	acc, pricer, db := setupAccountant(t)

	tests := []struct {
		name string
		req  TransactionRequest
		want error
	}{
		{"zero deposit", TransactionRequest{Action: domain.ActionDeposit, Amount: dec("0")}, domain.ErrInvalidAmount},
		{"negative withdraw", TransactionRequest{Action: domain.ActionWithdraw, Amount: dec("-5")}, domain.ErrInvalidAmount},
		{"zero quantity buy", TransactionRequest{Action: domain.ActionBuy, Symbol: "AAPL", Quantity: dec("0")}, domain.ErrInvalidAmount},
		{"missing symbol", TransactionRequest{Action: domain.ActionSell, Quantity: dec("1")}, domain.ErrInvalidArgument},
		{"unknown action", TransactionRequest{Action: "short", Quantity: dec("1")}, domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := acc.ApplyTransaction(context.Background(), "u1", tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsValidation(err))
		})
	}

	_, err := acc.ApplyTransaction(context.Background(), "", TransactionRequest{Action: domain.ActionDeposit, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Equal(t, 0, countRows(t, db, "transactions"))
	pricer.AssertNotCalled(t, "GetLatestPrice", mock.Anything, mock.Anything)
}

func TestApplyTransaction_PriceUnavailableIsFatalForTrades(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	deposit(t, acc, "u1", "1000")

	pricer.On("GetLatestPrice", mock.Anything, "NOPE").Return(0.0, errors.New("upstream down"))
	pricer.On("GetLatestPrice", mock.Anything, "ZERO").Return(0.0, nil)

	_, err := trade(acc, "u1", domain.ActionBuy, "NOPE", "1")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = trade(acc, "u1", domain.ActionBuy, "ZERO", "1")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	assert.Equal(t, 1, countRows(t, db, "transactions"))
}

func TestApplyTransaction_SerializesPerUser(t *testing.T) {
	acc, pricer, db := setupAccountant(t)
	deposit(t, acc, "u1", "1000")
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(100.0, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, domain.ErrInsufficientFunds) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	positions, err := acc.ListPositions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDecimal(t, "10", positions[0].Quantity)
	assert.Equal(t, 11, countRows(t, db, "transactions"))
}

func TestGetTransactionStats(t *testing.T) {
	acc, pricer, _ := setupAccountant(t)
	ctx := context.Background()

	deposit(t, acc, "u1", "1000")
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(100.0, nil).Once()
	pricer.On("GetLatestPrice", mock.Anything, "AAPL").Return(120.0, nil).Once()

	_, err := trade(acc, "u1", domain.ActionBuy, "AAPL", "5")
	require.NoError(t, err)
	_, err = trade(acc, "u1", domain.ActionSell, "AAPL", "2")
	require.NoError(t, err)
	_, err = acc.ApplyTransaction(ctx, "u1", TransactionRequest{Action: domain.ActionWithdraw, Amount: dec("100")})
	require.NoError(t, err)

	stats, err := acc.GetTransactionStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTransactions)
	assertDecimal(t, "500", stats.TotalBought)
	assertDecimal(t, "240", stats.TotalSold)
	assertDecimal(t, "1000", stats.TotalDeposited)
	assertDecimal(t, "100", stats.TotalWithdrawn)
	assertDecimal(t, "40", stats.RealizedPnl)

	txns, err := acc.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 4)
	assert.Equal(t, domain.ActionWithdraw, txns[0].Action)
}

func TestWeightedAverageCost(t *testing.T) {
	assertDecimal(t, "110", WeightedAverageCost(dec("10"), dec("100"), dec("10"), dec("120")))
	assertDecimal(t, "50", WeightedAverageCost(dec("0"), dec("0"), dec("2"), dec("50")))
	assertDecimal(t, "0", WeightedAverageCost(dec("0"), dec("0"), dec("0"), dec("50")))
}
