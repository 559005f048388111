package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/aristath/papertrader/internal/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockPricer is a testify mock of LatestPricer
type mockPricer struct {
	mock.Mock
}

func (m *mockPricer) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func setupLedgerDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// :memory: is per connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema(database.NameLedger)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func setupAccountant(t *testing.T) (*Accountant, *mockPricer, *sql.DB) {
	t.Helper()
	db := setupLedgerDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	pricer := &mockPricer{}
	acc := NewAccountant(
		db,
		NewTransactionRepository(db, log),
		NewPositionRepository(db, log),
		pricer,
		nil,
		log,
	)
	return acc, pricer, db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
