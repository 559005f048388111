// Package ledger provides the append-only transaction ledger, the position
// projection derived from it, and the accountant that keeps both consistent.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SortOrder selects the executed_at ordering of ledger queries
type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// TransactionRepository handles ledger reads and appends.
// Rows are never updated or deleted.
type TransactionRepository struct {
	db  dbtx
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository over ledger.db
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  ledgerDB,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *TransactionRepository) WithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx, log: r.log}
}

// Create appends a transaction to the ledger
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	var quantity interface{}
	if t.Quantity != nil {
		quantity = t.Quantity.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, symbol, quantity, price, realized_pnl, action, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.UserID,
		nullString(t.Symbol),
		quantity,
		t.Price.String(),
		t.RealizedPnl.String(),
		string(t.Action),
		t.ExecutedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	r.log.Debug().
		Str("id", t.ID).
		Str("user_id", t.UserID).
		Str("action", string(t.Action)).
		Msg("Transaction recorded")

	return nil
}

// ListByUser returns the user's transactions ordered by executed_at.
// When asOf is non-nil only entries with executed_at <= asOf are returned.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, asOf *time.Time, order SortOrder) ([]domain.Transaction, error) {
	if order != SortDescending {
		order = SortAscending
	}

	query := `SELECT id, user_id, symbol, quantity, price, realized_pnl, action, executed_at
		FROM transactions WHERE user_id = ?`
	args := []interface{}{userID}

	if asOf != nil {
		query += " AND executed_at <= ?"
		args = append(args, asOf.UnixMilli())
	}

	// Secondary key keeps same-millisecond entries stable
	query += fmt.Sprintf(" ORDER BY executed_at %s, rowid %s", order, order)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// CashBalance folds the ledger into a cash balance, optionally as of a point in time
func (r *TransactionRepository) CashBalance(ctx context.Context, userID string, asOf *time.Time) (decimal.Decimal, error) {
	transactions, err := r.ListByUser(ctx, userID, asOf, SortAscending)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.FoldCash(transactions), nil
}

// RealizedPnl sums realized P&L over all sells
func (r *TransactionRepository) RealizedPnl(ctx context.Context, userID string) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT realized_pnl FROM transactions WHERE user_id = ? AND action = ?",
		userID, string(domain.ActionSell))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query realized pnl: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var pnl decimal.Decimal
		if err := rows.Scan(&pnl); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan realized pnl: %w", err)
		}
		total = total.Add(pnl)
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating realized pnl: %w", err)
	}

	return total, nil
}

// ListUserIDs returns every user with at least one ledger entry
func (r *TransactionRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM transactions ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var t domain.Transaction
	var symbol sql.NullString
	var quantity decimal.NullDecimal
	var action string
	var executedAt int64

	if err := rows.Scan(
		&t.ID,
		&t.UserID,
		&symbol,
		&quantity,
		&t.Price,
		&t.RealizedPnl,
		&action,
		&executedAt,
	); err != nil {
		return t, err
	}

	if symbol.Valid {
		s := symbol.String
		t.Symbol = &s
	}
	if quantity.Valid {
		q := quantity.Decimal
		t.Quantity = &q
	}
	t.Action = domain.Action(action)
	t.ExecutedAt = time.UnixMilli(executedAt).UTC()

	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
