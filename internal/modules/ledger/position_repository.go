package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
)

// PositionRepository handles the positions projection in ledger.db.
// Zero-quantity rows are deleted, never stored.
type PositionRepository struct {
	db  dbtx
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(ledgerDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  ledgerDB,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *PositionRepository) WithTx(tx *sql.Tx) *PositionRepository {
	return &PositionRepository{db: tx, log: r.log}
}

// GetBySymbol returns the user's position in symbol, or nil if none is held
func (r *PositionRepository) GetBySymbol(ctx context.Context, userID, symbol string) (*domain.Position, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, symbol, quantity, avg_cost, last_updated
		FROM positions WHERE user_id = ? AND symbol = ?
	`, userID, symbol)

	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	return &pos, nil
}

// ListByUser returns all positions held by the user, ordered by symbol
func (r *PositionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, quantity, avg_cost, last_updated
		FROM positions WHERE user_id = ? ORDER BY symbol
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []domain.Position{}
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Upsert inserts or updates a position keyed by (user_id, symbol)
func (r *PositionRepository) Upsert(ctx context.Context, pos *domain.Position) error {
	if !pos.Quantity.IsPositive() {
		return fmt.Errorf("refusing to store non-positive quantity %s for %s", pos.Quantity, pos.Symbol)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (id, user_id, symbol, quantity, avg_cost, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_cost = excluded.avg_cost,
			last_updated = excluded.last_updated
	`,
		pos.ID,
		pos.UserID,
		pos.Symbol,
		pos.Quantity.String(),
		pos.AvgCost.String(),
		pos.LastUpdated.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	r.log.Debug().
		Str("user_id", pos.UserID).
		Str("symbol", pos.Symbol).
		Str("quantity", pos.Quantity.String()).
		Str("avg_cost", pos.AvgCost.String()).
		Msg("Position upserted")

	return nil
}

// Delete removes the user's position in symbol
func (r *PositionRepository) Delete(ctx context.Context, userID, symbol string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM positions WHERE user_id = ? AND symbol = ?", userID, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	r.log.Debug().Str("user_id", userID).Str("symbol", symbol).Msg("Position closed")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var pos domain.Position
	var lastUpdated int64

	if err := row.Scan(
		&pos.ID,
		&pos.UserID,
		&pos.Symbol,
		&pos.Quantity,
		&pos.AvgCost,
		&lastUpdated,
	); err != nil {
		return pos, err
	}

	pos.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	return pos, nil
}
