// Package snapshots maintains the hourly NAV time series for each user.
package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository handles hourly_snapshots in history.db.
// Timestamps are stored as unix seconds.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(historyDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  historyDB,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Latest returns the user's most recent snapshot, or nil if none exist
func (r *Repository) Latest(ctx context.Context, userID string) (*domain.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, eoh_value, timestamp
		FROM hourly_snapshots
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, userID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &snap, nil
}

// Upsert inserts the snapshot or replaces the value of the existing row for the same hour
func (r *Repository) Upsert(ctx context.Context, snap *domain.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hourly_snapshots (id, user_id, eoh_value, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, timestamp) DO UPDATE SET eoh_value = excluded.eoh_value
	`, snap.ID, snap.UserID, snap.EOHValue.String(), snap.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// ListSince returns the user's snapshots with timestamp >= since, oldest first.
// A zero since returns the full series.
func (r *Repository) ListSince(ctx context.Context, userID string, since time.Time) ([]domain.Snapshot, error) {
	var sinceUnix int64
	if !since.IsZero() {
		sinceUnix = since.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, eoh_value, timestamp
		FROM hourly_snapshots
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, userID, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snaps, nil
}

// Count returns the number of snapshots stored for the user
func (r *Repository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hourly_snapshots WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (domain.Snapshot, error) {
	var snap domain.Snapshot
	var value string
	var ts int64

	if err := row.Scan(&snap.ID, &snap.UserID, &value, &ts); err != nil {
		return snap, err
	}

	eoh, err := decimal.NewFromString(value)
	if err != nil {
		return snap, fmt.Errorf("invalid eoh_value %q: %w", value, err)
	}
	snap.EOHValue = eoh
	snap.Timestamp = time.Unix(ts, 0).UTC()

	return snap, nil
}
