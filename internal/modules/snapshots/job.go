package snapshots

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aristath/papertrader/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	backfillWorkers = 4
	backfillTimeout = 4 * time.Minute
)

// UserSource lists every user with ledger activity
type UserSource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Backfiller runs a backfill for one user unless one is already running
type Backfiller interface {
	TryRunBackfill(ctx context.Context, userID string) (*BackfillResult, bool, error)
}

// BackfillJob periodically backfills snapshots for recently active users.
// A zero window backfills every user known to the ledger.
type BackfillJob struct {
	engine  Backfiller
	tracker *ActivityTracker
	users   UserSource
	log     zerolog.Logger
	window  time.Duration
}

// NewBackfillJob creates the recurring backfill job
func NewBackfillJob(engine Backfiller, tracker *ActivityTracker, users UserSource, window time.Duration, log zerolog.Logger) *BackfillJob {
	return &BackfillJob{
		engine:  engine,
		tracker: tracker,
		users:   users,
		window:  window,
		log:     log.With().Str("job", "snapshot_backfill").Logger(),
	}
}

// Name returns the job name for scheduling and logging
func (j *BackfillJob) Name() string {
	return "snapshot_backfill"
}

// Run backfills all selected users. Per-user failures are logged and do not stop other users.
func (j *BackfillJob) Run() error {
	defer utils.OperationTimer("snapshot_backfill", backfillTimeout/2, j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
	defer cancel()

	userIDs, err := j.selectUsers(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to list users for backfill")
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	var created, failed, busy int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillWorkers)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			result, ran, err := j.engine.TryRunBackfill(gctx, userID)
			if !ran && err == nil {
				atomic.AddInt64(&busy, 1)
				j.log.Debug().Str("user_id", userID).Msg("Backfill already running, skipped")
				return nil
			}
			if err != nil {
				atomic.AddInt64(&failed, 1)
				j.log.Warn().Err(err).Str("user_id", userID).Msg("Backfill failed")
				return nil
			}
			atomic.AddInt64(&created, int64(result.Created))
			return nil
		})
	}
	_ = g.Wait()

	j.log.Info().
		Int("users", len(userIDs)).
		Int64("created", created).
		Int64("failed", failed).
		Int64("busy", busy).
		Msg("Snapshot backfill job completed")

	return nil
}

func (j *BackfillJob) selectUsers(ctx context.Context) ([]string, error) {
	if j.window > 0 {
		return j.tracker.ActiveUsers(j.window), nil
	}
	return j.users.ListUserIDs(ctx)
}
