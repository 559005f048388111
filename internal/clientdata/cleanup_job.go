package clientdata

import (
	"github.com/rs/zerolog"
)

// CleanupJob prunes client data rows that are past their stale retention.
// Expired rows inside the retention stay as provider-outage fallbacks.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a new client data cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run prunes stale rows from every table
func (j *CleanupJob) Run() error {
	results, err := j.repo.PruneStale()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prune stale client data")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Pruned stale cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Client data cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
