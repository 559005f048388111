package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/rs/zerolog"
)

// IntegrityCheckJob verifies the integrity of the SQLite databases
type IntegrityCheckJob struct {
	log       zerolog.Logger
	databases []*database.DB
	timeout   time.Duration
}

// NewIntegrityCheckJob creates a new IntegrityCheckJob
func NewIntegrityCheckJob(log zerolog.Logger, databases ...*database.DB) *IntegrityCheckJob {
	return &IntegrityCheckJob{
		log:       log.With().Str("job", "integrity_check").Logger(),
		databases: databases,
		timeout:   2 * time.Minute,
	}
}

// Name returns the job name
func (j *IntegrityCheckJob) Name() string {
	return "integrity_check"
}

// Run executes the integrity check job
func (j *IntegrityCheckJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.HealthCheck(ctx); err != nil {
			// Corruption cannot be auto-recovered; restore from backup
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", db.Name(), err)
		}

		j.log.Debug().Str("database", db.Name()).Msg("Database integrity OK")
	}

	j.log.Info().Msg("All databases passed integrity check")
	return nil
}
