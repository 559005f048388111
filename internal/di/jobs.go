// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/modules/prices"
	"github.com/aristath/papertrader/internal/modules/snapshots"
	"github.com/aristath/papertrader/internal/reliability"
	"github.com/aristath/papertrader/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules (cron with seconds field)
const (
	clientDataCleanupSchedule = "@daily"
	priceCachePurgeSchedule   = "@every 5m"
	walCheckpointSchedule     = "@hourly"
	integrityCheckSchedule    = "0 30 4 * * SUN"
	vacuumSchedule            = "0 0 5 * * SUN"
	diskSpaceSchedule         = "0 */15 * * * *"
)

// RegisterJobs creates the scheduler and registers all jobs with it.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched
	instances := &JobInstances{}

	// ==========================================
	// Hourly NAV snapshots for recently active users
	// ==========================================
	instances.SnapshotBackfill = snapshots.NewBackfillJob(
		container.SnapshotEngine,
		container.ActivityTracker,
		container.TransactionRepo,
		cfg.Snapshots.ActiveWindow,
		log,
	)
	if err := sched.AddJob(cfg.Snapshots.Schedule, instances.SnapshotBackfill); err != nil {
		return nil, err
	}
	instances.FullBackfill = snapshots.NewBackfillJob(
		container.SnapshotEngine,
		container.ActivityTracker,
		container.TransactionRepo,
		0,
		log,
	)

	// ==========================================
	// Expired client_data rows
	// ==========================================
	instances.ClientDataCleanup = clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := sched.AddJob(clientDataCleanupSchedule, instances.ClientDataCleanup); err != nil {
		return nil, err
	}

	// ==========================================
	// Expired in-process price cache entries
	// ==========================================
	instances.PriceCachePurge = prices.NewCachePurgeJob(container.PriceCache, log)
	if err := sched.AddJob(priceCachePurgeSchedule, instances.PriceCachePurge); err != nil {
		return nil, err
	}

	// ==========================================
	// Database maintenance
	// ==========================================
	dbs := container.Databases()

	instances.WALCheckpoint = scheduler.NewWALCheckpointJob(log, dbs...)
	if err := sched.AddJob(walCheckpointSchedule, instances.WALCheckpoint); err != nil {
		return nil, err
	}

	instances.IntegrityCheck = scheduler.NewIntegrityCheckJob(log, dbs...)
	if err := sched.AddJob(integrityCheckSchedule, instances.IntegrityCheck); err != nil {
		return nil, err
	}

	instances.Vacuum = reliability.NewVacuumJob(log, dbs...)
	if err := sched.AddJob(vacuumSchedule, instances.Vacuum); err != nil {
		return nil, err
	}

	instances.DiskSpace = reliability.NewDiskSpaceJob(cfg.DataDir, log)
	if err := sched.AddJob(diskSpaceSchedule, instances.DiskSpace); err != nil {
		return nil, err
	}

	// ==========================================
	// Offsite backups (optional)
	// ==========================================
	if container.BackupService != nil {
		instances.Backup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, err
		}
	}

	log.Info().Strs("jobs", sched.JobNames()).Msg("Jobs registered")

	return instances, nil
}
