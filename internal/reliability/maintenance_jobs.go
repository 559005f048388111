package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// BackupJob uploads a backup and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		timeout:       10 * time.Minute,
		log:           log.With().Str("job", "s3_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "s3_backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	defer utils.OperationTimer("s3_backup", j.timeout/2, j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	// Rotation failures are not fatal
	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// VacuumJob reclaims space in databases with heavy delete churn
type VacuumJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewVacuumJob creates a new vacuum job
func NewVacuumJob(log zerolog.Logger, databases ...*database.DB) *VacuumJob {
	return &VacuumJob{
		databases: databases,
		log:       log.With().Str("job", "vacuum").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *VacuumJob) Name() string {
	return "vacuum"
}

// Run executes the vacuum job
func (j *VacuumJob) Run() error {
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		before, _ := db.GetStats()
		start := time.Now()

		if err := db.Vacuum(); err != nil {
			return err
		}

		event := j.log.Info().Str("database", db.Name()).Dur("duration_ms", time.Since(start))
		if after, err := db.GetStats(); err == nil && before != nil {
			event = event.
				Int64("freed_pages", before.FreelistCount-after.FreelistCount).
				Int64("size_bytes", after.SizeBytes)
		}
		event.Msg("Database vacuumed")
	}
	return nil
}

// Disk space thresholds in bytes
const (
	diskCriticalBytes = 500 * 1000 * 1000
	diskWarnBytes     = 5 * 1000 * 1000 * 1000
)

// DiskSpaceJob watches free space on the data volume
type DiskSpaceJob struct {
	dataDir string
	usage   func(path string) (*disk.UsageStat, error)
	log     zerolog.Logger
}

// NewDiskSpaceJob creates a new disk space job
func NewDiskSpaceJob(dataDir string, log zerolog.Logger) *DiskSpaceJob {
	return &DiskSpaceJob{
		dataDir: dataDir,
		usage:   disk.Usage,
		log:     log.With().Str("job", "disk_space").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *DiskSpaceJob) Name() string {
	return "disk_space"
}

// Run executes the disk space check. It fails when less than 500MB remain.
func (j *DiskSpaceJob) Run() error {
	usage, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9

	switch {
	case usage.Free < diskCriticalBytes:
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	case usage.Free < diskWarnBytes:
		j.log.Warn().
			Float64("available_gb", availableGB).
			Float64("used_percent", usage.UsedPercent).
			Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	}

	return nil
}
