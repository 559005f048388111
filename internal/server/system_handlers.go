package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/reliability"
)

// JobRunner triggers scheduler jobs by name
type JobRunner interface {
	RunNow(name string) error
	JobNames() []string
}

// BackupManager creates and lists offsite backups
type BackupManager interface {
	CreateAndUploadBackup(ctx context.Context) (*reliability.BackupInfo, error)
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemHandlers serves the operational endpoints under /api/system
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	databases []*database.DB
	jobs      JobRunner
	backups   BackupManager // nil when backups are disabled
	startedAt time.Time
}

// NewSystemHandlers creates system handlers. backups may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	jobs JobRunner,
	backups BackupManager,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		databases: databases,
		jobs:      jobs,
		backups:   backups,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse represents the process and host status
type SystemStatusResponse struct {
	Status         string  `json:"status"` // "healthy" or "degraded"
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	HeapAllocMB    float64 `json:"heap_alloc_mb"`
	DatabaseCount  int     `json:"database_count"`
	BackupsEnabled bool    `json:"backups_enabled"`
}

// DatabaseStatsResponse represents database file statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name          string  `json:"name"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	TotalMB     float64 `json:"total_mb,omitempty"`
	AvailableMB float64 `json:"available_mb,omitempty"`
	UsedPercent float64 `json:"used_percent,omitempty"`
}

// HandleSystemStatus returns process and host status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := "healthy"
	for _, db := range h.databases {
		if err := db.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database quick check failed")
			status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:         status,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		Goroutines:     runtime.NumGoroutine(),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		HeapAllocMB:    bytesToMB(int64(memStats.HeapAlloc)),
		DatabaseCount:  len(h.databases),
		BackupsEnabled: h.backups != nil,
	})
}

// HandleDatabaseStats returns per-database file statistics
// GET /api/system/database-stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}

		info := DBInfo{
			Name:          db.Name(),
			SizeMB:        bytesToMB(stats.SizeBytes),
			WALSizeMB:     bytesToMB(stats.WALSizeBytes),
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		}
		response.Databases = append(response.Databases, info)
		response.TotalSizeMB += info.SizeMB + info.WALSizeMB
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDiskUsage returns data directory size and free space on its volume
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
	}

	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
	} else {
		response.TotalMB = bytesToMB(int64(usage.Total))
		response.AvailableMB = bytesToMB(int64(usage.Free))
		response.UsedPercent = usage.UsedPercent
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleListJobs returns the registered scheduler jobs
// GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	names := h.jobs.JobNames()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_jobs": len(names),
		"jobs":       names,
	})
}

// HandleTriggerJob runs a scheduler job in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if !h.isRegistered(name) {
		http.Error(w, "unknown job: "+name, http.StatusNotFound)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	// The scheduler logs the outcome; a run already in progress is skipped
	go func() {
		if err := h.jobs.RunNow(name); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": name + " triggered",
	})
}

// HandleCreateBackup creates and uploads a backup synchronously
// POST /api/system/backup
func (h *SystemHandlers) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		http.Error(w, "backups are not configured", http.StatusServiceUnavailable)
		return
	}

	info, err := h.backups.CreateAndUploadBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, "backup failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, info)
}

// HandleListBackups lists stored backups, newest first
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		http.Error(w, "backups are not configured", http.StatusServiceUnavailable)
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "failed to list backups", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

func (h *SystemHandlers) isRegistered(name string) bool {
	for _, n := range h.jobs.JobNames() {
		if n == name {
			return true
		}
	}
	return false
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return bytesToMB(totalSize)
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the request fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func bytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
