/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for route registration.
 */
package di

import (
	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/clients/alpaca"
	"github.com/aristath/papertrader/internal/clients/yahoo"
	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/modules/history"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/market_hours"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/prices"
	"github.com/aristath/papertrader/internal/modules/risk"
	"github.com/aristath/papertrader/internal/modules/snapshots"
	"github.com/aristath/papertrader/internal/reliability"
	"github.com/aristath/papertrader/internal/scheduler"
	"github.com/aristath/papertrader/internal/utils"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	LedgerDB     *database.DB
	HistoryDB    *database.DB
	ClientDataDB *database.DB

	// Repositories
	TransactionRepo *ledger.TransactionRepository
	PositionRepo    *ledger.PositionRepository
	SnapshotRepo    *snapshots.Repository
	ClientDataRepo  *clientdata.Repository

	// Clients
	AlpacaClient *alpaca.Client
	YahooClient  *yahoo.Client

	// Services
	UserLocks          *utils.KeyedMutex
	PriceCache         *prices.MemoryCache
	PriceService       *prices.Service
	MarketHoursService *market_hours.MarketHoursService
	Accountant         *ledger.Accountant
	SnapshotEngine     *snapshots.Engine
	ActivityTracker    *snapshots.ActivityTracker
	HistoryService     *history.Service
	RiskService        *risk.Service
	PortfolioService   *portfolio.Service

	// Reliability (BackupService is nil when no bucket is configured)
	BackupService *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// Databases returns every open database in a stable order
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.HistoryDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes all databases
func (c *Container) Close() {
	for _, db := range c.Databases() {
		db.Close()
	}
}

// JobInstances holds the registered scheduler jobs for manual triggering via API
type JobInstances struct {
	SnapshotBackfill  scheduler.Job
	FullBackfill      scheduler.Job // every ledger user; run once at startup, not scheduled
	ClientDataCleanup scheduler.Job
	PriceCachePurge   scheduler.Job
	WALCheckpoint     scheduler.Job
	IntegrityCheck    scheduler.Job
	Vacuum            scheduler.Job
	DiskSpace         scheduler.Job
	Backup            scheduler.Job // nil when backups are disabled
}
