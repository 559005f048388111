// Package di provides dependency injection for repositories and services.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/clients/alpaca"
	"github.com/aristath/papertrader/internal/clients/yahoo"
	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/modules/history"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/market_hours"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/prices"
	"github.com/aristath/papertrader/internal/modules/risk"
	"github.com/aristath/papertrader/internal/modules/snapshots"
	"github.com/aristath/papertrader/internal/reliability"
	"github.com/aristath/papertrader/internal/utils"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories on top of the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.TransactionRepo = ledger.NewTransactionRepository(container.LedgerDB.Conn(), log)
	container.PositionRepo = ledger.NewPositionRepository(container.LedgerDB.Conn(), log)
	container.SnapshotRepo = snapshots.NewRepository(container.HistoryDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Debug().Msg("Repositories initialized")
	return nil
}

// InitializeServices creates clients and services.
// Services depend on each other in this order: prices, market hours, ledger, snapshots, read models.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Clients
	container.AlpacaClient = alpaca.NewClient(alpaca.Config{
		APIKey:     cfg.Alpaca.APIKey,
		APISecret:  cfg.Alpaca.APISecret,
		DataURL:    cfg.Alpaca.DataURL,
		TradingURL: cfg.Alpaca.TradingURL,
		Feed:       cfg.Alpaca.Feed,
		RateLimit:  cfg.Alpaca.RateLimit,
	}, log)
	container.YahooClient = yahoo.NewClient(container.ClientDataRepo, log)

	// Prices: in-memory TTL cache in front of Alpaca, last-known closes persisted in client_data
	container.PriceCache = prices.NewMemoryCache()
	container.PriceService = prices.NewService(
		container.AlpacaClient,
		container.PriceCache,
		container.ClientDataRepo,
		cfg.Prices.CacheTTL,
		log,
	)

	marketHours, err := market_hours.NewMarketHoursService(container.AlpacaClient, container.ClientDataRepo, log)
	if err != nil {
		return fmt.Errorf("failed to create market hours service: %w", err)
	}
	container.MarketHoursService = marketHours

	// Ledger: writes are serialized per user
	container.UserLocks = utils.NewKeyedMutex()
	container.Accountant = ledger.NewAccountant(
		container.LedgerDB.Conn(),
		container.TransactionRepo,
		container.PositionRepo,
		container.PriceService,
		container.UserLocks,
		log,
	)

	// Snapshots
	container.ActivityTracker = snapshots.NewActivityTracker()
	container.SnapshotEngine = snapshots.NewEngine(
		container.SnapshotRepo,
		container.TransactionRepo,
		container.PositionRepo,
		container.PriceService,
		container.MarketHoursService,
		cfg.Snapshots.MaxHoursPerRun,
		log,
	)

	// Read models
	container.HistoryService = history.NewService(container.SnapshotRepo, marketHours.Location(), log)
	container.RiskService = risk.NewService(
		container.SnapshotRepo,
		container.PriceService,
		container.YahooClient,
		cfg.Snapshots.BenchmarkSymbol,
		log,
	)
	container.PortfolioService = portfolio.NewService(container.Accountant, container.PriceService, log)

	// Backups are optional
	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		// client_data is a rebuildable cache and stays out of the archive
		container.BackupService = reliability.NewBackupService(store, cfg.DataDir, log, container.LedgerDB, container.HistoryDB)
	} else {
		log.Info().Msg("Backup bucket not configured, S3 backups disabled")
	}

	log.Info().Msg("Services initialized")
	return nil
}
