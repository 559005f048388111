// Package di provides dependency injection for database initialization.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases initializes all 3 databases and applies their schemas.
// On any failure the databases opened so far are closed.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// ledger.db - Append-only transactions and derived positions
		{database.NameLedger, database.ProfileLedger, &container.LedgerDB},
		// history.db - Hourly NAV snapshots, rebuildable from the ledger
		{database.NameHistory, database.ProfileStandard, &container.HistoryDB},
		// client_data.db - External API response cache (Alpaca calendar, last-known prices, Yahoo)
		{database.NameClientData, database.ProfileCache, &container.ClientDataDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db
	}

	// Apply schemas to all databases (single source of truth)
	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
