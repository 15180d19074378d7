package bootstrap

import (
	"fmt"

	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/database"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// SetupDatabase connects to Postgres and, when configured, applies pending
// migrations.
func SetupDatabase(cfg *config.Config, log logger.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if migrateErr := database.Migrate(db.DB(), cfg.Database.MigrationsPath, database.Up, log); migrateErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("auto migrate: %w", migrateErr)
		}
	}
	return db, nil
}
