package bootstrap

import (
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/database"
	"github.com/jonesrussell/backlink-checker/internal/events"
	"github.com/jonesrussell/backlink-checker/internal/fxfeed"
	"github.com/jonesrussell/backlink-checker/internal/ingest"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/lookup"
	"github.com/jonesrussell/backlink-checker/internal/metrics"
	"github.com/jonesrussell/backlink-checker/internal/repository"
)

// Components is the wired object graph shared by the server and the CLI.
type Components struct {
	Config    *config.Config
	Logger    logger.Logger
	DB        *database.DB
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Publisher *events.Publisher

	Marketplaces *repository.MarketplaceRepository
	Domains      *repository.DomainRepository
	Offers       *repository.OfferRepository
	Rates        *repository.FxRateRepository

	Ingest    *ingest.Service
	Lookup    *lookup.Service
	Refresher *fxfeed.Refresher
}

// Build connects the stores and constructs every service. Metrics are nil
// when disabled, the publisher when Redis is off; both are safe to call.
func Build(cfg *config.Config, log logger.Logger) (*Components, error) {
	db, err := SetupDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	c := &Components{Config: cfg, Logger: log, DB: db}
	c.Publisher, c.Redis = SetupEventPublisher(cfg, log)
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New()
	}

	sqlDB := db.DB()
	c.Marketplaces = repository.NewMarketplaceRepository(sqlDB, log)
	c.Domains = repository.NewDomainRepository(sqlDB, log)
	c.Offers = repository.NewOfferRepository(sqlDB, log)
	c.Rates = repository.NewFxRateRepository(sqlDB, log)

	c.Ingest = ingest.NewService(c.Offers, c.Marketplaces, c.Rates, c.Publisher, c.Metrics, log, ingest.Config{
		BatchSize: cfg.Ingest.BatchSize,
		Timeout:   cfg.Ingest.Timeout,
		MaxErrors: cfg.Ingest.MaxErrors,
	})
	c.Lookup = lookup.NewService(c.Offers, c.Domains, c.Rates, c.Metrics, log, lookup.Config{
		MaxDomains:    cfg.Lookup.MaxDomains,
		RecordDomains: cfg.Lookup.ShouldRecordDomains(),
	})
	c.Refresher = fxfeed.NewRefresher(c.Rates, c.Offers, c.Publisher, c.Metrics, log, fxfeed.Config{
		URL:        cfg.FX.FeedURL,
		Currencies: cfg.FX.Currencies,
		Timeout:    cfg.FX.Timeout,
		Retries:    cfg.FX.Retries,
		RetryDelay: cfg.FX.RetryDelay,
	})

	return c, nil
}

// Close releases the database and Redis connections.
func (c *Components) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Error("Failed to close redis", logger.Error(err))
		}
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Error("Failed to close database", logger.Error(err))
	}
	_ = c.Logger.Sync()
}
