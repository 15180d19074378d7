package bootstrap

import (
	"context"

	"github.com/jonesrussell/backlink-checker/internal/api"
	"github.com/jonesrussell/backlink-checker/internal/handlers"
	"github.com/jonesrussell/backlink-checker/internal/server"
)

// SetupHTTPServer mounts the API on a server configured from c.
func SetupHTTPServer(c *Components) *server.Server {
	cfg := c.Config
	log := c.Logger

	checks := map[string]server.HealthChecker{
		"database": server.PingChecker("Database", server.HealthStatusUnhealthy, c.DB.Ping),
	}
	if c.Redis != nil {
		checks["redis"] = server.PingChecker("Redis", server.HealthStatusDegraded, func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		})
	}

	routes := api.Routes{
		Lookup:       handlers.NewLookupHandler(c.Lookup, log),
		Ingest:       handlers.NewIngestHandler(c.Ingest, cfg.Ingest, log),
		Marketplaces: handlers.NewMarketplaceHandler(c.Marketplaces, log),
		Offers:       handlers.NewOfferHandler(c.Offers, log),
		FX:           handlers.NewFXHandler(c.Rates, log),
		Health: server.HealthOptions{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: cfg.Service.Version,
			Checks:         checks,
		},
		JWTSecret:     cfg.Auth.JWTSecret,
		LookupLimiter: server.NewRateLimiter(cfg.Lookup.RateLimitRPS, cfg.Lookup.RateLimitBurst),
	}
	if c.Metrics != nil {
		routes.Metrics = c.Metrics.Handler()
		routes.MetricsPath = cfg.Metrics.Path
	}

	return server.New(server.FromServiceConfig(cfg), log, c.Metrics, api.Setup(routes))
}
