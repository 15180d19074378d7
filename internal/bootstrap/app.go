// Package bootstrap wires configuration, stores and services and runs the
// backlink-checker server.
package bootstrap

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/fxfeed"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// Start loads configuration, wires the service and serves until a shutdown
// signal arrives.
func Start() error {
	configPath := flag.String("config", config.GetConfigPath(DefaultConfigPath), "Path to configuration file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return err
	}

	c, err := Build(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.FX.FeedEnabled {
		scheduler := fxfeed.NewScheduler(c.Refresher, cfg.FX.Schedule, log)
		if startErr := scheduler.Start(ctx, true); startErr != nil {
			return fmt.Errorf("start fx scheduler: %w", startErr)
		}
		defer scheduler.Stop()
	}

	srv := SetupHTTPServer(c)
	if runErr := srv.Run(ctx); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Server exited")
	return nil
}
