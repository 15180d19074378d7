// Package cli implements backlinkctl, the operator command line for the
// backlink-checker service.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/backlink-checker/internal/bootstrap"
	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	debug      bool
}

// NewRootCommand builds the backlinkctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "backlinkctl",
		Short:         "Operate the backlink-checker service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config",
		config.GetConfigPath(bootstrap.DefaultConfigPath), "path to configuration file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newMigrateCommand(opts),
		newImportCommand(opts),
		newLookupCommand(opts),
		newFXCommand(opts),
	)
	return root
}

// Execute runs the command tree against ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *options) load() (*config.Config, logger.Logger, error) {
	cfg, err := bootstrap.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.debug {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}

	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// withComponents loads configuration, wires the service graph and runs fn.
func (o *options) withComponents(fn func(c *bootstrap.Components) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}

	c, err := bootstrap.Build(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer c.Close()

	return fn(c)
}
