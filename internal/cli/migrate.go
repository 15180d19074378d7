package cli

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/backlink-checker/internal/database"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or revert database migrations",
		ValidArgs: []string{string(database.Up), string(database.Down)},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.New(cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return database.Migrate(db.DB(), cfg.Database.MigrationsPath, database.Direction(args[0]), log)
		},
	}
}
