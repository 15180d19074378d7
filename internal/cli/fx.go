package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/backlink-checker/internal/bootstrap"
)

func newFXCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fx",
		Short: "Manage exchange rates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Fetch today's rates from the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(func(c *bootstrap.Components) error {
				result, err := c.Refresher.Sync(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "effective %s: saved %d [%s]\n",
					result.EffectiveDate.Format(time.DateOnly), len(result.Saved), strings.Join(result.Saved, ", "))
				if len(result.Missing) > 0 {
					_, _ = fmt.Fprintf(out, "missing from feed: %s\n", strings.Join(result.Missing, ", "))
				}
				return nil
			})
		},
	})
	return cmd
}
