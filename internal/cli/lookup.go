package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/backlink-checker/internal/bootstrap"
	"github.com/jonesrussell/backlink-checker/internal/domain"
)

type lookupFlags struct {
	marketplaces []string
	minPrice     string
	maxPrice     string
	bestOnly     bool
}

func (f *lookupFlags) request(domains []string) (*domain.LookupRequest, error) {
	req := &domain.LookupRequest{
		Domains:       domains,
		Marketplaces:  f.marketplaces,
		BestPriceOnly: f.bestOnly,
	}

	var err error
	if req.MinPriceUSD, err = optionalDecimal("min-price", f.minPrice); err != nil {
		return nil, err
	}
	if req.MaxPriceUSD, err = optionalDecimal("max-price", f.maxPrice); err != nil {
		return nil, err
	}
	return req, nil
}

func optionalDecimal(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &d, nil
}

func newLookupCommand(opts *options) *cobra.Command {
	flags := &lookupFlags{}

	cmd := &cobra.Command{
		Use:   "lookup <domain>...",
		Short: "Show the known offers for one or more domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args)
			if err != nil {
				return err
			}

			return opts.withComponents(func(c *bootstrap.Components) error {
				result, lookupErr := c.Lookup.Lookup(cmd.Context(), req)
				if lookupErr != nil {
					return lookupErr
				}
				renderLookup(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flags.marketplaces, "marketplace", nil, "restrict to marketplace slugs")
	f.StringVar(&flags.minPrice, "min-price", "", "minimum USD price")
	f.StringVar(&flags.maxPrice, "max-price", "", "maximum USD price")
	f.BoolVar(&flags.bestOnly, "best-price-only", false, "keep only the cheapest offers per domain")
	return cmd
}

func renderLookup(w io.Writer, result *domain.LookupResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Domain", "Marketplace", "Price", "USD", "Dofollow", "Content", "Best"})

	for _, r := range result.Results {
		usd := "n/a"
		if r.PriceUSD.Valid {
			usd = r.PriceUSD.Decimal.StringFixed(2)
		}
		best := ""
		if r.IsBestPrice {
			best = "*"
		}
		t.AppendRow(table.Row{
			r.Domain,
			r.MarketplaceSlug,
			r.PriceAmount.StringFixed(2) + " " + r.PriceCurrency,
			usd,
			r.Dofollow,
			r.IncludesContent,
			best,
		})
	}

	t.AppendFooter(table.Row{
		"Searched", result.TotalDomainsSearched,
		"With offers", result.DomainsWithOffers,
		"Offers", result.TotalOffersFound, "",
	})
	t.Render()
}
