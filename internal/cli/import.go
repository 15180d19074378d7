package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/backlink-checker/internal/bootstrap"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/importer"
)

type importFlags struct {
	marketplaceName string
	marketplaceSlug string
	region          string
	mapping         domain.ColumnMapping
	currency        string
	content         bool
	dofollow        bool
}

func (f *importFlags) request() *domain.IngestRequest {
	req := &domain.IngestRequest{
		MarketplaceName: f.marketplaceName,
		MarketplaceSlug: f.marketplaceSlug,
		ColumnMapping:   f.mapping,
		CurrencyDefault: f.currency,
		ContentDefault:  f.content,
		DofollowDefault: &f.dofollow,
	}
	if f.region != "" {
		req.Region = &f.region
	}
	return req
}

func newImportCommand(opts *options) *cobra.Command {
	flags := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Ingest a CSV or Excel price list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := readTable(args[0])
			if err != nil {
				return err
			}

			return opts.withComponents(func(c *bootstrap.Components) error {
				report, ingestErr := c.Ingest.Ingest(cmd.Context(), flags.request(), tbl)
				if ingestErr != nil {
					return ingestErr
				}
				renderReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.marketplaceName, "marketplace-name", "", "marketplace display name")
	f.StringVar(&flags.marketplaceSlug, "marketplace-slug", "", "marketplace slug")
	f.StringVar(&flags.region, "region", "", "marketplace region")
	f.StringVar(&flags.mapping.DomainColumn, "domain-column", "domain", "column holding the domain")
	f.StringVar(&flags.mapping.PriceColumn, "price-column", "price", "column holding the price")
	f.StringVar(&flags.mapping.CurrencyColumn, "currency-column", "", "column holding the currency")
	f.StringVar(&flags.mapping.URLColumn, "url-column", "", "column holding the listing URL")
	f.StringVar(&flags.mapping.ContentColumn, "content-column", "", "column holding the includes-content flag")
	f.StringVar(&flags.mapping.DofollowColumn, "dofollow-column", "", "column holding the dofollow flag")
	f.StringVar(&flags.mapping.MarketplaceColumn, "marketplace-column", "", "column naming each row's marketplace")
	f.StringVar(&flags.currency, "currency", domain.CurrencyUSD, "currency of rows without one")
	f.BoolVar(&flags.content, "content", false, "rows include content unless the row says otherwise")
	f.BoolVar(&flags.dofollow, "dofollow", true, "rows are dofollow unless the row says otherwise")
	return cmd
}

func readTable(path string) (*importer.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	parsed, err := importer.Parse(path, file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return parsed, nil
}

func renderReport(w io.Writer, report *domain.IngestReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Ingestion", report.IngestionID.String()})
	t.AppendRows([]table.Row{
		{"Marketplace ID", report.MarketplaceID},
		{"Rows processed", fmt.Sprintf("%d / %d", report.TotalRowsProcessed, report.TotalRows)},
		{"Successful", report.SuccessfulImports},
		{"Failed", report.FailedImports},
		{"New domains", report.NewDomainsAdded},
		{"New offers", report.NewOffersAdded},
		{"Updated offers", report.UpdatedOffers},
		{"Time (ms)", report.ProcessingTimeMS},
		{"Timed out", report.TimedOut},
	})
	t.Render()

	for _, e := range report.Errors {
		_, _ = fmt.Fprintln(w, e)
	}
	if report.ErrorsTruncated > 0 {
		_, _ = fmt.Fprintf(w, "... and %d more errors\n", report.ErrorsTruncated)
	}
}
