package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is one data row of an uploaded table keyed by header name.
// Line is the 1-based row number in the source file.
type Record struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of column, or "" when the column is unmapped
// or absent.
func (r Record) Get(column string) string {
	if column == "" {
		return ""
	}
	return strings.TrimSpace(r.Fields[column])
}

// ColumnMapping says which uploaded column holds which offer attribute.
type ColumnMapping struct {
	DomainColumn      string `json:"domain_column"`
	PriceColumn       string `json:"price_column"`
	CurrencyColumn    string `json:"currency_column,omitempty"`
	URLColumn         string `json:"url_column,omitempty"`
	ContentColumn     string `json:"content_column,omitempty"`
	DofollowColumn    string `json:"dofollow_column,omitempty"`
	MarketplaceColumn string `json:"marketplace_column,omitempty"`
}

// Columns returns every mapped column name.
func (m ColumnMapping) Columns() []string {
	cols := make([]string, 0, 7)
	for _, c := range []string{
		m.DomainColumn, m.PriceColumn, m.CurrencyColumn, m.URLColumn,
		m.ContentColumn, m.DofollowColumn, m.MarketplaceColumn,
	} {
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// IngestRequest carries the options of one upload.
type IngestRequest struct {
	MarketplaceName string        `json:"marketplace_name"`
	MarketplaceSlug string        `json:"marketplace_slug"`
	Region          *string       `json:"region,omitempty"`
	ColumnMapping   ColumnMapping `json:"column_mapping"`
	CurrencyDefault string        `json:"currency_default"`
	ContentDefault  bool          `json:"content_default"`
	DofollowDefault *bool         `json:"dofollow_default,omitempty"`
}

// BulkMode reports whether every row belongs to the declared marketplace.
func (r IngestRequest) BulkMode() bool {
	return r.ColumnMapping.MarketplaceColumn == ""
}

// Dofollow returns the dofollow default, true when unset.
func (r IngestRequest) Dofollow() bool {
	return r.DofollowDefault == nil || *r.DofollowDefault
}

// IngestReport summarises one ingestion.
type IngestReport struct {
	IngestionID        uuid.UUID `json:"ingestion_id"`
	MarketplaceID      int64     `json:"marketplace_id"`
	TotalRows          int       `json:"total_rows"`
	TotalRowsProcessed int       `json:"total_rows_processed"`
	SuccessfulImports  int       `json:"successful_imports"`
	FailedImports      int       `json:"failed_imports"`
	NewDomainsAdded    int       `json:"new_domains_added"`
	NewOffersAdded     int       `json:"new_offers_added"`
	UpdatedOffers      int       `json:"updated_offers"`
	ProcessingTimeMS   int64     `json:"processing_time_ms"`
	TimedOut           bool      `json:"timed_out"`
	Errors             []string  `json:"errors"`
	ErrorsTruncated    int       `json:"errors_truncated"`
}

// OfferUpsert is a validated row ready to be written.
type OfferUpsert struct {
	Line            int
	RootDomain      string
	MarketplaceID   int64
	PriceAmount     decimal.Decimal
	PriceCurrency   string
	PriceUSD        decimal.NullDecimal
	ListingURL      *string
	IncludesContent bool
	Dofollow        bool
	SeenAt          time.Time
}

// UpsertOutcome is the store's verdict on one OfferUpsert. Err is set when
// the row was rolled back.
type UpsertOutcome struct {
	Line          int
	OfferID       int64
	DomainCreated bool
	OfferCreated  bool
	Err           error
}
