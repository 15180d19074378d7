// Package domain holds the data model shared by the ingestion and lookup paths.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyUSD is the pivot currency every price is normalised to.
const CurrencyUSD = "USD"

func init() {
	// Prices are numbers on the wire, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Domain is a registrable root domain (eTLD+1).
type Domain struct {
	ID         int64     `json:"id"`
	RootDomain string    `json:"root_domain"`
	OfferCount int       `json:"offer_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Marketplace is a named source of backlink offers. Slug is the stable key.
type Marketplace struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Region    *string   `json:"region,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Offer is the current price quote for one (domain, marketplace) pair.
type Offer struct {
	ID              int64               `json:"id"`
	DomainID        int64               `json:"domain_id"`
	MarketplaceID   int64               `json:"marketplace_id"`
	PriceAmount     decimal.Decimal     `json:"price_amount"`
	PriceCurrency   string              `json:"price_currency"`
	PriceUSD        decimal.NullDecimal `json:"price_usd"`
	ListingURL      *string             `json:"listing_url,omitempty"`
	IncludesContent bool                `json:"includes_content"`
	Dofollow        bool                `json:"dofollow"`
	FirstSeenAt     time.Time           `json:"first_seen_at"`
	LastSeenAt      time.Time           `json:"last_seen_at"`
}

// OfferRecord is an Offer joined with its domain and marketplace names.
type OfferRecord struct {
	Offer
	RootDomain      string `json:"root_domain"`
	MarketplaceName string `json:"marketplace_name"`
	MarketplaceSlug string `json:"marketplace_slug"`
}

// PriceHistory is one observed price for an offer.
type PriceHistory struct {
	ID            int64               `json:"id"`
	OfferID       int64               `json:"offer_id"`
	PriceAmount   decimal.Decimal     `json:"price_amount"`
	PriceCurrency string              `json:"price_currency"`
	PriceUSD      decimal.NullDecimal `json:"price_usd"`
	SeenAt        time.Time           `json:"seen_at"`
}

// FxRate converts one unit of Currency into USD as of EffectiveDate.
type FxRate struct {
	ID            int64           `json:"id"`
	Currency      string          `json:"currency"`
	RateToUSD     decimal.Decimal `json:"rate_to_usd"`
	EffectiveDate time.Time       `json:"effective_date"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MarketplaceStats summarises the offers of one marketplace.
type MarketplaceStats struct {
	MarketplaceID int64               `json:"marketplace_id"`
	TotalOffers   int                 `json:"total_offers"`
	UniqueDomains int                 `json:"unique_domains"`
	AvgPriceUSD   decimal.NullDecimal `json:"avg_price_usd"`
	MinPriceUSD   decimal.NullDecimal `json:"min_price_usd"`
	MaxPriceUSD   decimal.NullDecimal `json:"max_price_usd"`
}

// LookupStats summarises the whole offer store.
type LookupStats struct {
	TotalDomains      int                 `json:"total_domains"`
	TotalOffers       int                 `json:"total_offers"`
	TotalMarketplaces int                 `json:"total_marketplaces"`
	AvgPriceUSD       decimal.NullDecimal `json:"avg_price_usd"`
	PriceRange        PriceRange          `json:"price_range"`
}

type PriceRange struct {
	Min decimal.NullDecimal `json:"min"`
	Max decimal.NullDecimal `json:"max"`
	Q25 decimal.NullDecimal `json:"q25"`
	Q75 decimal.NullDecimal `json:"q75"`
}

// NormalizeCurrencyCode trims and upper-cases an ISO 4217 code.
func NormalizeCurrencyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
