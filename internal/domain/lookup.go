package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LookupRequest asks for the known offers of a set of raw domain strings.
type LookupRequest struct {
	Domains       []string         `json:"domains"`
	Marketplaces  []string         `json:"marketplaces,omitempty"`
	MinPriceUSD   *decimal.Decimal `json:"min_price_usd,omitempty"`
	MaxPriceUSD   *decimal.Decimal `json:"max_price_usd,omitempty"`
	BestPriceOnly bool             `json:"best_price_only"`
}

// OfferResult is one offer row in a lookup response.
type OfferResult struct {
	Domain          string              `json:"domain"`
	Marketplace     string              `json:"marketplace"`
	MarketplaceSlug string              `json:"marketplace_slug"`
	PriceAmount     decimal.Decimal     `json:"price_amount"`
	PriceCurrency   string              `json:"price_currency"`
	PriceUSD        decimal.NullDecimal `json:"price_usd"`
	ListingURL      *string             `json:"listing_url,omitempty"`
	IncludesContent bool                `json:"includes_content"`
	Dofollow        bool                `json:"dofollow"`
	LastSeenAt      time.Time           `json:"last_seen_at"`
	IsBestPrice     bool                `json:"is_best_price"`
}

// LookupResult is the response to a LookupRequest.
type LookupResult struct {
	Results              []OfferResult `json:"results"`
	TotalDomainsSearched int           `json:"total_domains_searched"`
	DomainsWithOffers    int           `json:"domains_with_offers"`
	TotalOffersFound     int           `json:"total_offers_found"`
	ProcessingTimeMS     int64         `json:"processing_time_ms"`
}
