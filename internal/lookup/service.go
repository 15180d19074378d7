// Package lookup answers "who sells a backlink on these domains, and who is
// cheapest" from the offer store.
package lookup

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/currency"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/normalize"
	"github.com/shopspring/decimal"
)

const defaultMaxDomains = 1000

// OfferFinder reads offers and store-wide statistics.
type OfferFinder interface {
	FindByDomains(ctx context.Context, roots, slugs []string) ([]domain.OfferRecord, error)
	Stats(ctx context.Context) (*domain.LookupStats, error)
}

// DomainStore records and reads root domains.
type DomainStore interface {
	EnsureDomains(ctx context.Context, roots []string) (int, error)
	GetByRoot(ctx context.Context, root string) (*domain.Domain, error)
}

// Recorder receives lookup metrics.
type Recorder interface {
	RecordLookup(elapsed time.Duration, offers int)
	RecordConversionMiss(currency string)
}

type Config struct {
	MaxDomains    int
	RecordDomains bool
}

type Service struct {
	offers   OfferFinder
	domains  DomainStore
	rates    currency.RateSource
	recorder Recorder
	logger   logger.Logger
	cfg      Config
}

// NewService builds the service. recorder may be nil.
func NewService(
	offers OfferFinder,
	domains DomainStore,
	rates currency.RateSource,
	recorder Recorder,
	log logger.Logger,
	cfg Config,
) *Service {
	if cfg.MaxDomains <= 0 {
		cfg.MaxDomains = defaultMaxDomains
	}
	return &Service{
		offers:   offers,
		domains:  domains,
		rates:    rates,
		recorder: recorder,
		logger:   log,
		cfg:      cfg,
	}
}

// Lookup resolves req to ranked offers. It fails only on structurally
// invalid requests or store errors; unknown domains and missing rates are
// not errors.
func (s *Service) Lookup(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error) {
	start := time.Now()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	roots := normalize.Many(req.Domains)
	result := &domain.LookupResult{
		Results:              make([]domain.OfferResult, 0),
		TotalDomainsSearched: len(req.Domains),
	}

	if len(roots) > 0 {
		s.recordDomains(ctx, roots)

		records, err := s.offers.FindByDomains(ctx, roots, normalizeSlugs(req.Marketplaces))
		if err != nil {
			return nil, fmt.Errorf("find offers: %w", err)
		}

		offers := s.price(ctx, records)
		offers = filterBounds(offers, req.MinPriceUSD, req.MaxPriceUSD)

		for _, group := range groupByDomain(roots, offers) {
			ranked := rank(group, req.BestPriceOnly)
			if len(ranked) == 0 {
				continue
			}
			result.DomainsWithOffers++
			result.Results = append(result.Results, ranked...)
		}
	}

	result.TotalOffersFound = len(result.Results)
	elapsed := time.Since(start)
	result.ProcessingTimeMS = elapsed.Milliseconds()

	if s.recorder != nil {
		s.recorder.RecordLookup(elapsed, result.TotalOffersFound)
	}
	s.logger.Debug("Lookup completed",
		logger.Int("domains_searched", result.TotalDomainsSearched),
		logger.Int("roots", len(roots)),
		logger.Int("offers_found", result.TotalOffersFound),
		logger.Duration("elapsed", elapsed),
	)
	return result, nil
}

// Stats returns store-wide offer statistics.
func (s *Service) Stats(ctx context.Context) (*domain.LookupStats, error) {
	stats, err := s.offers.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup stats: %w", err)
	}
	return stats, nil
}

// Domain normalises raw and returns the stored root domain.
func (s *Service) Domain(ctx context.Context, raw string) (*domain.Domain, error) {
	root, err := normalize.Domain(raw)
	if err != nil {
		return nil, err
	}
	return s.domains.GetByRoot(ctx, root)
}

func (s *Service) validate(req *domain.LookupRequest) error {
	if req == nil || len(req.Domains) == 0 {
		return domain.ErrEmptyRequest
	}
	if len(req.Domains) > s.cfg.MaxDomains {
		return fmt.Errorf("%w: %d given, at most %d allowed", domain.ErrTooManyDomains, len(req.Domains), s.cfg.MaxDomains)
	}
	if req.MinPriceUSD != nil && req.MaxPriceUSD != nil && req.MinPriceUSD.GreaterThan(*req.MaxPriceUSD) {
		return domain.ErrInvalidFilterRange
	}
	return nil
}

// recordDomains registers unseen roots. Failures never fail the lookup.
func (s *Service) recordDomains(ctx context.Context, roots []string) {
	if !s.cfg.RecordDomains || s.domains == nil {
		return
	}
	created, err := s.domains.EnsureDomains(ctx, roots)
	if err != nil {
		s.logger.Warn("Failed to record looked-up domains",
			logger.Int("roots", len(roots)),
			logger.Error(err),
		)
		return
	}
	if created > 0 {
		s.logger.Debug("Recorded new domains", logger.Int("created", created))
	}
}

// price resolves the USD value of every record against the latest rate.
// The stored value is kept when no rate resolves.
func (s *Service) price(ctx context.Context, records []domain.OfferRecord) []domain.OfferResult {
	converter := currency.NewConverter(currency.NewMemo(s.rates))
	out := make([]domain.OfferResult, 0, len(records))

	for i := range records {
		rec := &records[i]
		usd, err := converter.ConvertNullable(ctx, rec.PriceAmount, rec.PriceCurrency, nil)
		if err != nil {
			s.logger.Warn("Price conversion failed",
				logger.Int64("offer_id", rec.ID),
				logger.String("currency", rec.PriceCurrency),
				logger.Error(err),
			)
			usd = decimal.NullDecimal{}
		}
		if !usd.Valid {
			usd = rec.PriceUSD
		}
		if !usd.Valid && s.recorder != nil {
			s.recorder.RecordConversionMiss(rec.PriceCurrency)
		}

		out = append(out, domain.OfferResult{
			Domain:          rec.RootDomain,
			Marketplace:     rec.MarketplaceName,
			MarketplaceSlug: rec.MarketplaceSlug,
			PriceAmount:     rec.PriceAmount,
			PriceCurrency:   rec.PriceCurrency,
			PriceUSD:        usd,
			ListingURL:      rec.ListingURL,
			IncludesContent: rec.IncludesContent,
			Dofollow:        rec.Dofollow,
			LastSeenAt:      rec.LastSeenAt,
		})
	}
	return out
}

// filterBounds applies inclusive USD bounds. Offers without a USD price
// never pass a bound.
func filterBounds(offers []domain.OfferResult, lo, hi *decimal.Decimal) []domain.OfferResult {
	if lo == nil && hi == nil {
		return offers
	}
	kept := offers[:0]
	for _, o := range offers {
		if !o.PriceUSD.Valid {
			continue
		}
		if lo != nil && o.PriceUSD.Decimal.LessThan(*lo) {
			continue
		}
		if hi != nil && o.PriceUSD.Decimal.GreaterThan(*hi) {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// groupByDomain buckets offers per root in the order roots were given.
func groupByDomain(roots []string, offers []domain.OfferResult) [][]domain.OfferResult {
	index := make(map[string]int, len(roots))
	for i, root := range roots {
		index[root] = i
	}

	groups := make([][]domain.OfferResult, len(roots))
	for _, o := range offers {
		i, ok := index[o.Domain]
		if !ok {
			continue
		}
		groups[i] = append(groups[i], o)
	}
	return groups
}

// rank orders one domain's offers by USD price, nulls last, then by slug,
// and flags every offer tied at the minimum. With bestOnly the rest are
// dropped, including offers without a USD price.
func rank(group []domain.OfferResult, bestOnly bool) []domain.OfferResult {
	slices.SortStableFunc(group, compareOffers)

	if len(group) == 0 || !group[0].PriceUSD.Valid {
		if bestOnly {
			return nil
		}
		return group
	}

	best := group[0].PriceUSD.Decimal
	n := 0
	for i := range group {
		if group[i].PriceUSD.Valid && group[i].PriceUSD.Decimal.Equal(best) {
			group[i].IsBestPrice = true
			n++
		}
	}
	if bestOnly {
		return group[:n]
	}
	return group
}

func compareOffers(a, b domain.OfferResult) int {
	switch {
	case a.PriceUSD.Valid && !b.PriceUSD.Valid:
		return -1
	case !a.PriceUSD.Valid && b.PriceUSD.Valid:
		return 1
	case a.PriceUSD.Valid && b.PriceUSD.Valid:
		if c := a.PriceUSD.Decimal.Cmp(b.PriceUSD.Decimal); c != 0 {
			return c
		}
	}
	return strings.Compare(a.MarketplaceSlug, b.MarketplaceSlug)
}

func normalizeSlugs(slugs []string) []string {
	if len(slugs) == 0 {
		return nil
	}
	out := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		slug := strings.ToLower(strings.TrimSpace(s))
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}
