// Package ingest turns uploaded tables into offers: it validates and
// normalises every row and writes the survivors to the offer store in
// bounded batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/backlink-checker/internal/currency"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/importer"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/normalize"
)

const (
	defaultBatchSize = 100
	defaultMaxErrors = 10
	defaultTimeout   = 5 * time.Minute
)

// OfferWriter applies a batch of validated rows.
type OfferWriter interface {
	ApplyBatch(ctx context.Context, rows []domain.OfferUpsert) ([]domain.UpsertOutcome, error)
}

// MarketplaceResolver finds or creates a marketplace by slug. GetBySlug
// fails with domain.ErrNotFound for an unknown slug.
type MarketplaceResolver interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Marketplace, error)
	GetOrCreate(ctx context.Context, name, slug string, region *string) (*domain.Marketplace, bool, error)
}

// Publisher announces finished ingestions. Implementations must not block.
type Publisher interface {
	PublishIngestionCompleted(ctx context.Context, report *domain.IngestReport)
}

// Recorder receives ingestion metrics.
type Recorder interface {
	RecordIngestion(report *domain.IngestReport)
	RecordConversionMiss(currency string)
}

// Config bounds one ingestion.
type Config struct {
	BatchSize int
	Timeout   time.Duration
	MaxErrors int
}

type Service struct {
	offers       OfferWriter
	marketplaces MarketplaceResolver
	rates        currency.RateSource
	publisher    Publisher
	recorder     Recorder
	logger       logger.Logger
	cfg          Config
}

// NewService builds the service. publisher and recorder may be nil.
func NewService(
	offers OfferWriter,
	marketplaces MarketplaceResolver,
	rates currency.RateSource,
	publisher Publisher,
	recorder Recorder,
	log logger.Logger,
	cfg Config,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = defaultMaxErrors
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Service{
		offers:       offers,
		marketplaces: marketplaces,
		rates:        rates,
		publisher:    publisher,
		recorder:     recorder,
		logger:       log,
		cfg:          cfg,
	}
}

// run holds the state of one ingestion.
type run struct {
	req       *domain.IngestRequest
	converter *currency.Converter
	currency  string
	seenAt    time.Time
	bulk      *domain.Marketplace
	// byRowSlug caches per-row marketplaces; a nil entry records a slug that
	// could not be resolved.
	byRowSlug map[string]*domain.Marketplace
	report    *domain.IngestReport
	maxErrors int
}

// Ingest validates req against table and writes every valid row. Request
// errors are returned before any row is touched; row errors land in the
// report. When the timeout expires the report holds the progress made and
// TimedOut is set.
func (s *Service) Ingest(ctx context.Context, req *domain.IngestRequest, table *importer.Table) (*domain.IngestReport, error) {
	start := time.Now()

	code, err := s.validate(req, table)
	if err != nil {
		return nil, err
	}

	r := &run{
		req:       req,
		converter: currency.NewConverter(currency.NewMemo(s.rates)),
		currency:  code,
		seenAt:    start.UTC(),
		byRowSlug: make(map[string]*domain.Marketplace),
		maxErrors: s.cfg.MaxErrors,
		report: &domain.IngestReport{
			IngestionID: uuid.New(),
			TotalRows:   table.Len(),
			Errors:      make([]string, 0),
		},
	}

	if req.MarketplaceSlug != "" {
		m, _, resolveErr := s.marketplaces.GetOrCreate(ctx, req.MarketplaceName, req.MarketplaceSlug, req.Region)
		if resolveErr != nil {
			return nil, fmt.Errorf("resolve marketplace: %w", resolveErr)
		}
		r.bulk = m
		r.report.MarketplaceID = m.ID
	}

	ingestCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	for offset := 0; offset < len(table.Records); offset += s.cfg.BatchSize {
		if ingestCtx.Err() != nil {
			break
		}
		end := min(offset+s.cfg.BatchSize, len(table.Records))
		batch := s.processBatch(ingestCtx, r, table.Records[offset:end])
		if batch == nil {
			break
		}
		r.merge(batch)
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("ingestion cancelled: %w", ctx.Err())
	}
	r.report.TimedOut = ingestCtx.Err() != nil
	r.report.ProcessingTimeMS = time.Since(start).Milliseconds()

	s.finish(ctx, r.report)
	return r.report, nil
}

func (s *Service) validate(req *domain.IngestRequest, table *importer.Table) (string, error) {
	if req == nil || table == nil {
		return "", fmt.Errorf("%w: request and file are required", domain.ErrInvalidMapping)
	}

	req.MarketplaceName = strings.TrimSpace(req.MarketplaceName)
	req.MarketplaceSlug = strings.TrimSpace(req.MarketplaceSlug)

	if req.BulkMode() && (req.MarketplaceName == "" || req.MarketplaceSlug == "") {
		return "", fmt.Errorf("%w: marketplace_name and marketplace_slug are required", domain.ErrMarketplaceConflict)
	}
	if (req.MarketplaceName == "") != (req.MarketplaceSlug == "") {
		return "", fmt.Errorf("%w: marketplace_name and marketplace_slug go together", domain.ErrMarketplaceConflict)
	}
	if req.MarketplaceSlug != "" && !ValidSlug(req.MarketplaceSlug) {
		return "", fmt.Errorf("%w: invalid slug %q", domain.ErrMarketplaceConflict, req.MarketplaceSlug)
	}

	mapping := req.ColumnMapping
	if mapping.DomainColumn == "" || mapping.PriceColumn == "" {
		return "", fmt.Errorf("%w: domain_column and price_column are required", domain.ErrInvalidMapping)
	}
	if missing := table.MissingColumns(mapping.Columns()...); len(missing) > 0 {
		return "", fmt.Errorf("%w: missing columns [%s]", domain.ErrInvalidMapping, strings.Join(missing, ", "))
	}

	code := domain.CurrencyUSD
	if strings.TrimSpace(req.CurrencyDefault) != "" {
		parsed, err := parseCurrency(req.CurrencyDefault)
		if err != nil {
			return "", fmt.Errorf("currency_default: %w", err)
		}
		code = parsed
	}
	return code, nil
}

// batchResult is merged into the report only when its write finished, so a
// batch rolled back by the timeout leaves no trace in the counts.
type batchResult struct {
	processed, succeeded, failed int
	newDomains, newOffers        int
	updated                      int
	errors                       []string
}

func (b *batchResult) fail(line int, err error) {
	b.failed++
	b.processed++
	b.errors = append(b.errors, fmt.Sprintf("Row %d: %v", line, err))
}

// processBatch returns nil when the batch was abandoned by the timeout.
func (s *Service) processBatch(ctx context.Context, r *run, records []domain.Record) *batchResult {
	result := &batchResult{}
	rows := make([]domain.OfferUpsert, 0, len(records))

	for i := range records {
		row, err := s.prepare(ctx, r, &records[i])
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			result.fail(records[i].Line, err)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return result
	}

	outcomes, err := s.offers.ApplyBatch(ctx, rows)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Error("Offer batch failed",
			logger.String("ingestion_id", r.report.IngestionID.String()),
			logger.Int("rows", len(rows)),
			logger.Error(err),
		)
		for _, row := range rows {
			result.fail(row.Line, fmt.Errorf("batch write failed: %w", err))
		}
		return result
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			result.fail(outcome.Line, outcome.Err)
			continue
		}
		result.processed++
		result.succeeded++
		if outcome.DomainCreated {
			result.newDomains++
		}
		if outcome.OfferCreated {
			result.newOffers++
		} else {
			result.updated++
		}
	}
	return result
}

// prepare validates one record into an upsert.
func (s *Service) prepare(ctx context.Context, r *run, rec *domain.Record) (domain.OfferUpsert, error) {
	mapping := r.req.ColumnMapping

	rawDomain := rec.Get(mapping.DomainColumn)
	if rawDomain == "" {
		return domain.OfferUpsert{}, fmt.Errorf("%w: domain is empty", domain.ErrInvalidDomain)
	}
	root, err := normalize.Domain(rawDomain)
	if err != nil {
		return domain.OfferUpsert{}, err
	}

	amount, symbolCode, err := parsePrice(rec.Get(mapping.PriceColumn))
	if err != nil {
		return domain.OfferUpsert{}, err
	}

	code := r.currency
	if symbolCode != "" {
		code = symbolCode
	}
	if cell := rec.Get(mapping.CurrencyColumn); cell != "" {
		code, err = parseCurrency(cell)
		if err != nil {
			return domain.OfferUpsert{}, err
		}
	}

	marketplace, err := s.marketplaceFor(ctx, r, rec)
	if err != nil {
		return domain.OfferUpsert{}, err
	}

	usd, err := r.converter.ConvertNullable(ctx, amount, code, &r.seenAt)
	if err != nil {
		return domain.OfferUpsert{}, fmt.Errorf("convert price: %w", err)
	}
	if !usd.Valid && s.recorder != nil {
		s.recorder.RecordConversionMiss(code)
	}

	return domain.OfferUpsert{
		Line:            rec.Line,
		RootDomain:      root,
		MarketplaceID:   marketplace.ID,
		PriceAmount:     amount,
		PriceCurrency:   code,
		PriceUSD:        usd,
		ListingURL:      parseURL(rec.Get(mapping.URLColumn)),
		IncludesContent: parseFlag(rec.Get(mapping.ContentColumn), r.req.ContentDefault),
		Dofollow:        parseFlag(rec.Get(mapping.DofollowColumn), r.req.Dofollow()),
		SeenAt:          r.seenAt,
	}, nil
}

var errNoMarketplace = errors.New("row has no marketplace and no default was given")

// marketplaceFor resolves the row's marketplace in per-row mode, falling
// back to the declared one when the cell is blank. A known slug keeps its
// stored name; the cell text only names marketplaces created here.
func (s *Service) marketplaceFor(ctx context.Context, r *run, rec *domain.Record) (*domain.Marketplace, error) {
	if r.req.BulkMode() {
		return r.bulk, nil
	}

	name := rec.Get(r.req.ColumnMapping.MarketplaceColumn)
	if name == "" {
		if r.bulk == nil {
			return nil, errNoMarketplace
		}
		return r.bulk, nil
	}

	slug, err := Slugify(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMarketplaceConflict, err)
	}
	if m, ok := r.byRowSlug[slug]; ok {
		if m == nil {
			return nil, fmt.Errorf("%w: marketplace %q could not be resolved", domain.ErrMarketplaceConflict, name)
		}
		return m, nil
	}

	m, err := s.rowMarketplace(ctx, name, slug)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		r.byRowSlug[slug] = nil
		return nil, fmt.Errorf("marketplace %q: %w", name, err)
	}
	r.byRowSlug[slug] = m
	return m, nil
}

func (s *Service) rowMarketplace(ctx context.Context, name, slug string) (*domain.Marketplace, error) {
	m, err := s.marketplaces.GetBySlug(ctx, slug)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	m, _, err = s.marketplaces.GetOrCreate(ctx, name, slug, nil)
	return m, err
}

func (r *run) merge(b *batchResult) {
	rep := r.report
	rep.TotalRowsProcessed += b.processed
	rep.SuccessfulImports += b.succeeded
	rep.FailedImports += b.failed
	rep.NewDomainsAdded += b.newDomains
	rep.NewOffersAdded += b.newOffers
	rep.UpdatedOffers += b.updated

	for _, msg := range b.errors {
		if len(rep.Errors) < r.maxErrors {
			rep.Errors = append(rep.Errors, msg)
		} else {
			rep.ErrorsTruncated++
		}
	}
}

func (s *Service) finish(ctx context.Context, report *domain.IngestReport) {
	s.logger.Info("Ingestion completed",
		logger.String("ingestion_id", report.IngestionID.String()),
		logger.Int64("marketplace_id", report.MarketplaceID),
		logger.Int("total_rows", report.TotalRows),
		logger.Int("successful_imports", report.SuccessfulImports),
		logger.Int("failed_imports", report.FailedImports),
		logger.Int("new_offers", report.NewOffersAdded),
		logger.Int("updated_offers", report.UpdatedOffers),
		logger.Int64("processing_time_ms", report.ProcessingTimeMS),
		logger.Bool("timed_out", report.TimedOut),
	)

	if s.recorder != nil {
		s.recorder.RecordIngestion(report)
	}
	if s.publisher != nil {
		s.publisher.PublishIngestionCompleted(ctx, report)
	}
}
