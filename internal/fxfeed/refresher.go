// Package fxfeed refreshes the FX rate table from a USD-based rates feed.
package fxfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/retry"
	"github.com/shopspring/decimal"
)

const (
	// SourceName tags rates stored by the feed.
	SourceName = "exchangerate-api"

	ratePlaces       = 8
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

var (
	errUnexpectedBase = errors.New("feed is not USD based")
	errServerStatus   = errors.New("feed server error")
)

// RateStore persists rates.
type RateStore interface {
	Upsert(ctx context.Context, rate *domain.FxRate) (bool, error)
}

// CurrencyLister lists the currencies offers are priced in.
type CurrencyLister interface {
	TrackedCurrencies(ctx context.Context) ([]string, error)
}

// Publisher announces stored rates.
type Publisher interface {
	PublishRatesSynced(ctx context.Context, effective time.Time, currencies []string, source string)
}

// Recorder receives sync metrics.
type Recorder interface {
	RecordFXSync(saved int, err error)
}

type Config struct {
	URL        string
	Currencies []string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Result describes one sync.
type Result struct {
	EffectiveDate time.Time `json:"effective_date"`
	Saved         []string  `json:"saved"`
	Missing       []string  `json:"missing"`
}

// feedResponse is the exchangerate-api v4 payload: units of each currency
// per one unit of base.
type feedResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type Refresher struct {
	client     *http.Client
	store      RateStore
	currencies CurrencyLister
	publisher  Publisher
	recorder   Recorder
	logger     logger.Logger
	cfg        Config
}

// NewRefresher builds a refresher. currencies, publisher and recorder may
// be nil.
func NewRefresher(
	store RateStore,
	currencies CurrencyLister,
	publisher Publisher,
	recorder Recorder,
	log logger.Logger,
	cfg Config,
) *Refresher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Refresher{
		client:     &http.Client{Timeout: cfg.Timeout},
		store:      store,
		currencies: currencies,
		publisher:  publisher,
		recorder:   recorder,
		logger:     log,
		cfg:        cfg,
	}
}

// Sync fetches the feed and stores a rate for every configured or tracked
// currency, dated by the feed.
func (r *Refresher) Sync(ctx context.Context) (*Result, error) {
	result, err := r.sync(ctx)
	if r.recorder != nil {
		saved := 0
		if result != nil {
			saved = len(result.Saved)
		}
		r.recorder.RecordFXSync(saved, err)
	}
	if err != nil {
		r.logger.Error("FX feed sync failed", logger.Error(err))
		return nil, err
	}

	r.logger.Info("FX feed sync completed",
		logger.String("effective_date", result.EffectiveDate.Format(time.DateOnly)),
		logger.Strings("saved", result.Saved),
		logger.Strings("missing", result.Missing),
	)
	if r.publisher != nil {
		r.publisher.PublishRatesSynced(ctx, result.EffectiveDate, result.Saved, SourceName)
	}
	return result, nil
}

func (r *Refresher) sync(ctx context.Context) (*Result, error) {
	wanted, err := r.wantedCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{Saved: make([]string, 0), Missing: make([]string, 0)}
	if len(wanted) == 0 {
		result.EffectiveDate = today()
		return result, nil
	}

	var feed *feedResponse
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  r.cfg.Retries,
		InitialDelay: r.cfg.RetryDelay,
		IsRetryable: func(err error) bool {
			return retry.IsTransient(err) || errors.Is(err, errServerStatus)
		},
	}, func(ctx context.Context) error {
		var fetchErr error
		feed, fetchErr = r.fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch fx feed: %w", err)
	}

	if domain.NormalizeCurrencyCode(feed.Base) != domain.CurrencyUSD {
		return nil, fmt.Errorf("%w: base %q", errUnexpectedBase, feed.Base)
	}
	result.EffectiveDate = today()
	if d, parseErr := time.Parse(time.DateOnly, feed.Date); parseErr == nil {
		result.EffectiveDate = d
	}

	for _, code := range wanted {
		quote, ok := feed.Rates[code]
		if !ok || !quote.IsPositive() {
			result.Missing = append(result.Missing, code)
			continue
		}

		rate := &domain.FxRate{
			Currency:      code,
			RateToUSD:     decimal.NewFromInt(1).DivRound(quote, ratePlaces),
			EffectiveDate: result.EffectiveDate,
			Source:        SourceName,
		}
		if !rate.RateToUSD.IsPositive() {
			result.Missing = append(result.Missing, code)
			continue
		}
		if _, upsertErr := r.store.Upsert(ctx, rate); upsertErr != nil {
			return result, fmt.Errorf("store %s rate: %w", code, upsertErr)
		}
		result.Saved = append(result.Saved, code)
	}
	return result, nil
}

// wantedCurrencies merges configured and tracked currencies, sorted and
// without USD.
func (r *Refresher) wantedCurrencies(ctx context.Context) ([]string, error) {
	codes := make([]string, 0, len(r.cfg.Currencies))
	codes = append(codes, r.cfg.Currencies...)
	if r.currencies != nil {
		tracked, err := r.currencies.TrackedCurrencies(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tracked currencies: %w", err)
		}
		codes = append(codes, tracked...)
	}

	out := make([]string, 0, len(codes))
	for _, c := range codes {
		code := domain.NormalizeCurrencyCode(c)
		if code == "" || code == domain.CurrencyUSD {
			continue
		}
		out = append(out, code)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (r *Refresher) fetch(ctx context.Context) (*feedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", errServerStatus, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected feed status %d", resp.StatusCode)
	}

	var feed feedResponse
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&feed); decodeErr != nil {
		return nil, fmt.Errorf("decode feed: %w", decodeErr)
	}
	return &feed, nil
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}
