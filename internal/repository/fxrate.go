package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

const fxRateColumns = "id, currency, rate_to_usd, effective_date, source, created_at"

type FxRateRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewFxRateRepository(db *sql.DB, log logger.Logger) *FxRateRepository {
	return &FxRateRepository{db: db, logger: log}
}

// LatestRate returns the rate with the greatest effective date at or before
// asOf, or the most recent rate when asOf is nil. When every known rate is
// newer than asOf the earliest one is used. It fails with
// domain.ErrNoRateAvailable only when the currency has no rate at all.
func (r *FxRateRepository) LatestRate(ctx context.Context, currency string, asOf *time.Time) (*domain.FxRate, error) {
	var row *sql.Row
	if asOf == nil {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+fxRateColumns+` FROM fx_rates
			WHERE currency = $1
			ORDER BY effective_date DESC
			LIMIT 1
		`, currency)
	} else {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+fxRateColumns+` FROM fx_rates
			WHERE currency = $1 AND effective_date <= $2
			ORDER BY effective_date DESC
			LIMIT 1
		`, currency, asOf.UTC().Format(time.DateOnly))
	}

	rate, err := scanFxRate(row)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query fx rate: %w", err)
	}
	if asOf == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoRateAvailable, currency)
	}

	rate, err = scanFxRate(r.db.QueryRowContext(ctx, `
		SELECT `+fxRateColumns+` FROM fx_rates
		WHERE currency = $1
		ORDER BY effective_date ASC
		LIMIT 1
	`, currency))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoRateAvailable, currency)
	}
	if err != nil {
		return nil, fmt.Errorf("query fx rate: %w", err)
	}
	return rate, nil
}

// Upsert stores the rate for (currency, effective date), replacing any rate
// already recorded for that day. The bool reports whether a row was created.
func (r *FxRateRepository) Upsert(ctx context.Context, rate *domain.FxRate) (bool, error) {
	if rate.Source == "" {
		rate.Source = "manual"
	}

	var isInsert bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO fx_rates (currency, rate_to_usd, effective_date, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (currency, effective_date) DO UPDATE SET
			rate_to_usd = EXCLUDED.rate_to_usd,
			source = EXCLUDED.source
		RETURNING id, created_at, (xmax = 0) AS is_insert
	`,
		rate.Currency, rate.RateToUSD, rate.EffectiveDate.UTC().Format(time.DateOnly), rate.Source, time.Now().UTC(),
	).Scan(&rate.ID, &rate.CreatedAt, &isInsert)
	if err != nil {
		return false, fmt.Errorf("upsert fx rate: %w", err)
	}
	return isInsert, nil
}

// History returns the rates of currency effective on or after since, newest first.
func (r *FxRateRepository) History(ctx context.Context, currency string, since time.Time) ([]domain.FxRate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+fxRateColumns+` FROM fx_rates
		WHERE currency = $1 AND effective_date >= $2
		ORDER BY effective_date DESC
	`, currency, since.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query fx history: %w", err)
	}
	defer rows.Close()

	rates := make([]domain.FxRate, 0)
	for rows.Next() {
		rate, scanErr := scanFxRate(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan fx rate: %w", scanErr)
		}
		rates = append(rates, *rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fx history: %w", err)
	}
	return rates, nil
}

func scanFxRate(row rowScanner) (*domain.FxRate, error) {
	var rate domain.FxRate
	if err := row.Scan(
		&rate.ID, &rate.Currency, &rate.RateToUSD, &rate.EffectiveDate, &rate.Source, &rate.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rate, nil
}
