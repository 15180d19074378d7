// Package currency converts offer prices to USD using the time-indexed FX
// rate table.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/shopspring/decimal"
)

// usdPlaces is the scale of every USD amount the converter returns.
const usdPlaces = 2

// RateSource resolves the rate for currency with the greatest effective date
// at or before asOf, or the most recent one when asOf is nil. Implementations
// return an error wrapping domain.ErrNoRateAvailable when the currency has no
// rate at all.
type RateSource interface {
	LatestRate(ctx context.Context, currency string, asOf *time.Time) (*domain.FxRate, error)
}

// Converter turns (amount, currency, as-of) triples into USD.
type Converter struct {
	rates RateSource
}

func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// ToUSD converts amount to USD rounded half-up to cents. USD amounts are
// returned unchanged.
func (c *Converter) ToUSD(ctx context.Context, amount decimal.Decimal, currency string, asOf *time.Time) (decimal.Decimal, error) {
	code := domain.NormalizeCurrencyCode(currency)
	if code == domain.CurrencyUSD {
		return amount, nil
	}

	rate, err := c.rate(ctx, code, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return roundHalfUp(amount.Mul(rate)), nil
}

// FromUSD is the inverse of ToUSD for the same rate.
func (c *Converter) FromUSD(ctx context.Context, usd decimal.Decimal, currency string, asOf *time.Time) (decimal.Decimal, error) {
	code := domain.NormalizeCurrencyCode(currency)
	if code == domain.CurrencyUSD {
		return usd, nil
	}

	rate, err := c.rate(ctx, code, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return roundHalfUp(usd.Div(rate)), nil
}

// ConvertNullable converts amount and degrades a missing rate to a null
// result. Any other error is returned.
func (c *Converter) ConvertNullable(ctx context.Context, amount decimal.Decimal, currency string, asOf *time.Time) (decimal.NullDecimal, error) {
	usd, err := c.ToUSD(ctx, amount, currency, asOf)
	if err != nil {
		if errors.Is(err, domain.ErrNoRateAvailable) {
			return decimal.NullDecimal{}, nil
		}
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(usd), nil
}

func (c *Converter) rate(ctx context.Context, code string, asOf *time.Time) (decimal.Decimal, error) {
	if c.rates == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrNoRateAvailable, code)
	}

	fx, err := c.rates.LatestRate(ctx, code, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve %s rate: %w", code, err)
	}
	if fx == nil || !fx.RateToUSD.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s has no positive rate", domain.ErrNoRateAvailable, code)
	}
	return fx.RateToUSD, nil
}

// roundHalfUp rounds to cents. decimal.Round rounds half away from zero,
// which equals half-up for the non-negative amounts prices are.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(usdPlaces)
}
