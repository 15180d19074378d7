package domain

import "errors"

// Row-level errors. Ingestion records these per row and keeps going.
var (
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidCurrency = errors.New("invalid currency")
)

// ErrNoRateAvailable means no FX rate exists for a currency. Callers degrade
// to a null USD price.
var ErrNoRateAvailable = errors.New("no fx rate available")

// Request-level errors, rejected before any processing begins.
var (
	ErrEmptyRequest        = errors.New("no domains supplied")
	ErrTooManyDomains      = errors.New("too many domains")
	ErrInvalidFilterRange  = errors.New("min_price_usd must not exceed max_price_usd")
	ErrMarketplaceConflict = errors.New("marketplace conflict")
	ErrInvalidMapping      = errors.New("invalid column mapping")
)

// Store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrSlugTaken = errors.New("marketplace slug already exists")
)

// IsRequestError reports whether err should be surfaced to the caller as a
// bad request.
func IsRequestError(err error) bool {
	for _, target := range []error{
		ErrEmptyRequest,
		ErrTooManyDomains,
		ErrInvalidFilterRange,
		ErrMarketplaceConflict,
		ErrInvalidMapping,
		ErrInvalidDomain,
		ErrInvalidPrice,
		ErrInvalidCurrency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
