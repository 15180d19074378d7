package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxPrice is the largest amount a NUMERIC(12,2) column holds.
var maxPrice = decimal.RequireFromString("9999999999.99")

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

var (
	thousandsPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugSeparators   = regexp.MustCompile(`[^a-z0-9]+`)
)

// parsePrice reads a non-negative amount. A leading currency symbol is
// accepted and its ISO code returned.
func parsePrice(raw string) (decimal.Decimal, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, "", fmt.Errorf("%w: price is empty", domain.ErrInvalidPrice)
	}

	var symbolCode string
	for symbol, code := range currencySymbols {
		if rest, ok := strings.CutPrefix(s, symbol); ok {
			s = strings.TrimSpace(rest)
			symbolCode = code
			break
		}
	}

	if strings.Contains(s, ",") {
		if !thousandsPattern.MatchString(s) {
			return decimal.Zero, "", fmt.Errorf("%w: %q", domain.ErrInvalidPrice, raw)
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: %q", domain.ErrInvalidPrice, raw)
	}
	if amount.IsNegative() {
		return decimal.Zero, "", fmt.Errorf("%w: %q is negative", domain.ErrInvalidPrice, raw)
	}
	amount = amount.Round(2)
	if amount.GreaterThan(maxPrice) {
		return decimal.Zero, "", fmt.Errorf("%w: %q is too large", domain.ErrInvalidPrice, raw)
	}
	return amount, symbolCode, nil
}

// parseCurrency accepts an ISO 4217 code in any case or one of the known
// symbols.
func parseCurrency(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if code, ok := currencySymbols[s]; ok {
		return code, nil
	}

	unit, err := currency.ParseISO(strings.ToUpper(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, raw)
	}
	return unit.String(), nil
}

// parseFlag reads a yes/no cell, returning def for blank or unknown values.
func parseFlag(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1", "dofollow":
		return true
	case "false", "no", "n", "0", "nofollow":
		return false
	default:
		return def
	}
}

// parseURL returns the cell when it is an absolute http(s) URL, nil
// otherwise.
func parseURL(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil
	}
	return &s
}

var errEmptySlug = errors.New("marketplace value has no usable characters")

// Slugify turns a marketplace name into its slug: accents are folded, the
// result lower-cased and runs of other characters collapsed into "-".
func Slugify(name string) (string, error) {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		return "", fmt.Errorf("fold %q: %w", name, err)
	}

	slug := strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(folded), "-"), "-")
	if slug == "" {
		return "", errEmptySlug
	}
	return slug, nil
}

// ValidSlug reports whether s is already in slug form.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
