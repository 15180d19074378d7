package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/handlers"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// memoryRates keeps fx rows per currency, ordered oldest first.
type memoryRates struct {
	mu    sync.Mutex
	rates map[string][]domain.FxRate
}

func newMemoryRates(rows ...domain.FxRate) *memoryRates {
	m := &memoryRates{rates: make(map[string][]domain.FxRate)}
	for _, r := range rows {
		m.rates[r.Currency] = append(m.rates[r.Currency], r)
	}
	return m
}

func (m *memoryRates) LatestRate(_ context.Context, currency string, asOf *time.Time) (*domain.FxRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *domain.FxRate
	for i := range m.rates[currency] {
		r := m.rates[currency][i]
		if asOf != nil && r.EffectiveDate.After(*asOf) {
			continue
		}
		best = &r
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoRateAvailable, currency)
	}
	return best, nil
}

func (m *memoryRates) Upsert(_ context.Context, rate *domain.FxRate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.rates[rate.Currency] {
		if r.EffectiveDate.Equal(rate.EffectiveDate) {
			m.rates[rate.Currency][i] = *rate
			return false, nil
		}
	}
	m.rates[rate.Currency] = append(m.rates[rate.Currency], *rate)
	return true, nil
}

func (m *memoryRates) History(_ context.Context, currency string, since time.Time) ([]domain.FxRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.FxRate, 0)
	for _, r := range m.rates[currency] {
		if !r.EffectiveDate.Before(since) {
			out = append([]domain.FxRate{r}, out...)
		}
	}
	return out, nil
}

func date(s string) time.Time {
	d, _ := time.Parse(time.DateOnly, s)
	return d
}

func fxRouter(store handlers.RateStore) *gin.Engine {
	h := handlers.NewFXHandler(store, logger.NewNop())
	router := gin.New()
	router.GET("/fx/rates/:currency", h.History)
	router.PUT("/fx/rates", h.Upsert)
	router.GET("/fx/convert", h.Convert)
	return router
}

func eurRates() *memoryRates {
	return newMemoryRates(
		domain.FxRate{Currency: "EUR", RateToUSD: decimal.RequireFromString("1.10"), EffectiveDate: date("2024-01-01")},
		domain.FxRate{Currency: "EUR", RateToUSD: decimal.RequireFromString("1.08"), EffectiveDate: date("2024-06-01")},
		domain.FxRate{Currency: "GBP", RateToUSD: decimal.RequireFromString("1.25"), EffectiveDate: date("2024-06-01")},
	)
}

func TestFXHandler_Convert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		query         string
		wantConverted string
		wantUSD       string
	}{
		{"as of date uses earlier rate", "amount=100&from=eur&date=2024-03-01", "110", "110"},
		{"latest rate", "amount=100&from=EUR", "108", "108"},
		{"usd passthrough", "amount=42.5&from=USD", "42.5", "42.5"},
		{"cross rate through usd", "amount=100&from=EUR&to=GBP", "86.4", "108"},
	}

	router := fxRouter(eurRates())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := doJSON(t, router, http.MethodGet, "/fx/convert?"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			body := decode(t, w)
			assert.InDelta(t, decimal.RequireFromString(tt.wantConverted).InexactFloat64(), body["converted"], 0.0001)
			assert.InDelta(t, decimal.RequireFromString(tt.wantUSD).InexactFloat64(), body["usd"], 0.0001)
		})
	}
}

func TestFXHandler_ConvertErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"bad amount", "amount=ten&from=EUR", http.StatusBadRequest},
		{"negative amount", "amount=-1&from=EUR", http.StatusBadRequest},
		{"unknown currency", "amount=1&from=XYZ", http.StatusBadRequest},
		{"bad date", "amount=1&from=EUR&date=01/03/2024", http.StatusBadRequest},
		{"no rate", "amount=1&from=JPY", http.StatusUnprocessableEntity},
	}

	router := fxRouter(eurRates())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, doJSON(t, router, http.MethodGet, "/fx/convert?"+tt.query, nil).Code)
		})
	}
}

func TestFXHandler_Upsert(t *testing.T) {
	t.Parallel()

	store := eurRates()
	router := fxRouter(store)

	w := doJSON(t, router, http.MethodPut, "/fx/rates", map[string]any{
		"currency": "chf", "rate_to_usd": "1.12", "effective_date": "2024-07-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "CHF", decode(t, w)["currency"])

	w = doJSON(t, router, http.MethodPut, "/fx/rates", map[string]any{
		"currency": "CHF", "rate_to_usd": 1.13, "effective_date": "2024-07-01", "source": "ecb",
	})
	require.Equal(t, http.StatusOK, w.Code)

	rate, err := store.LatestRate(context.Background(), "CHF", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.13", rate.RateToUSD.String())
	assert.Equal(t, "ecb", rate.Source)
}

func TestFXHandler_UpsertValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"usd", map[string]any{"currency": "USD", "rate_to_usd": 1}},
		{"unknown code", map[string]any{"currency": "ABC", "rate_to_usd": 1}},
		{"zero rate", map[string]any{"currency": "EUR", "rate_to_usd": 0}},
		{"missing rate", map[string]any{"currency": "EUR"}},
		{"bad date", map[string]any{"currency": "EUR", "rate_to_usd": 1.1, "effective_date": "yesterday"}},
	}

	router := fxRouter(eurRates())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPut, "/fx/rates", tt.body).Code)
		})
	}
}

func TestFXHandler_History(t *testing.T) {
	t.Parallel()

	store := eurRates()
	router := fxRouter(store)

	w := doJSON(t, router, http.MethodGet, "/fx/rates/eur?days=36500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/fx/rates/eur?days=3650", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "EUR", body["currency"])
	assert.Len(t, body["rates"], 2)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/fx/rates/euro", nil).Code)
}
