package fxfeed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/fxfeed"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRates struct {
	mu    sync.Mutex
	rates map[string]*domain.FxRate
	err   error
}

func (m *memoryRates) Upsert(_ context.Context, rate *domain.FxRate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.rates == nil {
		m.rates = make(map[string]*domain.FxRate)
	}
	_, existed := m.rates[rate.Currency]
	m.rates[rate.Currency] = rate
	return !existed, nil
}

type trackedCurrencies []string

func (t trackedCurrencies) TrackedCurrencies(context.Context) ([]string, error) {
	return t, nil
}

type syncRecorder struct {
	saved []int
	errs  []error
}

func (r *syncRecorder) RecordFXSync(saved int, err error) {
	r.saved = append(r.saved, saved)
	r.errs = append(r.errs, err)
}

const feedBody = `{"base":"USD","date":"2024-06-01","time_last_updated":1717200000,
"rates":{"USD":1,"EUR":0.92,"GBP":0.8,"JPY":156.5}}`

func feedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRefresher_Sync(t *testing.T) {
	t.Parallel()

	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	})

	store := &memoryRates{}
	recorder := &syncRecorder{}
	r := fxfeed.NewRefresher(store, trackedCurrencies{"gbp", "CHF", "USD"}, nil, recorder, logger.NewNop(),
		fxfeed.Config{URL: srv.URL, Currencies: []string{"EUR", "GBP"}})

	result, err := r.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"EUR", "GBP"}, result.Saved)
	assert.Equal(t, []string{"CHF"}, result.Missing)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), result.EffectiveDate)

	eur := store.rates["EUR"]
	require.NotNil(t, eur)
	assert.Equal(t, "1.08695652", eur.RateToUSD.String())
	assert.Equal(t, fxfeed.SourceName, eur.Source)
	assert.Equal(t, "1.25", store.rates["GBP"].RateToUSD.String())

	assert.Equal(t, []int{2}, recorder.saved)
	assert.NoError(t, recorder.errs[0])
}

func TestRefresher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	})

	r := fxfeed.NewRefresher(&memoryRates{}, nil, nil, nil, logger.NewNop(),
		fxfeed.Config{URL: srv.URL, Currencies: []string{"EUR"}, Retries: 3, RetryDelay: time.Millisecond})

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR"}, result.Saved)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRefresher_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	recorder := &syncRecorder{}
	r := fxfeed.NewRefresher(&memoryRates{}, nil, nil, recorder, logger.NewNop(),
		fxfeed.Config{URL: srv.URL, Currencies: []string{"EUR"}, Retries: 3, RetryDelay: time.Millisecond})

	_, err := r.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, recorder.errs, 1)
	assert.Error(t, recorder.errs[0])
}

func TestRefresher_RejectsNonUSDBase(t *testing.T) {
	t.Parallel()

	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","date":"2024-06-01","rates":{"USD":1.08}}`))
	})

	r := fxfeed.NewRefresher(&memoryRates{}, nil, nil, nil, logger.NewNop(),
		fxfeed.Config{URL: srv.URL, Currencies: []string{"GBP"}})

	_, err := r.Sync(context.Background())
	require.Error(t, err)
}

func TestRefresher_NothingToSync(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(feedBody))
	})

	r := fxfeed.NewRefresher(&memoryRates{}, trackedCurrencies{"USD"}, nil, nil, logger.NewNop(),
		fxfeed.Config{URL: srv.URL})

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Saved)
	assert.Zero(t, calls.Load())
}

func TestRefresher_StoreFailure(t *testing.T) {
	t.Parallel()

	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	})

	r := fxfeed.NewRefresher(&memoryRates{err: errors.New("db down")}, nil, nil, nil, logger.NewNop(),
		fxfeed.Config{URL: srv.URL, Currencies: []string{"EUR"}})

	_, err := r.Sync(context.Background())
	require.Error(t, err)
}
