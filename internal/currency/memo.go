package currency

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
)

const memoDateLayout = "2006-01-02"

// Memo caches resolved rates per (currency, as-of date). Create one per
// lookup or ingestion; it must not be shared across requests.
type Memo struct {
	src RateSource

	mu      sync.Mutex
	entries map[string]memoEntry
}

type memoEntry struct {
	rate *domain.FxRate
	err  error
}

func NewMemo(src RateSource) *Memo {
	return &Memo{src: src, entries: make(map[string]memoEntry)}
}

// LatestRate implements RateSource.
func (m *Memo) LatestRate(ctx context.Context, currency string, asOf *time.Time) (*domain.FxRate, error) {
	key := currency + "@latest"
	if asOf != nil {
		key = currency + "@" + asOf.UTC().Format(memoDateLayout)
	}

	m.mu.Lock()
	entry, ok := m.entries[key]
	m.mu.Unlock()
	if ok {
		return entry.rate, entry.err
	}

	rate, err := m.src.LatestRate(ctx, currency, asOf)
	if err != nil && ctx.Err() != nil {
		// do not cache cancellation
		return nil, err
	}

	m.mu.Lock()
	m.entries[key] = memoEntry{rate: rate, err: err}
	m.mu.Unlock()
	return rate, err
}
