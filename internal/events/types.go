// Package events publishes backlink lifecycle events to a Redis stream.
package events

import (
	"time"

	"github.com/google/uuid"
)

// StreamName is the Redis stream all events are appended to.
const StreamName = "backlinks:events"

// streamMaxLen caps the stream; trimming is approximate.
const streamMaxLen = 10000

type EventType string

const (
	// IngestionCompleted is emitted after every finished upload.
	IngestionCompleted EventType = "ingestion.completed"
	// RatesSynced is emitted after an FX feed refresh stored rates.
	RatesSynced EventType = "fx.rates_synced"
)

// Event is the envelope of every stream entry.
type Event struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type IngestionCompletedPayload struct {
	IngestionID       uuid.UUID `json:"ingestion_id"`
	MarketplaceID     int64     `json:"marketplace_id"`
	TotalRows         int       `json:"total_rows"`
	SuccessfulImports int       `json:"successful_imports"`
	FailedImports     int       `json:"failed_imports"`
	NewDomainsAdded   int       `json:"new_domains_added"`
	NewOffersAdded    int       `json:"new_offers_added"`
	UpdatedOffers     int       `json:"updated_offers"`
	TimedOut          bool      `json:"timed_out"`
}

type RatesSyncedPayload struct {
	EffectiveDate string   `json:"effective_date"`
	Currencies    []string `json:"currencies"`
	Source        string   `json:"source"`
}
