package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/redis/go-redis/v9"
)

// asyncPublishTimeout bounds each asynchronous publish.
const asyncPublishTimeout = 5 * time.Second

// Publisher appends events to the Redis stream. A nil *Publisher is a
// valid no-op publisher.
type Publisher struct {
	client redis.Cmdable
	log    logger.Logger
}

// NewPublisher returns nil when client is nil.
func NewPublisher(client redis.Cmdable, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{client: client, log: log}
}

// Publish appends event to the stream and returns the stream id.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	if p == nil || p.client == nil {
		return "", nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"type":  string(event.EventType),
			"event": string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to stream: %w", err)
	}

	if p.log != nil {
		p.log.Debug("Published event",
			logger.String("event_type", string(event.EventType)),
			logger.String("event_id", event.EventID.String()),
			logger.String("stream_id", id),
		)
	}
	return id, nil
}

// PublishAsync publishes in the background. Errors are logged.
func (p *Publisher) PublishAsync(event Event) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if _, err := p.Publish(ctx, event); err != nil && p.log != nil {
			p.log.Error("Async publish failed",
				logger.String("event_type", string(event.EventType)),
				logger.Error(err),
			)
		}
	}()
}

// PublishIngestionCompleted announces a finished ingestion without blocking.
func (p *Publisher) PublishIngestionCompleted(_ context.Context, report *domain.IngestReport) {
	if p == nil || report == nil {
		return
	}
	p.PublishAsync(Event{
		EventType: IngestionCompleted,
		Payload: IngestionCompletedPayload{
			IngestionID:       report.IngestionID,
			MarketplaceID:     report.MarketplaceID,
			TotalRows:         report.TotalRows,
			SuccessfulImports: report.SuccessfulImports,
			FailedImports:     report.FailedImports,
			NewDomainsAdded:   report.NewDomainsAdded,
			NewOffersAdded:    report.NewOffersAdded,
			UpdatedOffers:     report.UpdatedOffers,
			TimedOut:          report.TimedOut,
		},
	})
}

// PublishRatesSynced announces stored feed rates without blocking.
func (p *Publisher) PublishRatesSynced(_ context.Context, effective time.Time, currencies []string, source string) {
	if p == nil || len(currencies) == 0 {
		return
	}
	p.PublishAsync(Event{
		EventType: RatesSynced,
		Payload: RatesSyncedPayload{
			EffectiveDate: effective.UTC().Format(time.DateOnly),
			Currencies:    currencies,
			Source:        source,
		},
	})
}
