package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/events"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func readStream(t *testing.T, client *redis.Client) []redis.XMessage {
	t.Helper()

	msgs, err := client.XRange(context.Background(), events.StreamName, "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestNewPublisher_NilClient(t *testing.T) {
	t.Parallel()

	assert.Nil(t, events.NewPublisher(nil, logger.NewNop()))
}

func TestPublisher_NilReceiverIsNoOp(t *testing.T) {
	t.Parallel()

	var pub *events.Publisher
	id, err := pub.Publish(context.Background(), events.Event{EventType: events.IngestionCompleted})
	require.NoError(t, err)
	assert.Empty(t, id)

	pub.PublishAsync(events.Event{})
	pub.PublishIngestionCompleted(context.Background(), &domain.IngestReport{})
	pub.PublishRatesSynced(context.Background(), time.Now(), []string{"EUR"}, "feed")
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	_, client := newRedis(t)
	pub := events.NewPublisher(client, logger.NewNop())

	id, err := pub.Publish(context.Background(), events.Event{
		EventType: events.RatesSynced,
		Payload:   events.RatesSyncedPayload{EffectiveDate: "2024-06-01", Currencies: []string{"EUR"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := readStream(t, client)
	require.Len(t, msgs, 1)
	assert.Equal(t, string(events.RatesSynced), msgs[0].Values["type"])

	var envelope events.Event
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &envelope))
	assert.NotEqual(t, uuid.Nil, envelope.EventID)
	assert.False(t, envelope.Timestamp.IsZero())
}

func TestPublisher_PublishIngestionCompleted(t *testing.T) {
	t.Parallel()

	_, client := newRedis(t)
	pub := events.NewPublisher(client, logger.NewNop())

	report := &domain.IngestReport{
		IngestionID:       uuid.New(),
		MarketplaceID:     7,
		TotalRows:         3,
		SuccessfulImports: 2,
		FailedImports:     1,
		NewOffersAdded:    2,
	}
	pub.PublishIngestionCompleted(context.Background(), report)

	require.Eventually(t, func() bool {
		return len(readStream(t, client)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := readStream(t, client)[0]
	var body struct {
		EventType string                           `json:"event_type"`
		Payload   events.IngestionCompletedPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Values["event"].(string)), &body))
	assert.Equal(t, "ingestion.completed", body.EventType)
	assert.Equal(t, report.IngestionID, body.Payload.IngestionID)
	assert.Equal(t, 2, body.Payload.SuccessfulImports)
}

func TestPublisher_PublishFailure(t *testing.T) {
	t.Parallel()

	mr, client := newRedis(t)
	pub := events.NewPublisher(client, logger.NewNop())
	mr.Close()

	_, err := pub.Publish(context.Background(), events.Event{EventType: events.IngestionCompleted})
	require.Error(t, err)
}
