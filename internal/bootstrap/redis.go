package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/events"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

const redisConnectTimeout = 5 * time.Second

// newRedisClient connects and pings Redis.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// SetupEventPublisher returns a publisher when Redis is enabled and
// reachable. Events are optional, so a failed connection only disables them.
func SetupEventPublisher(cfg *config.Config, log logger.Logger) (*events.Publisher, *redis.Client) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	client, err := newRedisClient(cfg.Redis)
	if err != nil {
		log.Warn("Redis not available, events disabled", logger.Error(err))
		return nil, nil
	}

	log.Info("Event publisher initialized", logger.String("redis_address", cfg.Redis.Address))
	return events.NewPublisher(client, log), client
}
