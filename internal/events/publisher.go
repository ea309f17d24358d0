// Package events announces finished scrape runs on a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gratefulvortex/reviews-scraper/internal/config"
	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
)

const (
	EventRunCompleted = "review_run.completed"
	EventRunFailed    = "review_run.failed"

	DefaultStream = "stream:review_runs"
)

// RedisClient is the part of *redis.Client the publisher uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type RedisPublisher struct {
	redis  RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
	now    func() time.Time
}

type Config struct {
	Stream string
	// MaxLen caps the stream approximately. Zero leaves it unbounded.
	MaxLen int64
}

func ConfigFromRedis(c config.RedisConfig) Config {
	return Config{Stream: c.Stream, MaxLen: c.StreamMaxLen}
}

func NewRedisPublisher(client RedisClient, cfg Config, logger *slog.Logger) *RedisPublisher {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		redis:  client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

// PublishRunCompleted writes one stream entry describing result. Failed runs
// are published too, under EventRunFailed.
func (p *RedisPublisher) PublishRunCompleted(ctx context.Context, result *scraper.Result) error {
	eventType := EventRunCompleted
	if result.Error != "" {
		eventType = EventRunFailed
	}
	eventID := uuid.New().String()
	ts := p.now()

	streamData := map[string]interface{}{
		"id":             eventID,
		"type":           eventType,
		"aggregate_type": "review_run",
		"aggregate_id":   result.RunID,
		"timestamp":      ts.Format(time.RFC3339),
		"payload":        result,
		"metadata": map[string]interface{}{
			"source": "reviews-scraper",
			"site":   string(result.Site),
		},
	}
	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":         string(dataJSON),
			"type":         eventType,
			"timestamp":    strconv.FormatInt(ts.UnixNano(), 10),
			"event_id":     eventID,
			"aggregate_id": result.RunID,
			"site":         string(result.Site),
			"records":      result.Records,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Info("run event published",
		"event_id", eventID,
		"event_type", eventType,
		"run_id", result.RunID,
		"stream", p.stream,
		"stream_id", id)
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.redis.Close()
}
