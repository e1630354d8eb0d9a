package notification

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannel is where case events are published for downstream delivery.
const RedisChannel = "soarecon:case-events"

// LogSink records events in the service log. It is the fallback when no
// broker is configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("notification.log")}
}

func (s *LogSink) Deliver(_ context.Context, event Event) error {
	s.log.Info("case event",
		zap.String("case_id", event.CaseID.String()),
		zap.String("event_type", event.Type),
		zap.Any("payload", event.Payload),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// RedisSink publishes events as JSON on RedisChannel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = RedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, body).Err()
}
