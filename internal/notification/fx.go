package notification

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/soarecon/internal/clock"
	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/observability/metrics"
)

var Module = fx.Module("notification",
	fx.Provide(NewSink),
	fx.Provide(provideDispatcher),
	fx.Provide(func(d *Dispatcher) Notifier { return d }),
)

// NewSink publishes to Redis when a client is configured and logs otherwise.
func NewSink(client *redis.Client, log *zap.Logger) Sink {
	if client == nil {
		return NewLogSink(log)
	}
	return NewRedisSink(client, RedisChannel)
}

func provideDispatcher(lc fx.Lifecycle, cfg config.Config, sink Sink, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	d := NewDispatcher(sink, cfg.Notification.BufferSize, clk, log, m)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: d.Stop,
	})
	return d
}
