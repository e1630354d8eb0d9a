package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/soarecon/internal/config"
)

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)

// NewRedisClient returns nil when REDIS_ADDR is unset. Consumers fall back to
// process-local behaviour in that case.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	lockCfg := cfg.Lock
	if lockCfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     lockCfg.RedisAddr,
		Password: lockCfg.RedisPassword,
		DB:       lockCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// New picks the Redis locker when a client is configured, else the local one.
func New(client *redis.Client, cfg config.Config, log *zap.Logger) Locker {
	if client == nil {
		log.Info("line locks are process-local; set REDIS_ADDR when running more than one replica")
		return NewLocalLocker(cfg.Lock.TTL, cfg.Lock.Wait)
	}
	return NewRedisLocker(client, cfg.Lock.TTL, cfg.Lock.Wait, log)
}
