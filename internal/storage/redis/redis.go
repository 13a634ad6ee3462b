package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DALE-GH/location-tracker/internal/config"
	"github.com/DALE-GH/location-tracker/pkg/e"

	"github.com/redis/go-redis/v9"
)

const defaultDialTimeout = 5 * time.Second

// Redis backs the stats cache and the webhook event queue.
type Redis struct {
	Client *redis.Client
	addr   string
}

// New connects and pings once. An unreachable server is ErrUnavailable so the
// caller can tell it apart from bad settings.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Redis, error) {
	const op = "redis.New"

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}

	r := &Redis{
		Client: redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: dial,
			PoolSize:    cfg.PoolSize,
		}),
		addr: cfg.Addr,
	}

	if err := r.Ping(ctx, dial); err != nil {
		_ = r.Client.Close()
		logger.Error("redis unreachable; set REDIS_DISABLED=true to run without cache and webhooks",
			slog.String("addr", cfg.Addr),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%s: %w: %v", op, e.ErrUnavailable, err)
	}

	logger.Info("redis ready",
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Int("pool_size", r.Client.Options().PoolSize),
		slog.Duration("stats_ttl", cfg.StatsTTL),
	)
	return r, nil
}

func (r *Redis) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping %s: %w", r.addr, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
