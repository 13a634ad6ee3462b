package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/DALE-GH/location-tracker/internal/api"
	"github.com/DALE-GH/location-tracker/internal/config"
	"github.com/DALE-GH/location-tracker/internal/service"
	"github.com/DALE-GH/location-tracker/internal/storage/postgres"
	"github.com/DALE-GH/location-tracker/internal/storage/redis"
	"github.com/DALE-GH/location-tracker/pkg/logger"
)

type Components struct {
	logger        *slog.Logger
	HttpServer    *api.Server
	Postgres      *postgres.Postgres
	Redis         *redis.Redis
	WebhookSender *service.WebhookSender
}

func InitComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	logger.Info("Initializing Postgres")

	storage, err := postgres.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to init postgres", slog.Any("error", err))
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	var (
		redisClient *redis.Redis
		cache       service.StatsCache = service.NopStatsCache{}
		events      service.EventQueue = service.NopEventQueue{}
		sender      *service.WebhookSender
	)

	if cfg.Redis.Disabled {
		logger.Warn("Redis disabled; stats are uncached and webhooks are off")
	} else {
		logger.Info("Initializing Redis")
		redisClient, err = redis.New(ctx, cfg.Redis, logger)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		cache = redis.NewStatsCache(redisClient)

		if !cfg.Webhook.Disabled {
			queue := redis.NewEventQueue(redisClient.Client, redis.EventsKey)
			events = queue
			sender = service.NewWebhookSender(logger, cfg.Webhook, queue)
		}
	}

	locationSvc := service.NewLocationService(storage.Locations, cache, events, logger)
	statsSvc := service.NewStatsService(storage.Locations, cache, cfg.Redis.StatsTTL, logger)

	srv := service.NewService(locationSvc, statsSvc)

	httpServer := api.NewServer(ctx, cfg, logger, srv, storage)
	logger.Info("Initialized server")

	return &Components{
		logger:        logger,
		HttpServer:    httpServer,
		Postgres:      storage,
		Redis:         redisClient,
		WebhookSender: sender,
	}, nil
}

func SetupLogger(env string) *slog.Logger {
	return logger.New(env, os.Stdout)
}

func (c *Components) ShutdownAll() {
	start := time.Now()
	c.logger.Info("Shutting down components")

	c.Postgres.Close()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Error("Redis close failed", slog.String("err", err.Error()))
		}
	}

	c.logger.Info("All components stopped",
		slog.Duration("latency", time.Since(start)))
}
