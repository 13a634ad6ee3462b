package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
)

type StatsRepository interface {
	Stats(ctx context.Context) (*domain.LocationStats, error)
}

type statsService struct {
	repo   StatsRepository
	cache  StatsCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewStatsService(repo StatsRepository, cache StatsCache, ttl time.Duration, logger *slog.Logger) StatsService {
	if cache == nil {
		cache = NopStatsCache{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &statsService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func (s *statsService) GetStats(ctx context.Context) (*domain.LocationStats, error) {
	cached, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("stats cache read failed", slog.Any("error", err))
	}
	if cached != nil {
		return cached, nil
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, stats, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", slog.Any("error", err))
	}
	return stats, nil
}
