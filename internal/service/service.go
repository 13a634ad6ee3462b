package service

import (
	"context"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go
type LocationRepository interface {
	Upsert(ctx context.Context, loc *domain.Location) error
	InsertIfAbsent(ctx context.Context, loc *domain.Location) (bool, error)
	Get(ctx context.Context, id int64) (*domain.Location, error)
	List(ctx context.Context, f domain.ListFilter) ([]*domain.Location, error)
	All(ctx context.Context) ([]*domain.Location, error)
	Update(ctx context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	Nearby(ctx context.Context, q domain.NearbyQuery) ([]*domain.NearbyLocation, error)
	Stats(ctx context.Context) (*domain.LocationStats, error)
}

type StatsCache interface {
	Get(ctx context.Context) (*domain.LocationStats, error)
	Set(ctx context.Context, stats *domain.LocationStats, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type EventQueue interface {
	Enqueue(ctx context.Context, event domain.LocationEvent) error
}

type LocationService interface {
	Upsert(ctx context.Context, loc domain.Location) (*domain.Location, error)
	Get(ctx context.Context, id int64) (*domain.Location, error)
	List(ctx context.Context, f domain.ListFilter) ([]*domain.Location, error)
	Update(ctx context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	Nearby(ctx context.Context, q domain.NearbyQuery) ([]*domain.NearbyLocation, error)
	Export(ctx context.Context) ([]*domain.Location, error)
	Import(ctx context.Context, locations []domain.Location) domain.ImportResult
}

type StatsService interface {
	GetStats(ctx context.Context) (*domain.LocationStats, error)
}

type Service struct {
	LocationService LocationService
	StatsService    StatsService
}

func NewService(locationService LocationService, statsService StatsService) *Service {
	return &Service{
		LocationService: locationService,
		StatsService:    statsService,
	}
}

// NopStatsCache always misses. Used when Redis is disabled.
type NopStatsCache struct{}

func (NopStatsCache) Get(context.Context) (*domain.LocationStats, error) { return nil, nil }
func (NopStatsCache) Set(context.Context, *domain.LocationStats, time.Duration) error {
	return nil
}
func (NopStatsCache) Invalidate(context.Context) error { return nil }

// NopEventQueue drops every event.
type NopEventQueue struct{}

func (NopEventQueue) Enqueue(context.Context, domain.LocationEvent) error { return nil }
