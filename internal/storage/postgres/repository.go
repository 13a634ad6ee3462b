package postgres

import (
	"context"

	"github.com/DALE-GH/location-tracker/internal/domain"
)

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

var _ LocationRepository = (*LocationRepo)(nil)
