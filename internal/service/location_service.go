package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/e"

	"github.com/google/uuid"
)

type locationService struct {
	repo   LocationRepository
	cache  StatsCache
	events EventQueue
	logger *slog.Logger
}

func NewLocationService(repo LocationRepository, cache StatsCache, events EventQueue, logger *slog.Logger) LocationService {
	if cache == nil {
		cache = NopStatsCache{}
	}
	if events == nil {
		events = NopEventQueue{}
	}
	return &locationService{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: logger,
	}
}

func (s *locationService) Upsert(ctx context.Context, loc domain.Location) (*domain.Location, error) {
	const op = "service.Location.Upsert"

	loc.Synced = false
	if err := loc.Validate(); err != nil {
		s.logger.Warn("invalid location", slog.String("op", op), slog.Int64("id", loc.ID), slog.Any("error", err))
		return nil, err
	}

	if err := s.repo.Upsert(ctx, &loc); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, domain.EventUpserted, loc.ID, &loc)
	s.logger.Info("location upserted", slog.Int64("id", loc.ID), slog.String("type", string(loc.Type)))
	return &loc, nil
}

func (s *locationService) Get(ctx context.Context, id int64) (*domain.Location, error) {
	return s.repo.Get(ctx, id)
}

func (s *locationService) List(ctx context.Context, f domain.ListFilter) ([]*domain.Location, error) {
	const op = "service.Location.List"

	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%s: %w", op, e.Invalid("type", "must be plant or litter"))
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%s: %w", op, e.Invalid("limit/offset", "must not be negative"))
	}

	return s.repo.List(ctx, f)
}

func (s *locationService) Update(ctx context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error) {
	const op = "service.Location.Update"

	if patch.Empty() {
		return nil, fmt.Errorf("%s: %w", op, e.Invalid("body", "has no updatable fields"))
	}
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loc, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, domain.EventUpserted, id, loc)
	return loc, nil
}

func (s *locationService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.afterWrite(ctx, domain.EventDeleted, id, nil)
	return nil
}

func (s *locationService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx)
	s.logger.Warn("all locations deleted", slog.Int64("count", n))
	return n, nil
}

func (s *locationService) Nearby(ctx context.Context, q domain.NearbyQuery) ([]*domain.NearbyLocation, error) {
	const op = "service.Location.Nearby"

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.repo.Nearby(ctx, q)
}

func (s *locationService) Export(ctx context.Context) ([]*domain.Location, error) {
	return s.repo.All(ctx)
}

// Import inserts every valid record whose id is not stored yet. Ids that already
// exist count as imported; only invalid rows and storage errors count as failed.
func (s *locationService) Import(ctx context.Context, locations []domain.Location) domain.ImportResult {
	const op = "service.Location.Import"

	res := domain.ImportResult{Total: len(locations)}
	inserted := 0

	for i := range locations {
		loc := locations[i]
		loc.Synced = false

		if err := loc.Validate(); err != nil {
			s.logger.Warn("import row rejected", slog.String("op", op), slog.Int("index", i), slog.Any("error", err))
			res.Failed++
			continue
		}

		ok, err := s.repo.InsertIfAbsent(ctx, &loc)
		if err != nil {
			s.logger.Error("import row failed", slog.String("op", op), slog.Int64("id", loc.ID), slog.Any("error", err))
			res.Failed++
			continue
		}
		if ok {
			inserted++
		}
		res.Imported++
	}

	if inserted > 0 {
		s.invalidate(ctx)
	}

	s.logger.Info("import finished",
		slog.Int("total", res.Total),
		slog.Int("imported", res.Imported),
		slog.Int("inserted", inserted),
		slog.Int("failed", res.Failed),
	)
	return res
}

func (s *locationService) afterWrite(ctx context.Context, kind domain.EventKind, id int64, loc *domain.Location) {
	s.invalidate(ctx)

	ev := domain.LocationEvent{
		ID:         uuid.New(),
		Kind:       kind,
		LocationID: id,
		Location:   loc,
		At:         time.Now().UTC(),
	}
	if err := s.events.Enqueue(ctx, ev); err != nil {
		s.logger.Error("enqueue event failed", slog.Int64("id", id), slog.Any("error", err))
	}
}

func (s *locationService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidate failed", slog.Any("error", err))
	}
}
