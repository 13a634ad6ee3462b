package app

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/internal/geo"
	"github.com/DALE-GH/location-tracker/internal/workers"
	"github.com/DALE-GH/location-tracker/pkg/e"
)

// AddLocation records an observation taken now. The id is the current unix
// time in milliseconds, bumped until it is free. The record is saved locally
// first; the push and the address lookup are best effort.
func (a *App) AddLocation(ctx context.Context, t domain.LocationType, note string, lat, lng float64) (domain.Location, error) {
	const op = "app.AddLocation"

	now := time.Now()

	a.idMu.Lock()
	id := now.UnixMilli()
	for a.Store.Has(id) {
		id++
	}
	rec := domain.Location{
		ID:        id,
		Type:      t,
		Note:      note,
		Lat:       lat,
		Lng:       lng,
		Timestamp: now.UTC(),
	}
	err := a.Store.Add(rec)
	a.idMu.Unlock()
	if err != nil {
		return domain.Location{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.Store.Persist(ctx); err != nil {
		return rec, fmt.Errorf("%s: %w", op, err)
	}

	a.Engine.PushOne(ctx, rec)

	if !a.Pool.Submit(workers.GeocodeJob{ID: rec.ID, Lat: rec.Lat, Lng: rec.Lng}) {
		a.logger.Debug("geocode not queued", slog.Int64("id", rec.ID))
	}

	a.logger.Info("location added", slog.Int64("id", rec.ID), slog.String("type", string(rec.Type)))

	if cur, err := a.Store.Get(rec.ID); err == nil {
		rec = cur
	}
	return rec, nil
}

// DeleteLocation removes a record locally and, when the server has seen it,
// asks the server to delete it too. It reports whether a remote delete succeeded.
func (a *App) DeleteLocation(ctx context.Context, id int64) (bool, error) {
	const op = "app.DeleteLocation"

	rec, err := a.Store.Remove(id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.Store.Persist(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !rec.Synced {
		return false, nil
	}
	return a.Engine.DeleteRemote(ctx, id), nil
}

// NearbyLocal answers a proximity query from the local records only, with the
// same box prefilter and ranking as the server.
func (a *App) NearbyLocal(q domain.NearbyQuery) ([]domain.NearbyLocation, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("app.NearbyLocal: %w", err)
	}

	box := geo.BoundingBox(q.Lat, q.Lng, q.RadiusM)
	out := make([]domain.NearbyLocation, 0, 8)
	for rec := range a.Store.List(q.Type) {
		if !box.Contains(rec.Lat, rec.Lng) {
			continue
		}
		out = append(out, domain.NearbyLocation{
			Location:  rec,
			DistanceM: geo.Haversine(q.Lat, q.Lng, rec.Lat, rec.Lng),
		})
	}

	slices.SortFunc(out, func(x, y domain.NearbyLocation) int {
		if c := cmp.Compare(x.DistanceM, y.DistanceM); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	if len(out) > geo.MaxNearbyResults {
		out = out[:geo.MaxNearbyResults]
	}
	return out, nil
}

// ExportLocal writes every local record as an indented JSON array.
func (a *App) ExportLocal(w io.Writer) error {
	recs := make([]domain.Location, 0, a.Store.Len())
	for rec := range a.Store.List("") {
		recs = append(recs, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return e.Wrap("app.ExportLocal", err)
	}
	return nil
}

// ImportLocal merges a JSON array produced by ExportLocal into the store.
// Imported records replace local ones with the same id and are marked pending.
func (a *App) ImportLocal(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	const op = "app.ImportLocal"

	var in []domain.Location
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return 0, 0, fmt.Errorf("%s: %w: %v", op, e.ErrInvalidInput, err)
	}

	merged := make(map[int64]domain.Location, a.Store.Len()+len(in))
	for rec := range a.Store.List("") {
		merged[rec.ID] = rec
	}
	for _, rec := range in {
		if err := rec.Validate(); err != nil {
			a.logger.Warn("skipping invalid import record", slog.Int64("id", rec.ID), slog.Any("error", err))
			skipped++
			continue
		}
		rec.Synced = false
		merged[rec.ID] = rec
		imported++
	}

	a.Store.Replace(slices.Collect(maps.Values(merged)))

	if err := a.Store.Persist(ctx); err != nil {
		return imported, skipped, fmt.Errorf("%s: %w", op, err)
	}

	a.logger.Info("local import finished", slog.Int("imported", imported), slog.Int("skipped", skipped))
	return imported, skipped, nil
}
