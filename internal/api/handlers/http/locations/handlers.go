package locations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/e"

	"github.com/go-chi/chi/v5"
)

const defaultRadiusM = 1000

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Locations interface {
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

type StatsGetter interface {
	GetStats(ctx context.Context) (*domain.LocationStats, error)
}

type Handler struct {
	logger    *slog.Logger
	Locations Locations
	Stats     StatsGetter
}

func NewHandler(logger *slog.Logger, locations Locations, stats StatsGetter) *Handler {
	return &Handler{
		logger:    logger,
		Locations: locations,
		Stats:     stats,
	}
}

func (h *Handler) LocationList(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("LocationList", slog.String("query", r.URL.RawQuery), slog.String("remote", r.RemoteAddr))

	q := r.URL.Query()
	typ, err := domain.ParseLocationType(q.Get("type"))
	if err != nil {
		h.handleError(w, r, e.Invalid("type", "must be plant or litter"))
		return
	}

	f := domain.ListFilter{
		Type:   typ,
		Limit:  parseInt(q.Get("limit"), domain.DefaultListLimit),
		Offset: parseInt(q.Get("offset"), 0),
	}
	if f.Limit > domain.MaxListLimit {
		l.Warn("limit capped", slog.Int("requested", f.Limit), slog.Int("limit", domain.MaxListLimit))
	}
	f = f.Normalize()

	locs, err := h.Locations.List(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("locations listed", slog.Int("count", len(locs)))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(locs),
		"locations": locs,
	})
}

func (h *Handler) LocationGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	loc, err := h.Locations.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "location": loc})
}

func (h *Handler) LocationUpsert(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("LocationUpsert", slog.String("remote", r.RemoteAddr))

	var req domain.Location
	if err := decodeJSON(r, &req); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	loc, err := h.Locations.Upsert(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("location saved", slog.Int64("id", loc.ID), slog.String("type", string(loc.Type)))
	h.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "location": loc})
}

func (h *Handler) LocationUpdate(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var patch domain.LocationPatch
	if err := decodeJSON(r, &patch); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	loc, err := h.Locations.Update(r.Context(), id, patch)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "location": loc})
}

func (h *Handler) LocationDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.Locations.Delete(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.log(r).Info("location deleted", slog.Int64("id", id))
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h *Handler) LocationDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.Locations.DeleteAll(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": n})
}

func (h *Handler) LocationNearby(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("LocationNearby", slog.String("query", r.URL.RawQuery))

	lat, err1 := strconv.ParseFloat(chi.URLParam(r, "lat"), 64)
	lng, err2 := strconv.ParseFloat(chi.URLParam(r, "lng"), 64)
	if err1 != nil || err2 != nil {
		l.Warn("invalid coordinates", slog.String("lat", chi.URLParam(r, "lat")), slog.String("lng", chi.URLParam(r, "lng")))
		h.writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}

	q := r.URL.Query()
	radius := float64(defaultRadiusM)
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = v
	}

	typ, err := domain.ParseLocationType(q.Get("type"))
	if err != nil {
		h.handleError(w, r, e.Invalid("type", "must be plant or litter"))
		return
	}

	found, err := h.Locations.Nearby(r.Context(), domain.NearbyQuery{Lat: lat, Lng: lng, RadiusM: radius, Type: typ})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("nearby search", slog.Int("count", len(found)), slog.Float64("radius", radius))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(found),
		"center":    map[string]float64{"latitude": lat, "longitude": lng},
		"radius":    radius,
		"locations": found,
	})
}

func (h *Handler) LocationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.GetStats(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (h *Handler) LocationExport(w http.ResponseWriter, r *http.Request) {
	locs, err := h.Locations.Export(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	name := fmt.Sprintf("locations-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	h.log(r).Info("export", slog.Int("count", len(locs)))
	h.writeJSON(w, http.StatusOK, locs)
}

type importRequest struct {
	Locations []domain.Location `json:"locations"`
}

func (h *Handler) LocationImport(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Locations == nil {
		h.writeError(w, http.StatusBadRequest, "locations array required")
		return
	}

	res := h.Locations.Import(r.Context(), req.Locations)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"imported": res.Imported,
		"failed":   res.Failed,
		"total":    res.Total,
	})
}
