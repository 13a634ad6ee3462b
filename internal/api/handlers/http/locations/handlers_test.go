package locations_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"

	"github.com/DALE-GH/location-tracker/internal/api/handlers/http/locations"
	mock_locations "github.com/DALE-GH/location-tracker/internal/api/handlers/http/locations/mocks"
	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/e"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{Level: slog.LevelError}))
}

func addChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
	return out
}

func newHandler(t *testing.T) (*locations.Handler, *mock_locations.MockLocations, *mock_locations.MockStatsGetter) {
	t.Helper()
	ctrl := gomock.NewController(t)
	locs := mock_locations.NewMockLocations(ctrl)
	stats := mock_locations.NewMockStatsGetter(ctrl)
	return locations.NewHandler(newTestLogger(), locs, stats), locs, stats
}

func kudzu() domain.Location {
	return domain.Location{
		ID:        1700000000000,
		Type:      domain.LocationPlant,
		Note:      "kudzu",
		Lat:       38.84,
		Lng:       -77.18,
		Timestamp: time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Count   int    `json:"count"`
}

// --- Upsert ---

func TestLocationUpsert_Created(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	body := `{"id":1700000000000,"type":"plant","note":"kudzu","latitude":38.84,"longitude":-77.18,"timestamp":"2023-11-14T22:13:20Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/locations", strings.NewReader(body))
	rr := httptest.NewRecorder()

	want := kudzu()
	locs.EXPECT().
		Upsert(gomock.Any(), want).
		DoAndReturn(func(_ context.Context, loc domain.Location) (*domain.Location, error) {
			return &loc, nil
		}).
		Times(1)

	h.LocationUpsert(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected %d got %d, body=%s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	got := decodeJSON[struct {
		Success  bool            `json:"success"`
		Location domain.Location `json:"location"`
	}](t, rr)
	if !got.Success || got.Location.ID != want.ID || got.Location.Note != "kudzu" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestLocationUpsert_InvalidJSON_400(t *testing.T) {
	t.Parallel()
	h, _, _ := newHandler(t)

	for _, body := range []string{"{bad json", `{"id":1}{"id":2}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/locations", strings.NewReader(body))
		rr := httptest.NewRecorder()

		h.LocationUpsert(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400 got %d", body, rr.Code)
		}
		if env := decodeJSON[envelope](t, rr); env.Success || env.Error == "" {
			t.Fatalf("expected error envelope, got %+v", env)
		}
	}
}

func TestLocationUpsert_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid", e.Invalid("type", "failed location_type check"), http.StatusBadRequest},
		{"conflict", e.ErrConflict, http.StatusConflict},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h, locs, _ := newHandler(t)

			locs.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil, tc.err).Times(1)

			req := httptest.NewRequest(http.MethodPost, "/api/locations", strings.NewReader(`{"id":1,"type":"tree"}`))
			rr := httptest.NewRecorder()
			h.LocationUpsert(rr, req)

			if rr.Code != tc.code {
				t.Fatalf("expected %d got %d, body=%s", tc.code, rr.Code, rr.Body.String())
			}
			if env := decodeJSON[envelope](t, rr); env.Success {
				t.Fatalf("success must be false on error")
			}
		})
	}
}

// --- List ---

func TestLocationList_Defaults(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	loc := kudzu()
	locs.EXPECT().
		List(gomock.Any(), domain.ListFilter{Limit: domain.DefaultListLimit}).
		Return([]*domain.Location{&loc}, nil).
		Times(1)

	rr := httptest.NewRecorder()
	h.LocationList(rr, httptest.NewRequest(http.MethodGet, "/api/locations", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if env := decodeJSON[envelope](t, rr); !env.Success || env.Count != 1 {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestLocationList_FilterAndCap(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	locs.EXPECT().
		List(gomock.Any(), domain.ListFilter{Type: domain.LocationLitter, Limit: domain.MaxListLimit, Offset: 20}).
		Return([]*domain.Location{}, nil).
		Times(1)

	rr := httptest.NewRecorder()
	h.LocationList(rr, httptest.NewRequest(http.MethodGet, "/api/locations?type=litter&limit=5000&offset=20", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestLocationList_BadType_400(t *testing.T) {
	t.Parallel()
	h, _, _ := newHandler(t)

	rr := httptest.NewRecorder()
	h.LocationList(rr, httptest.NewRequest(http.MethodGet, "/api/locations?type=tree", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

// --- Get / Update / Delete ---

func TestLocationGet(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	loc := kudzu()
	locs.EXPECT().Get(gomock.Any(), loc.ID).Return(&loc, nil).Times(1)
	locs.EXPECT().Get(gomock.Any(), int64(5)).Return(nil, e.ErrNotFound).Times(1)

	rr := httptest.NewRecorder()
	h.LocationGet(rr, addChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", "1700000000000"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.LocationGet(rr, addChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", "5"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.LocationGet(rr, addChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", "abc"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestLocationUpdate(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	addr := "Falls Church, VA"
	loc := kudzu()
	loc.Address = &addr
	locs.EXPECT().
		Update(gomock.Any(), loc.ID, domain.LocationPatch{Address: &addr}).
		Return(&loc, nil).
		Times(1)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"address":"Falls Church, VA"}`))
	rr := httptest.NewRecorder()
	h.LocationUpdate(rr, addChiURLParams(req, "id", "1700000000000"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestLocationDelete(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	locs.EXPECT().Delete(gomock.Any(), int64(42)).Return(nil).Times(1)

	rr := httptest.NewRecorder()
	h.LocationDelete(rr, addChiURLParams(httptest.NewRequest(http.MethodDelete, "/", nil), "id", "42"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	got := decodeJSON[map[string]any](t, rr)
	if got["success"] != true || got["id"] != float64(42) {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestLocationDeleteAll(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	locs.EXPECT().DeleteAll(gomock.Any()).Return(int64(7), nil).Times(1)

	rr := httptest.NewRecorder()
	h.LocationDeleteAll(rr, httptest.NewRequest(http.MethodDelete, "/api/locations", nil))

	if env := decodeJSON[envelope](t, rr); rr.Code != http.StatusOK || env.Count != 7 {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
}

// --- Nearby ---

func TestLocationNearby_DefaultRadius(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	locs.EXPECT().
		Nearby(gomock.Any(), domain.NearbyQuery{Lat: 38.84, Lng: -77.18, RadiusM: 1000}).
		Return([]*domain.NearbyLocation{{Location: kudzu(), DistanceM: 0}}, nil).
		Times(1)

	rr := httptest.NewRecorder()
	req := addChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "lat", "38.84", "lng", "-77.18")
	h.LocationNearby(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d, body=%s", rr.Code, rr.Body.String())
	}
	got := decodeJSON[struct {
		Count  int                `json:"count"`
		Radius float64            `json:"radius"`
		Center map[string]float64 `json:"center"`
	}](t, rr)
	if got.Count != 1 || got.Radius != 1000 || got.Center["latitude"] != 38.84 {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestLocationNearby_BadInput(t *testing.T) {
	t.Parallel()
	h, _, _ := newHandler(t)

	cases := []struct{ lat, lng, query string }{
		{"x", "1", ""},
		{"1", "1", "?radius=far"},
		{"1", "1", "?type=tree"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		req := addChiURLParams(httptest.NewRequest(http.MethodGet, "/"+tc.query, nil), "lat", tc.lat, "lng", tc.lng)
		h.LocationNearby(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%+v: expected 400 got %d", tc, rr.Code)
		}
	}
}

// --- Stats / Export / Import ---

func TestLocationStats(t *testing.T) {
	t.Parallel()
	h, _, stats := newHandler(t)

	stats.EXPECT().GetStats(gomock.Any()).Return(&domain.LocationStats{Total: 3, Plants: 2, Litter: 1}, nil).Times(1)

	rr := httptest.NewRecorder()
	h.LocationStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	got := decodeJSON[struct {
		Stats domain.LocationStats `json:"stats"`
	}](t, rr)
	if rr.Code != http.StatusOK || got.Stats.Total != 3 || got.Stats.Plants != 2 {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLocationExport_Attachment(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	loc := kudzu()
	locs.EXPECT().Export(gomock.Any()).Return([]*domain.Location{&loc}, nil).Times(1)

	rr := httptest.NewRecorder()
	h.LocationExport(rr, httptest.NewRequest(http.MethodGet, "/api/export", nil))

	if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("missing attachment header: %q", rr.Header().Get("Content-Disposition"))
	}
	got := decodeJSON[[]domain.Location](t, rr)
	if len(got) != 1 || got[0].ID != loc.ID {
		t.Fatalf("unexpected export: %s", rr.Body.String())
	}
}

func TestLocationImport(t *testing.T) {
	t.Parallel()
	h, locs, _ := newHandler(t)

	locs.EXPECT().
		Import(gomock.Any(), gomock.Len(2)).
		Return(domain.ImportResult{Imported: 1, Failed: 1, Total: 2}).
		Times(1)

	body := `{"locations":[{"id":1,"type":"plant","note":"a","latitude":1,"longitude":1},{"id":2,"type":"tree"}]}`
	rr := httptest.NewRecorder()
	h.LocationImport(rr, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body)))

	got := decodeJSON[map[string]any](t, rr)
	if rr.Code != http.StatusOK || got["imported"] != float64(1) || got["failed"] != float64(1) || got["total"] != float64(2) {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLocationImport_MissingArray_400(t *testing.T) {
	t.Parallel()
	h, _, _ := newHandler(t)

	rr := httptest.NewRecorder()
	h.LocationImport(rr, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(`{}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}
