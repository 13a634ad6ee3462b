package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DALE-GH/location-tracker/internal/api"
	"github.com/DALE-GH/location-tracker/internal/api/handlers/http/locations"
	"github.com/DALE-GH/location-tracker/internal/api/handlers/http/system"
	"github.com/DALE-GH/location-tracker/internal/config"
	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/internal/service"
	"github.com/DALE-GH/location-tracker/pkg/e"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// memRepo is an in-memory LocationRepository behind the real service and router.
type memRepo struct {
	mu   sync.Mutex
	rows map[int64]domain.Location
}

func newMemRepo() *memRepo { return &memRepo{rows: map[int64]domain.Location{}} }

func (m *memRepo) get(id int64) (domain.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.rows[id]
	return loc, ok
}

func (m *memRepo) Upsert(_ context.Context, loc *domain.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.rows[loc.ID]; ok && loc.Address == nil {
		loc.Address = old.Address
	}
	m.rows[loc.ID] = *loc
	return nil
}

func (m *memRepo) InsertIfAbsent(_ context.Context, loc *domain.Location) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[loc.ID]; ok {
		return false, nil
	}
	m.rows[loc.ID] = *loc
	return true, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (*domain.Location, error) {
	loc, ok := m.get(id)
	if !ok {
		return nil, e.ErrNotFound
	}
	return &loc, nil
}

func (m *memRepo) List(ctx context.Context, _ domain.ListFilter) ([]*domain.Location, error) {
	return m.All(ctx)
}

func (m *memRepo) All(context.Context) ([]*domain.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Location, 0, len(m.rows))
	for _, loc := range m.rows {
		loc := loc
		out = append(out, &loc)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.rows[id]
	if !ok {
		return nil, e.ErrNotFound
	}
	if patch.Note != nil {
		loc.Note = *patch.Note
	}
	if patch.Address != nil {
		loc.Address = patch.Address
	}
	m.rows[id] = loc
	return &loc, nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return e.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memRepo) DeleteAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.rows))
	m.rows = map[int64]domain.Location{}
	return n, nil
}

func (m *memRepo) Nearby(context.Context, domain.NearbyQuery) ([]*domain.NearbyLocation, error) {
	return nil, nil
}

func (m *memRepo) Stats(context.Context) (*domain.LocationStats, error) {
	return &domain.LocationStats{}, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testServer struct {
	*httptest.Server
	repo    *memRepo
	deletes atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := discard()
	repo := newMemRepo()
	locSvc := service.NewLocationService(repo, nil, nil, logger)
	statsSvc := service.NewStatsService(repo, nil, 0, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{Env: config.EnvDevelopment, Http: config.HttpConfig{MaxBodyBytes: 1 << 20}}
	router := api.InitRouter(ctx, cfg,
		locations.NewHandler(logger, locSvc, statsSvc),
		system.NewHandler(logger, okPinger{}),
		logger,
	)

	ts := &testServer{repo: repo}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			ts.deletes.Add(1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

type fixedGeocoder string

func (g fixedGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return string(g), nil
}

func testConfig(t *testing.T, serverURL, dbPath string) config.ClientConfig {
	t.Helper()
	cfg := config.DefaultClientConfig()
	cfg.ServerURL = serverURL
	cfg.DBPath = dbPath
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func openApp(t *testing.T, cfg config.ClientConfig, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, discard(), opts...)
	require.NoError(t, err)
	return a
}

func TestApp_KudzuEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	dbPath := filepath.Join(t.TempDir(), "client.db")
	cfg := testConfig(t, srv.URL, dbPath)
	ctx := context.Background()

	a := openApp(t, cfg, WithGeocoder(fixedGeocoder("Falls Church, VA")))
	require.True(t, a.Engine.CheckConnection(ctx))

	rec, err := a.AddLocation(ctx, domain.LocationPlant, "kudzu", 38.84, -77.18)
	require.NoError(t, err)
	assert.True(t, rec.Synced)
	assert.Equal(t, 0, a.Store.PendingCount())

	remoteRec, ok := srv.repo.get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "kudzu", remoteRec.Note)
	assert.Equal(t, domain.LocationPlant, remoteRec.Type)
	assert.InDelta(t, 38.84, remoteRec.Lat, 1e-9)

	require.Eventually(t, func() bool {
		got, ok := srv.repo.get(rec.ID)
		return ok && got.Address != nil && *got.Address == "Falls Church, VA"
	}, 3*time.Second, 10*time.Millisecond)

	got, err := a.Store.Get(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Address)
	installID := a.InstallID
	require.NoError(t, a.Close())

	b := openApp(t, cfg)
	defer b.Close()

	restored, err := b.Store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "kudzu", restored.Note)
	assert.True(t, restored.Synced)
	require.NotNil(t, restored.Address)
	assert.Equal(t, "Falls Church, VA", *restored.Address)
	assert.True(t, restored.Timestamp.Equal(rec.Timestamp))
	assert.Equal(t, installID, b.InstallID)
}

func TestApp_DeleteRemoteOnlyWhenSynced(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	a := openApp(t, testConfig(t, srv.URL, filepath.Join(t.TempDir(), "client.db")))
	defer a.Close()

	a.Engine.SetOffline(true)
	local, err := a.AddLocation(ctx, domain.LocationLitter, "bottle", 10, 10)
	require.NoError(t, err)
	require.False(t, local.Synced)
	a.Engine.SetOffline(false)

	remoteDeleted, err := a.DeleteLocation(ctx, local.ID)
	require.NoError(t, err)
	assert.False(t, remoteDeleted)
	assert.Equal(t, int32(0), srv.deletes.Load(), "never-synced record must not hit the server")

	synced, err := a.AddLocation(ctx, domain.LocationPlant, "kudzu", 38.84, -77.18)
	require.NoError(t, err)
	require.True(t, synced.Synced)

	remoteDeleted, err = a.DeleteLocation(ctx, synced.ID)
	require.NoError(t, err)
	assert.True(t, remoteDeleted)
	assert.Equal(t, int32(1), srv.deletes.Load())

	_, ok := srv.repo.get(synced.ID)
	assert.False(t, ok)

	_, err = a.DeleteLocation(ctx, synced.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	assert.Equal(t, int32(1), srv.deletes.Load())
}

func TestApp_AddRejectsInvalid(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "client.db"))
	cfg.OfflineMode = true
	a := openApp(t, cfg)
	defer a.Close()

	_, err := a.AddLocation(context.Background(), "tree", "oak", 1, 1)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
	_, err = a.AddLocation(context.Background(), domain.LocationPlant, "  ", 1, 1)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
	assert.Equal(t, 0, a.Store.Len())
}

func TestApp_IDsAreUnique(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "client.db"))
	cfg.OfflineMode = true
	a := openApp(t, cfg)
	defer a.Close()

	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		rec, err := a.AddLocation(context.Background(), domain.LocationPlant, "kudzu", 1, 1)
		require.NoError(t, err)
		require.False(t, seen[rec.ID], "duplicate id %d", rec.ID)
		seen[rec.ID] = true
	}
	assert.Equal(t, 20, a.Store.PendingCount())
}

func TestApp_ExportImport(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "a.db"))
	cfg.OfflineMode = true
	src := openApp(t, cfg)
	defer src.Close()

	_, err := src.AddLocation(ctx, domain.LocationPlant, "kudzu", 38.84, -77.18)
	require.NoError(t, err)
	_, err = src.AddLocation(ctx, domain.LocationLitter, "can", 38.85, -77.18)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.ExportLocal(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "["))

	cfg.DBPath = filepath.Join(t.TempDir(), "b.db")
	dst := openApp(t, cfg)
	defer dst.Close()

	imported, skipped, err := dst.ImportLocal(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 2, dst.Store.PendingCount())

	bad := `[{"id":5,"type":"tree","note":"x","latitude":1,"longitude":1,"timestamp":"2024-01-01T00:00:00Z"},
		{"id":6,"type":"plant","note":"ok","latitude":1,"longitude":1,"timestamp":"2024-01-01T00:00:00Z","synced":true}]`
	imported, skipped, err = dst.ImportLocal(ctx, strings.NewReader(bad))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 3, dst.Store.Len())

	six, err := dst.Store.Get(6)
	require.NoError(t, err)
	assert.False(t, six.Synced, "imported records must be pending")

	_, _, err = dst.ImportLocal(ctx, strings.NewReader("{not json"))
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	var empty bytes.Buffer
	cfg.DBPath = filepath.Join(t.TempDir(), "c.db")
	blank := openApp(t, cfg)
	defer blank.Close()
	require.NoError(t, blank.ExportLocal(&empty))
	assert.Equal(t, "[]\n", empty.String())
}

func TestApp_NearbyLocal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "client.db"))
	cfg.OfflineMode = true
	a := openApp(t, cfg)
	defer a.Close()

	center, err := a.AddLocation(ctx, domain.LocationPlant, "center", 38.84, -77.18)
	require.NoError(t, err)
	closeBy, err := a.AddLocation(ctx, domain.LocationLitter, "close", 38.841, -77.18)
	require.NoError(t, err)
	_, err = a.AddLocation(ctx, domain.LocationPlant, "far", 39.5, -77.18)
	require.NoError(t, err)

	got, err := a.NearbyLocal(domain.NearbyQuery{Lat: 38.84, Lng: -77.18, RadiusM: 1000})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, center.ID, got[0].ID)
	assert.Equal(t, closeBy.ID, got[1].ID)
	assert.Zero(t, got[0].DistanceM)

	exact, err := a.NearbyLocal(domain.NearbyQuery{Lat: 38.84, Lng: -77.18, RadiusM: 0})
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, center.ID, exact[0].ID)

	_, err = a.NearbyLocal(domain.NearbyQuery{Lat: 91, Lng: 0, RadiusM: 10})
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestApp_SettingsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "client.db"))

	a := openApp(t, cfg)
	id := a.InstallID
	require.NoError(t, a.SetOffline(ctx, true))
	a.Config.ServerURL = "https://tracker.example.org"
	require.NoError(t, a.SaveConfig(ctx))
	require.NoError(t, a.Close())

	b := openApp(t, cfg)
	defer b.Close()

	assert.True(t, b.Config.OfflineMode)
	assert.True(t, b.Engine.OfflineMode())
	assert.Equal(t, "https://tracker.example.org", b.Config.ServerURL)
	assert.Equal(t, id, b.InstallID)
}

type slowGeocoder struct {
	addr  string
	delay time.Duration
}

func (g slowGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (string, error) {
	select {
	case <-time.After(g.delay):
		return g.addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestApp_CloseRightAfterAddKeepsAddress(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "client.db"))
	cfg.OfflineMode = true

	a := openApp(t, cfg, WithGeocoder(slowGeocoder{addr: "Arlington, VA", delay: 50 * time.Millisecond}))
	rec, err := a.AddLocation(ctx, domain.LocationLitter, "bottles", 38.88, -77.1)
	require.NoError(t, err)
	assert.Nil(t, rec.Address)
	require.NoError(t, a.Close())

	b := openApp(t, cfg)
	defer b.Close()

	got, err := b.Store.Get(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Address)
	assert.Equal(t, "Arlington, VA", *got.Address)
	assert.False(t, got.Synced)
}

func TestApp_StartQueuesMissingAddresses(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "client.db"))
	cfg.OfflineMode = true

	// No Maps key: lookups fail and the record is saved without an address.
	a := openApp(t, cfg)
	rec, err := a.AddLocation(ctx, domain.LocationPlant, "ivy", 38.9, -77.0)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b := openApp(t, cfg, WithGeocoder(fixedGeocoder("Washington, DC")))
	defer b.Close()

	got, err := b.Store.Get(rec.ID)
	require.NoError(t, err)
	require.Nil(t, got.Address)

	require.NoError(t, b.Start(ctx))
	require.Eventually(t, func() bool {
		got, err := b.Store.Get(rec.ID)
		return err == nil && got.Address != nil && *got.Address == "Washington, DC"
	}, 3*time.Second, 10*time.Millisecond)
}
