package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DALE-GH/location-tracker/internal/client/geocode"
	"github.com/DALE-GH/location-tracker/internal/client/remote"
	"github.com/DALE-GH/location-tracker/internal/client/store"
	"github.com/DALE-GH/location-tracker/internal/client/syncer"
	"github.com/DALE-GH/location-tracker/internal/config"
	"github.com/DALE-GH/location-tracker/internal/storage/sqlite"
	"github.com/DALE-GH/location-tracker/internal/workers"
	"github.com/DALE-GH/location-tracker/pkg/e"

	"github.com/google/uuid"
)

// App is the field client: one local store, one sync engine and the geocode
// workers, all built from a single ClientConfig.
type App struct {
	Config    config.ClientConfig
	InstallID uuid.UUID

	Store  *store.Store
	Engine *syncer.Engine
	Remote *remote.Client
	Pool   *workers.GeocodePool

	blobs  *sqlite.Blobs
	logger *slog.Logger

	idMu sync.Mutex

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*options)

type options struct {
	geocoder  workers.ReverseGeocoder
	serverURL string
}

// WithGeocoder overrides the geocoder picked from the Maps key.
func WithGeocoder(g workers.ReverseGeocoder) Option {
	return func(o *options) { o.geocoder = g }
}

// WithServerURL points this run at url regardless of the saved settings.
func WithServerURL(url string) Option {
	return func(o *options) { o.serverURL = url }
}

// New opens the local database, restores saved records and settings and starts
// the geocode workers. Auto sync is started separately by Start.
func New(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, opts ...Option) (*App, error) {
	const op = "app.New"

	var o options
	for _, fn := range opts {
		fn(&o)
	}

	blobs, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	a := &App{
		blobs:  blobs,
		logger: logger,
	}

	a.Config = a.loadConfig(ctx, cfg)
	if o.serverURL != "" {
		a.Config.ServerURL = o.serverURL
	}
	if err := a.Config.Validate(); err != nil {
		_ = blobs.Close()
		return nil, e.Wrap(op, err)
	}

	if a.InstallID, err = a.loadInstallID(ctx); err != nil {
		_ = blobs.Close()
		return nil, e.Wrap(op, err)
	}

	a.Store = store.New(blobs, logger)
	if err := a.Store.Restore(ctx); err != nil {
		_ = blobs.Close()
		return nil, e.Wrap(op, err)
	}

	a.Remote = remote.New(a.Config.ServerURL, a.Config.APIKey, a.Config.RequestTimeout, logger)
	a.Engine = syncer.New(a.Store, a.Remote, a.Config.SyncInterval.Std(), logger)
	if a.Config.OfflineMode {
		a.Engine.SetOffline(true)
	}

	g := o.geocoder
	if g == nil {
		if g, err = geocode.New(a.Config.MapsAPIKey); err != nil {
			_ = blobs.Close()
			return nil, e.Wrap(op, err)
		}
	}
	a.Pool = workers.NewGeocodePool(g, a.Config.GeocodeWorkers, a.Config.RequestTimeout, logger)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.Pool.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.consumeAddresses(context.WithoutCancel(runCtx))
	}()

	logger.Info("client ready",
		slog.String("install_id", a.InstallID.String()),
		slog.String("server", a.Config.ServerURL),
		slog.Int("records", a.Store.Len()),
		slog.Int("pending", a.Store.PendingCount()),
	)
	return a, nil
}

// Start checks the server once, queues address lookups for records that still
// lack one and begins periodic syncing.
func (a *App) Start(ctx context.Context) error {
	a.Engine.CheckConnection(ctx)
	a.requeueAddresses()
	return a.Engine.Start(ctx)
}

func (a *App) requeueAddresses() {
	queued := 0
	for rec := range a.Store.List("") {
		if rec.Address != nil {
			continue
		}
		if !a.Pool.Submit(workers.GeocodeJob{ID: rec.ID, Lat: rec.Lat, Lng: rec.Lng}) {
			break
		}
		queued++
	}
	if queued > 0 {
		a.logger.Info("queued missing addresses", slog.Int("count", queued))
	}
}

// SetOffline flips the manual override and saves it with the settings.
func (a *App) SetOffline(ctx context.Context, on bool) error {
	a.Engine.SetOffline(on)
	a.Config.OfflineMode = on
	return a.SaveConfig(ctx)
}

// SaveConfig writes the persisted subset of Config under the "config" key.
func (a *App) SaveConfig(ctx context.Context) error {
	const op = "app.SaveConfig"

	b, err := json.Marshal(a.Config)
	if err != nil {
		return e.Wrap(op, err)
	}
	if err := a.blobs.Put(ctx, sqlite.KeyConfig, b); err != nil {
		return e.Wrap(op, err)
	}
	return nil
}

// Close stops syncing, lets queued address lookups finish within one request
// timeout, saves the records and closes the database.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.Engine.Stop()
		a.Pool.Drain(a.Config.RequestTimeout)
		a.cancel()
		a.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err = errors.Join(a.Store.Persist(ctx), a.blobs.Close())
	})
	return err
}

func (a *App) loadConfig(ctx context.Context, seed config.ClientConfig) config.ClientConfig {
	raw, err := a.blobs.Get(ctx, sqlite.KeyConfig)
	if err != nil {
		if !errors.Is(err, e.ErrNotFound) {
			a.logger.Warn("saved settings unreadable, using defaults", slog.Any("error", err))
		}
		return seed
	}

	var stored config.ClientConfig
	if err := json.Unmarshal(raw, &stored); err != nil {
		a.logger.Warn("saved settings are corrupt, dropping them", slog.Any("error", err))
		if err := a.blobs.Delete(ctx, sqlite.KeyConfig); err != nil {
			a.logger.Error("drop corrupt settings failed", slog.Any("error", err))
		}
		return seed
	}
	return seed.Merge(stored)
}

func (a *App) loadInstallID(ctx context.Context) (uuid.UUID, error) {
	raw, err := a.blobs.Get(ctx, sqlite.KeyInstallID)
	if err == nil {
		if id, perr := uuid.ParseBytes(raw); perr == nil {
			return id, nil
		}
		a.logger.Warn("install id is corrupt, issuing a new one")
	} else if !errors.Is(err, e.ErrNotFound) {
		return uuid.Nil, err
	}

	id := uuid.New()
	if err := a.blobs.Put(ctx, sqlite.KeyInstallID, []byte(id.String())); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// consumeAddresses applies geocode results until the pool closes its channel.
func (a *App) consumeAddresses(ctx context.Context) {
	for res := range a.Pool.Results() {
		if res.Err != nil {
			continue
		}

		if err := a.Store.SetAddress(res.ID, res.Address); err != nil {
			a.logger.Debug("geocoded record is gone", slog.Int64("id", res.ID))
			continue
		}
		if err := a.Store.Persist(ctx); err != nil {
			a.logger.Error("persist after geocode failed", slog.Any("error", err))
		}

		rec, err := a.Store.Get(res.ID)
		if err != nil || !rec.Synced {
			// Still pending; the next push carries the address.
			continue
		}
		a.Engine.PushAddress(ctx, res.ID, res.Address)
	}
}
