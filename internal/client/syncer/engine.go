package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DALE-GH/location-tracker/internal/client/remote"
	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/e"
)

type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
	StateSyncing State = "syncing"
)

var ErrOfflineMode = fmt.Errorf("%w: offline mode is on", e.ErrUnavailable)

type Store interface {
	Pending() []domain.Location
	PendingCount() int
	MarkPushed(sent domain.Location) (bool, error)
	Persist(ctx context.Context) error
}

type Remote interface {
	Health(ctx context.Context) (*remote.HealthStatus, error)
	Upsert(ctx context.Context, loc domain.Location) (*domain.Location, error)
	Update(ctx context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error)
	Delete(ctx context.Context, id int64) error
}

// SyncResult counts one pass. Changed records were accepted by the server but
// edited locally during the push; they stay pending for the next pass.
type SyncResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Changed int `json:"changed,omitempty"`
	Total   int `json:"total"`
}

type Status struct {
	State       State       `json:"state"`
	OfflineMode bool        `json:"offline_mode"`
	Pending     int         `json:"pending"`
	LastSync    time.Time   `json:"last_sync,omitempty"`
	LastResult  *SyncResult `json:"last_result,omitempty"`
}

// Engine reconciles the local store against the remote API. Every remote
// failure is absorbed into connectivity state and a log line.
type Engine struct {
	store    Store
	remote   Remote
	interval time.Duration
	logger   *slog.Logger

	syncing     atomic.Bool
	offlineMode atomic.Bool

	mu         sync.RWMutex
	state      State
	lastSync   time.Time
	lastResult *SyncResult

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store Store, remote Remote, interval time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		remote:   remote,
		interval: interval,
		logger:   logger,
		state:    StateOffline,
	}
}

func (en *Engine) State() State {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.state
}

func (en *Engine) Status() Status {
	en.mu.RLock()
	st := Status{
		State:       en.state,
		OfflineMode: en.offlineMode.Load(),
		LastSync:    en.lastSync,
	}
	if en.lastResult != nil {
		r := *en.lastResult
		st.LastResult = &r
	}
	en.mu.RUnlock()

	st.Pending = en.store.PendingCount()
	return st
}

// SetOffline toggles the manual override. While set, nothing is sent.
func (en *Engine) SetOffline(on bool) {
	en.offlineMode.Store(on)
	if on {
		en.settle(StateOffline)
	}
	en.logger.Info("offline mode changed", slog.Bool("offline", on))
}

func (en *Engine) OfflineMode() bool { return en.offlineMode.Load() }

// CheckConnection probes the health endpoint and records the outcome.
func (en *Engine) CheckConnection(ctx context.Context) bool {
	if en.offlineMode.Load() {
		en.settle(StateOffline)
		return false
	}

	h, err := en.remote.Health(ctx)
	if err != nil || h.Database != "connected" {
		en.logger.Warn("connection check failed", slog.Any("error", err))
		en.settle(StateOffline)
		return false
	}

	en.settle(StateOnline)
	return true
}

// PushOne upserts a single record. Failure leaves it pending.
func (en *Engine) PushOne(ctx context.Context, rec domain.Location) bool {
	if en.offlineMode.Load() {
		return false
	}

	if _, err := en.remote.Upsert(ctx, rec); err != nil {
		en.logger.Warn("push failed, record stays pending", slog.Int64("id", rec.ID), slog.Any("error", err))
		if errors.Is(err, e.ErrUnavailable) {
			en.settle(StateOffline)
		}
		return false
	}

	marked, err := en.store.MarkPushed(rec)
	if err != nil {
		// Deleted locally while the push was in flight.
		en.logger.Debug("pushed record no longer in store", slog.Int64("id", rec.ID))
		return true
	}
	if !marked {
		en.logger.Debug("record changed during push, stays pending", slog.Int64("id", rec.ID))
	} else if err := en.store.Persist(ctx); err != nil {
		en.logger.Error("persist after push failed", slog.Any("error", err))
	}

	en.settle(StateOnline)
	return true
}

// SyncAll pushes every pending record in order. At most one pass runs at a
// time; a concurrent call gets e.ErrAlreadySyncing and sends nothing.
func (en *Engine) SyncAll(ctx context.Context) (res SyncResult, err error) {
	if en.offlineMode.Load() {
		return res, ErrOfflineMode
	}
	if !en.syncing.CompareAndSwap(false, true) {
		return res, e.ErrAlreadySyncing
	}
	defer en.syncing.Store(false)

	en.setState(StateSyncing)
	defer func() {
		if p := recover(); p != nil {
			en.setState(StateOffline)
			panic(p)
		}
	}()

	pending := en.store.Pending()
	res.Total = len(pending)
	en.logger.Info("sync started", slog.Int("pending", res.Total))

	for _, rec := range pending {
		if _, err := en.remote.Upsert(ctx, rec); err != nil {
			en.logger.Warn("sync push failed", slog.Int64("id", rec.ID), slog.Any("error", err))
			res.Failed++
			continue
		}
		switch marked, err := en.store.MarkPushed(rec); {
		case err != nil:
			en.logger.Debug("synced record no longer in store", slog.Int64("id", rec.ID))
			res.Synced++
		case !marked:
			en.logger.Debug("record changed during sync, stays pending", slog.Int64("id", rec.ID))
			res.Changed++
		default:
			res.Synced++
		}
	}

	if res.Synced > 0 {
		if err := en.store.Persist(ctx); err != nil {
			en.logger.Error("persist after sync failed", slog.Any("error", err))
		}
	}

	final := StateOnline
	if res.Failed > 0 {
		final = StateOffline
	}

	en.mu.Lock()
	en.state = final
	en.lastSync = time.Now()
	en.lastResult = &res
	en.mu.Unlock()

	en.logger.Info("sync finished",
		slog.Int("synced", res.Synced),
		slog.Int("failed", res.Failed),
		slog.Int("changed", res.Changed),
		slog.String("state", string(final)),
	)
	return res, nil
}

// DeleteRemote is a single best-effort delete; failures are logged and dropped.
func (en *Engine) DeleteRemote(ctx context.Context, id int64) bool {
	if en.offlineMode.Load() {
		en.logger.Info("offline mode, remote delete skipped", slog.Int64("id", id))
		return false
	}

	if err := en.remote.Delete(ctx, id); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return true
		}
		en.logger.Warn("remote delete failed", slog.Int64("id", id), slog.Any("error", err))
		return false
	}
	return true
}

// PushAddress sends a late geocoding result for a record that is already synced.
func (en *Engine) PushAddress(ctx context.Context, id int64, addr string) bool {
	if en.offlineMode.Load() {
		return false
	}

	if _, err := en.remote.Update(ctx, id, domain.LocationPatch{Address: &addr}); err != nil {
		en.logger.Warn("address update failed", slog.Int64("id", id), slog.Any("error", err))
		return false
	}
	return true
}

// Start runs the periodic sync until Stop or ctx is done.
func (en *Engine) Start(ctx context.Context) error {
	en.runMu.Lock()
	defer en.runMu.Unlock()

	if en.cancel != nil {
		return errors.New("sync engine already started")
	}
	if en.interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", en.interval)
	}

	ctx, en.cancel = context.WithCancel(ctx)

	en.wg.Add(1)
	go func() {
		defer en.wg.Done()

		ticker := time.NewTicker(en.interval)
		defer ticker.Stop()

		en.logger.Info("auto sync started", slog.Duration("interval", en.interval))
		for {
			select {
			case <-ticker.C:
				en.tick(ctx)
			case <-ctx.Done():
				en.logger.Info("auto sync stopped")
				return
			}
		}
	}()
	return nil
}

// Stop halts the ticker and waits for an in-flight pass to finish.
func (en *Engine) Stop() {
	en.runMu.Lock()
	cancel := en.cancel
	en.cancel = nil
	en.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	en.wg.Wait()
}

func (en *Engine) tick(ctx context.Context) {
	if en.offlineMode.Load() || en.syncing.Load() || en.store.PendingCount() == 0 {
		return
	}
	// The ticker ctx is cancelled by Stop; the pass itself runs to completion.
	if _, err := en.SyncAll(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, e.ErrAlreadySyncing) {
		en.logger.Warn("auto sync skipped", slog.Any("error", err))
	}
}

func (en *Engine) setState(s State) {
	en.mu.Lock()
	en.state = s
	en.mu.Unlock()
}

// settle records an online/offline outcome unless a full pass owns the state.
func (en *Engine) settle(s State) {
	if en.syncing.Load() {
		return
	}
	en.setState(s)
}
