package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/internal/storage/sqlite"
	"github.com/DALE-GH/location-tracker/pkg/e"
)

type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store is the client's authoritative set of records, keyed by id.
type Store struct {
	mu      sync.RWMutex
	records map[int64]domain.Location
	blobs   Blobs
	logger  *slog.Logger
}

func New(blobs Blobs, logger *slog.Logger) *Store {
	return &Store{
		records: make(map[int64]domain.Location),
		blobs:   blobs,
		logger:  logger,
	}
}

func (s *Store) Add(rec domain.Location) error {
	const op = "store.Add"

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("%s: id %d: %w", op, rec.ID, e.ErrConflict)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Remove(id int64) (domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.Location{}, fmt.Errorf("store.Remove: id %d: %w", id, e.ErrNotFound)
	}
	delete(s.records, id)
	return rec, nil
}

func (s *Store) Get(id int64) (domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.Location{}, fmt.Errorf("store.Get: id %d: %w", id, e.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// List yields records of type t (all when t is empty), newest timestamp first.
// Each range over the sequence takes a fresh snapshot.
func (s *Store) List(t domain.LocationType) iter.Seq[domain.Location] {
	return func(yield func(domain.Location) bool) {
		for _, rec := range s.snapshot(func(r domain.Location) bool { return t == "" || r.Type == t }) {
			if !yield(rec) {
				return
			}
		}
	}
}

// Pending returns unsynced records, oldest first so pushes follow creation order.
func (s *Store) Pending() []domain.Location {
	out := s.snapshot(func(r domain.Location) bool { return !r.Synced })
	slices.Reverse(out)
	return out
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if !r.Synced {
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) MarkSynced(id int64, synced bool) error {
	return s.update(id, func(r *domain.Location) { r.Synced = synced })
}

// MarkPushed flags the record synced only if it still holds what was sent.
// It reports false when the record changed in the meantime and stays pending.
func (s *Store) MarkPushed(sent domain.Location) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[sent.ID]
	if !ok {
		return false, fmt.Errorf("store.MarkPushed: id %d: %w", sent.ID, e.ErrNotFound)
	}
	if !samePayload(cur, sent) {
		return false, nil
	}
	cur.Synced = true
	s.records[sent.ID] = cur
	return true, nil
}

func samePayload(a, b domain.Location) bool {
	if a.Type != b.Type || a.Note != b.Note || a.Lat != b.Lat || a.Lng != b.Lng || !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	if (a.Address == nil) != (b.Address == nil) {
		return false
	}
	return a.Address == nil || *a.Address == *b.Address
}

func (s *Store) SetAddress(id int64, addr string) error {
	return s.update(id, func(r *domain.Location) { r.Address = &addr })
}

// Replace swaps the whole set. Invalid records are skipped and counted.
func (s *Store) Replace(records []domain.Location) (kept, skipped int) {
	next := make(map[int64]domain.Location, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			s.logger.Warn("skipping invalid record", slog.Int64("id", r.ID), slog.Any("error", err))
			skipped++
			continue
		}
		next[r.ID] = r
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()

	return len(next), skipped
}

// Persist writes the whole set as a JSON array under the "locations" key.
func (s *Store) Persist(ctx context.Context) error {
	const op = "store.Persist"

	recs := s.snapshot(nil)
	b, err := json.Marshal(recs)
	if err != nil {
		return e.Wrap(op, err)
	}
	if err := s.blobs.Put(ctx, sqlite.KeyLocations, b); err != nil {
		s.logger.Error("persist failed", slog.String("op", op), slog.Any("error", err))
		return e.Wrap(op, err)
	}
	return nil
}

// Restore loads the persisted set. Missing or corrupt data leaves the store
// empty and logs a warning; only storage read failures are returned.
func (s *Store) Restore(ctx context.Context) error {
	const op = "store.Restore"

	raw, err := s.blobs.Get(ctx, sqlite.KeyLocations)
	if err != nil {
		s.Replace(nil)
		if errors.Is(err, e.ErrNotFound) {
			s.logger.Info("no saved locations, starting empty")
			return nil
		}
		s.logger.Warn("restore read failed, starting empty", slog.String("op", op), slog.Any("error", err))
		return e.Wrap(op, err)
	}

	var recs []domain.Location
	if err := json.Unmarshal(raw, &recs); err != nil {
		s.logger.Warn("saved locations are corrupt, starting empty", slog.String("op", op), slog.Any("error", err))
		s.Replace(nil)
		return nil
	}

	kept, skipped := s.Replace(recs)
	s.logger.Info("locations restored", slog.Int("count", kept), slog.Int("skipped", skipped))
	return nil
}

func (s *Store) update(id int64, fn func(*domain.Location)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("store: id %d: %w", id, e.ErrNotFound)
	}
	fn(&rec)
	s.records[id] = rec
	return nil
}

// snapshot copies matching records sorted by timestamp desc, id desc.
func (s *Store) snapshot(keep func(domain.Location) bool) []domain.Location {
	s.mu.RLock()
	out := make([]domain.Location, 0, len(s.records))
	for _, r := range s.records {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Location) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}
