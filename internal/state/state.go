// Package state holds the current order session: uploaded rows, processed
// rows with their bouquets, and the last user-visible error. Every mutation
// is written through to a Persister.
package state

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/shineum/ebouqets/internal/order"
)

// StorageKey is the key the whole snapshot is stored under.
const StorageKey = "ebouqet-storage"

// ErrCorrupt is returned by persisters when stored data cannot be decoded.
var ErrCorrupt = errors.New("state: stored data is corrupt")

// ProcessedOrder is a row with its resolved flower sprites and bouquet.
type ProcessedOrder struct {
	order.Row
	Flowers      []string `json:"flowers"`
	BouquetImage string   `json:"bouquetImage,omitempty"`
}

// Snapshot is the persisted state blob.
type Snapshot struct {
	Orders          []order.Row       `json:"orders"`
	ProcessedOrders []ProcessedOrder  `json:"processedOrders"`
	Bouquets        map[string]string `json:"bouquets"`
	Error           string            `json:"error,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Orders:          slices.Clone(s.Orders),
		ProcessedOrders: slices.Clone(s.ProcessedOrders),
		Bouquets:        maps.Clone(s.Bouquets),
		Error:           s.Error,
	}
}

func (s *Snapshot) normalize() {
	if s.Orders == nil {
		s.Orders = []order.Row{}
	}
	if s.ProcessedOrders == nil {
		s.ProcessedOrders = []ProcessedOrder{}
	}
	if s.Bouquets == nil {
		s.Bouquets = map[string]string{}
	}
}

// Persister saves and loads the snapshot blob.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Store is the session state container. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	snap      Snapshot
	gen       uint64
	persister Persister
}

// Open loads the stored snapshot through p. Missing or corrupt data yields
// an empty store; a load failure is logged, never returned.
func Open(ctx context.Context, p Persister) *Store {
	s := &Store{persister: p}
	if p != nil {
		snap, err := p.Load(ctx)
		if err != nil {
			slog.Warn("failed to load stored state, starting empty",
				"key", StorageKey,
				"error", err,
			)
			snap = Snapshot{}
		}
		s.snap = snap
	}
	s.snap.normalize()
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Generation identifies the current row set. It changes whenever the rows
// are replaced or reset.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Orders returns a copy of the current rows.
func (s *Store) Orders() []order.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Orders)
}

// Error returns the current user-visible error, or "".
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Error
}

// SetOrders replaces the rows, dropping processed results and the error,
// and returns the new generation.
func (s *Store) SetOrders(ctx context.Context, rows []order.Row) uint64 {
	var gen uint64
	s.mutate(ctx, func(snap *Snapshot) {
		s.gen++
		gen = s.gen
		snap.Orders = slices.Clone(rows)
		snap.ProcessedOrders = nil
		snap.Bouquets = nil
		snap.Error = ""
	})
	return gen
}

// SetProcessedOrders replaces the processed rows unconditionally.
func (s *Store) SetProcessedOrders(ctx context.Context, processed []ProcessedOrder) {
	s.mutate(ctx, func(snap *Snapshot) {
		snap.ProcessedOrders = slices.Clone(processed)
	})
}

// SetBouquets replaces the recipient to bouquet data URL map.
func (s *Store) SetBouquets(ctx context.Context, bouquets map[string]string) {
	s.mutate(ctx, func(snap *Snapshot) {
		snap.Bouquets = maps.Clone(bouquets)
	})
}

// CommitProcessed stores the results of a run started at gen. It reports
// false and changes nothing when the rows have been replaced since.
func (s *Store) CommitProcessed(ctx context.Context, gen uint64, processed []ProcessedOrder, bouquets map[string]string) bool {
	committed := s.update(ctx, func(snap *Snapshot) bool {
		if gen != s.gen {
			return false
		}
		snap.ProcessedOrders = slices.Clone(processed)
		snap.Bouquets = maps.Clone(bouquets)
		return true
	})
	if !committed {
		slog.Debug("dropping stale processing results", "generation", gen)
	}
	return committed
}

// SetError sets the user-visible error.
func (s *Store) SetError(ctx context.Context, msg string) {
	s.mutate(ctx, func(snap *Snapshot) {
		snap.Error = msg
	})
}

// ClearError clears the user-visible error.
func (s *Store) ClearError(ctx context.Context) {
	s.SetError(ctx, "")
}

// Reset empties the store.
func (s *Store) Reset(ctx context.Context) {
	s.mutate(ctx, func(snap *Snapshot) {
		s.gen++
		*snap = Snapshot{}
	})
}

// mutate applies fn under the write lock and saves the result. Save
// failures are logged; the in-memory state stays authoritative.
func (s *Store) mutate(ctx context.Context, fn func(*Snapshot)) {
	s.update(ctx, func(snap *Snapshot) bool {
		fn(snap)
		return true
	})
}

// update is mutate for changes that may not apply. Nothing is saved when fn
// reports false.
func (s *Store) update(ctx context.Context, fn func(*Snapshot) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(&s.snap) {
		return false
	}
	s.snap.normalize()

	if s.persister == nil {
		return true
	}
	if err := s.persister.Save(ctx, s.snap.clone()); err != nil {
		slog.Warn("failed to persist state",
			"key", StorageKey,
			"error", err,
		)
	}
	return true
}
