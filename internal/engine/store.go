// internal/engine/store.go
package engine

import (
	"sync"

	"go.uber.org/zap"
)

// slot wraps a stored position with its own lock so different assets can be
// evaluated concurrently while mutations to the same asset stay serialized.
type slot struct {
	mu      sync.Mutex
	pos     *Position
	removed bool
}

// Store is the authoritative, capacity-bounded set of open positions.
type Store struct {
	mu       sync.RWMutex
	slots    map[string]*slot
	capacity int
	logger   *zap.Logger
}

// NewStore creates a store bounded to capacity concurrent open positions.
func NewStore(capacity int, logger *zap.Logger) *Store {
	return &Store{
		slots:    make(map[string]*slot),
		capacity: capacity,
		logger:   logger.Named("store"),
	}
}

// Insert adds a position for an asset not yet tracked. It fails with
// ErrCapacityExceeded at the position limit, ErrDuplicatePosition when the
// asset already has an open position, and ErrInvalidPosition for a
// non-positive entry price.
func (s *Store) Insert(pos *Position) error {
	if pos.EntryPrice <= 0 {
		return ErrInvalidPosition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[pos.AssetID]; exists {
		return ErrDuplicatePosition
	}
	if len(s.slots) >= s.capacity {
		return ErrCapacityExceeded
	}

	s.slots[pos.AssetID] = &slot{pos: pos}
	s.logger.Debug("Position inserted",
		zap.String("asset", pos.AssetID),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Int("open_positions", len(s.slots)))
	return nil
}

// Get returns a snapshot copy of the position for an asset.
func (s *Store) Get(assetID string) (Position, bool) {
	s.mu.RLock()
	sl, ok := s.slots[assetID]
	s.mu.RUnlock()
	if !ok {
		return Position{}, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed {
		return Position{}, false
	}
	return snapshot(sl.pos), true
}

// Update runs fn inside the per-asset critical section. The position passed
// to fn may be mutated in place; no other goroutine observes it mid-update.
// When fn returns nil and the position's remaining size has reached zero,
// the position is removed from the store.
//
// Update returns false when the asset is not tracked.
func (s *Store) Update(assetID string, fn func(*Position) error) (bool, error) {
	s.mu.RLock()
	sl, ok := s.slots[assetID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed {
		return false, nil
	}

	if err := fn(sl.pos); err != nil {
		return true, err
	}

	if sl.pos.RemainingSize <= 0 {
		sl.removed = true
		s.mu.Lock()
		delete(s.slots, assetID)
		s.mu.Unlock()
		s.logger.Debug("Position removed after full close", zap.String("asset", assetID))
	}
	return true, nil
}

// Remove drops a position regardless of its remaining size. Used for
// positions that can no longer be evaluated.
func (s *Store) Remove(assetID string) {
	s.mu.Lock()
	sl, ok := s.slots[assetID]
	if ok {
		delete(s.slots, assetID)
	}
	s.mu.Unlock()

	if ok {
		sl.mu.Lock()
		sl.removed = true
		sl.mu.Unlock()
		s.logger.Debug("Position removed", zap.String("asset", assetID))
	}
}

// AssetIDs returns the tracked asset ids at the time of the call.
func (s *Store) AssetIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Capacity returns the configured position limit.
func (s *Store) Capacity() int {
	return s.capacity
}

// snapshot copies a position, including its tier flags.
func snapshot(p *Position) Position {
	cp := *p
	cp.TiersTaken = make([]bool, len(p.TiersTaken))
	copy(cp.TiersTaken, p.TiersTaken)
	return cp
}
