package fleet

import (
	"sync"

	"github.com/obdpulse/obdpulse/engine/domain"
)

// Store holds the active fleet and lets a watcher replace it while readers
// keep serving requests.
type Store struct {
	mu sync.RWMutex
	f  *Fleet
}

// NewStore returns a Store serving f. A nil fleet behaves as empty.
func NewStore(f *Fleet) *Store {
	return &Store{f: f}
}

// Current returns the active fleet.
func (s *Store) Current() *Fleet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f
}

// Swap installs f and returns the fleet it replaced.
func (s *Store) Swap(f *Fleet) *Fleet {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.f
	s.f = f
	return old
}

func (s *Store) Get(vin string) (domain.VehicleSnapshot, bool) {
	return s.Current().Get(vin)
}

func (s *Store) List() []domain.VehicleSnapshot {
	return s.Current().List()
}
