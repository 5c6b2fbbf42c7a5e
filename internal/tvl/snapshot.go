package tvl

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is a computed TVL at a known block.
type Snapshot struct {
	Chain     string    `json:"chain"`
	Block     uint64    `json:"block"`
	Timestamp time.Time `json:"timestamp"`
	Balances  Balances  `json:"balances"`
}

// SnapshotStore keeps the most recent snapshot per chain in memory.
type SnapshotStore struct {
	mu     sync.RWMutex
	latest map[string]Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{latest: make(map[string]Snapshot)}
}

// Put records snap unless a snapshot at a higher block is already stored.
func (s *SnapshotStore) Put(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.latest[snap.Chain]; ok && cur.Block > snap.Block {
		return false
	}
	s.latest[snap.Chain] = snap
	return true
}

func (s *SnapshotStore) Latest(chain string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[chain]
	return snap, ok
}

// All returns every stored snapshot ordered by chain name.
func (s *SnapshotStore) All() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.latest))
	for _, snap := range s.latest {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out
}
