package concurrency

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// StripedLock is a bank of N independent RWMutex instances, each owning the
// keys that hash to it (spec §2, §5 "Segmented lock"). It lets unrelated
// keys proceed concurrently while still giving callers a way to lock a
// specific key or a whole set of keys together.
type StripedLock struct {
	stripes []*RWMutex
}

// NewStripedLock creates a StripedLock with the given number of stripes.
func NewStripedLock(stripes int) *StripedLock {
	if stripes < 1 {
		stripes = 1
	}
	s := &StripedLock{stripes: make([]*RWMutex, stripes)}
	for i := range s.stripes {
		s.stripes[i] = NewRWMutex()
	}
	return s
}

func (s *StripedLock) indexFor(key []byte) int {
	return int(xxhash.Sum64(key) % uint64(len(s.stripes)))
}

// Lock acquires the write stripe that owns key.
func (s *StripedLock) Lock(key []byte, deadline time.Duration) error {
	return s.stripes[s.indexFor(key)].Lock(deadline)
}

// Unlock releases the write stripe that owns key.
func (s *StripedLock) Unlock(key []byte) {
	s.stripes[s.indexFor(key)].Unlock()
}

// RLock acquires the read stripe that owns key.
func (s *StripedLock) RLock(key []byte, deadline time.Duration) error {
	return s.stripes[s.indexFor(key)].RLock(deadline)
}

// RUnlock releases the read stripe that owns key.
func (s *StripedLock) RUnlock(key []byte) {
	s.stripes[s.indexFor(key)].RUnlock()
}

// LockMulti locks the stripes owning every key in keys, in a fixed stripe-
// index order (ascending) regardless of the caller's key order, so two
// callers locking the same key set can never deadlock against each other.
// On partial failure it releases whatever it had acquired and returns the
// first error.
func (s *StripedLock) LockMulti(keys [][]byte, deadline time.Duration) error {
	indices := uniqueSortedIndices(s, keys)
	acquired := make([]int, 0, len(indices))
	for _, idx := range indices {
		if err := s.stripes[idx].Lock(deadline); err != nil {
			for _, a := range acquired {
				s.stripes[a].Unlock()
			}
			return err
		}
		acquired = append(acquired, idx)
	}
	return nil
}

// UnlockMulti releases the stripes owning every key in keys.
func (s *StripedLock) UnlockMulti(keys [][]byte) {
	indices := uniqueSortedIndices(s, keys)
	for _, idx := range indices {
		s.stripes[idx].Unlock()
	}
}

func uniqueSortedIndices(s *StripedLock, keys [][]byte) []int {
	seen := make(map[int]struct{}, len(keys))
	indices := make([]int, 0, len(keys))
	for _, k := range keys {
		idx := s.indexFor(k)
		if _, ok := seen[idx]; !ok {
			seen[idx] = struct{}{}
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices
}
