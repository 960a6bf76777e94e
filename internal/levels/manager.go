package levels

import (
	"sort"
	"sync"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/sstable"
)

// MaxLevels bounds the level hierarchy: L[0..MaxLevels).
const MaxLevels = 7

// Config governs level sizing (spec §3, "Level hierarchy").
type Config struct {
	Level0FileLimit int
	// BaseLevelBytes and Multiplier compute max_level_bytes[level] as
	// BaseLevelBytes * Multiplier^(level-1) for level >= 1.
	BaseLevelBytes int64
	Multiplier     int64
}

// DefaultConfig matches spec §3's defaults: base 10 MiB, multiplier 10.
func DefaultConfig() Config {
	return Config{Level0FileLimit: 4, BaseLevelBytes: 10 << 20, Multiplier: 10}
}

func (c Config) maxBytesForLevel(level int) int64 {
	if level == 0 {
		return 0
	}
	max := c.BaseLevelBytes
	for i := 1; i < level; i++ {
		max *= c.Multiplier
	}
	return max
}

// Manager holds per-level file arrays and answers point lookups by walking
// Level 0 newest-first then Level 1..N by binary search over sorted,
// non-overlapping key ranges (spec §4.5).
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	levels [MaxLevels][]*FileMeta
	bytes  [MaxLevels]int64
}

// NewManager creates an empty level manager.
func NewManager(cfg Config) *Manager {
	if cfg.Level0FileLimit <= 0 || cfg.BaseLevelBytes <= 0 || cfg.Multiplier <= 1 {
		cfg = DefaultConfig()
	}
	return &Manager{cfg: cfg}
}

// AddSSTable appends meta to the given level, maintaining the level's
// ordering invariant (insertion order for L0, MinKey-sorted for L1+).
//
// The new slice is always freshly allocated rather than grown/sorted in
// place: Get takes a snapshot of a level's slice header under RLock and
// then reads its backing array after releasing the lock (so slow disk
// reads never hold writers off). Mutating a level's backing array in
// place could silently rewrite the memory a concurrent Get snapshot is
// still iterating — a torn read (spec §5 forbids this) — so every
// mutation here replaces the slice wholesale instead.
func (m *Manager) AddSSTable(level int, meta *FileMeta) error {
	if level < 0 || level >= MaxLevels {
		return errs.New(errs.InvalidParam, "Manager.AddSSTable", "level out of range")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levels[level] = appendCopy(m.levels[level], meta)
	if level > 0 {
		sortByMinKey(m.levels[level])
	}
	m.bytes[level] += meta.FileSize
	return nil
}

// RemoveSSTable removes meta from level by pointer identity (spec §4.5:
// "matches by pointer identity and shifts").
func (m *Manager) RemoveSSTable(level int, meta *FileMeta) error {
	if level < 0 || level >= MaxLevels {
		return errs.New(errs.InvalidParam, "Manager.RemoveSSTable", "level out of range")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	files := m.levels[level]
	for i, f := range files {
		if f == meta {
			m.levels[level] = removeCopy(files, i)
			m.bytes[level] -= meta.FileSize
			return nil
		}
	}
	return nil
}

// Swap atomically removes a set of files and adds their replacements under
// a single write lock (spec §4.6: "swap inputs out and outputs in
// atomically"), so no reader ever observes a state with both the stale
// inputs and the new outputs, or neither.
func (m *Manager) Swap(removals []*FileMeta, additions map[int][]*FileMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, meta := range removals {
		lvl := meta.Level
		if lvl < 0 || lvl >= MaxLevels {
			continue
		}
		files := m.levels[lvl]
		for i, f := range files {
			if f == meta {
				m.levels[lvl] = removeCopy(files, i)
				m.bytes[lvl] -= meta.FileSize
				break
			}
		}
	}

	for lvl, metas := range additions {
		if lvl < 0 || lvl >= MaxLevels {
			continue
		}
		for _, meta := range metas {
			m.levels[lvl] = appendCopy(m.levels[lvl], meta)
			m.bytes[lvl] += meta.FileSize
		}
		if lvl > 0 {
			sortByMinKey(m.levels[lvl])
		}
	}
}

// appendCopy returns a new slice containing files plus meta, never reusing
// files' backing array (see the AddSSTable doc comment).
func appendCopy(files []*FileMeta, meta *FileMeta) []*FileMeta {
	out := make([]*FileMeta, len(files)+1)
	copy(out, files)
	out[len(files)] = meta
	return out
}

// removeCopy returns a new slice with the element at i dropped, never
// reusing files' backing array.
func removeCopy(files []*FileMeta, i int) []*FileMeta {
	out := make([]*FileMeta, 0, len(files)-1)
	out = append(out, files[:i]...)
	out = append(out, files[i+1:]...)
	return out
}

func sortByMinKey(files []*FileMeta) {
	sort.Slice(files, func(i, j int) bool {
		return bytesCompare(files[i].MinKey, files[j].MinKey) < 0
	})
}

// Files returns a copy of the file list at level, newest-last for L0 and
// MinKey-ascending for L1+.
func (m *Manager) Files(level int) []*FileMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if level < 0 || level >= MaxLevels {
		return nil
	}
	out := make([]*FileMeta, len(m.levels[level]))
	copy(out, m.levels[level])
	return out
}

// NeedsCompaction implements spec §4.5's trigger_check predicate.
func (m *Manager) NeedsCompaction(level int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if level < 0 || level >= MaxLevels {
		return false
	}
	if level == 0 {
		return len(m.levels[0]) >= m.cfg.Level0FileLimit
	}
	return m.bytes[level] > m.cfg.maxBytesForLevel(level)
}

// LevelBytes returns the current byte total tracked for level.
func (m *Manager) LevelBytes(level int) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if level < 0 || level >= MaxLevels {
		return 0
	}
	return m.bytes[level]
}

// Overlapping returns every file in level whose key range intersects
// [start, end).
func (m *Manager) Overlapping(level int, start, end []byte) []*FileMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if level < 0 || level >= MaxLevels {
		return nil
	}
	var out []*FileMeta
	for _, f := range m.levels[level] {
		if f.Overlaps(start, end) {
			out = append(out, f)
		}
	}
	return out
}

// Get searches Level 0 newest-first, then Level 1..N by binary search over
// each level's disjoint, sorted key ranges. Bloom filters gate every
// candidate file before its data blocks are touched.
func (m *Manager) Get(key []byte) (sstable.Record, bool, error) {
	m.mu.RLock()
	l0 := make([]*FileMeta, len(m.levels[0]))
	copy(l0, m.levels[0])
	rest := make([][]*FileMeta, MaxLevels-1)
	for lvl := 1; lvl < MaxLevels; lvl++ {
		rest[lvl-1] = m.levels[lvl]
	}
	m.mu.RUnlock()

	for i := len(l0) - 1; i >= 0; i-- {
		if rec, ok, err := getFromFile(l0[i], key); err != nil {
			return sstable.Record{}, false, err
		} else if ok {
			return rec, true, nil
		}
	}

	for lvl := 1; lvl < MaxLevels; lvl++ {
		files := rest[lvl-1]
		i := sort.Search(len(files), func(i int) bool {
			return bytesCompare(files[i].MaxKey, key) >= 0
		})
		if i >= len(files) {
			continue
		}
		f := files[i]
		if bytesCompare(f.MinKey, key) > 0 {
			continue // key falls in the gap between two disjoint files
		}
		rec, ok, err := getFromFile(f, key)
		if err != nil {
			return sstable.Record{}, false, err
		}
		if ok {
			return rec, true, nil
		}
	}
	return sstable.Record{}, false, nil
}

func getFromFile(f *FileMeta, key []byte) (sstable.Record, bool, error) {
	r, err := f.Reader()
	if err != nil {
		return sstable.Record{}, false, err
	}
	return r.Get(key)
}
