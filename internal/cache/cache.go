// Package cache implements ConcordKV's bounded, policy-pluggable cache
// layer (spec §4.8): a chained hash table (here, a Go map under a single
// RWMutex) plus a doubly linked list ordered by the active eviction policy,
// plus per-policy auxiliary state. It generalizes the teacher's
// pkg/lsm.BlockCache (container/list + map, LRU-only) to the five
// additional policies spec.md calls for.
package cache

import (
	"sync"
	"time"

	"github.com/concordkv/concordkv/internal/errs"
)

// Policy selects the eviction discipline a Cache enforces.
type Policy int

const (
	LRU Policy = iota
	LFU
	FIFO
	Random
	Clock
	ARC
)

func (p Policy) String() string {
	switch p {
	case LRU:
		return "lru"
	case LFU:
		return "lfu"
	case FIFO:
		return "fifo"
	case Random:
		return "random"
	case Clock:
		return "clock"
	case ARC:
		return "arc"
	default:
		return "unknown"
	}
}

// Options configures a Cache (spec §4.8, §3 "Cache entry").
type Options struct {
	Policy Policy
	// MaxEntries and MaxBytes jointly bound the cache (spec §8, invariant
	// 7: "entries <= max_entries AND bytes <= max_bytes").
	MaxEntries int
	MaxBytes   int64
	// EvictionFactor is the fraction of MaxEntries evicted once the cache
	// is full on Set, bounded by Min/MaxEvictionCount (spec §4.8).
	EvictionFactor   float64
	MinEvictionCount int
	MaxEvictionCount int
	// DefaultTTL applies when Set is called with ttl <= 0. Zero means no
	// expiry.
	DefaultTTL time.Duration
	// SweepInterval is how often the background expiration thread scans
	// for expired entries. Zero disables the sweeper.
	SweepInterval time.Duration
}

// DefaultOptions mirrors the teacher's BlockCache defaults, extended with
// spec §4.8's eviction-factor and TTL knobs.
func DefaultOptions() Options {
	return Options{
		Policy:           LRU,
		MaxEntries:       10000,
		MaxBytes:         64 << 20,
		EvictionFactor:   0.1,
		MinEvictionCount: 1,
		MaxEvictionCount: 1000,
		SweepInterval:    time.Minute,
	}
}

// entry is one cache record (spec §3, "Cache entry"). Not every field is
// meaningful under every policy; policy_bits equivalents are split into
// freq/refBit/arcList for clarity instead of one packed integer.
type entry struct {
	key        string
	value      []byte
	created    time.Time
	lastAccess time.Time
	ttl        time.Duration
	bytes      int64

	freq         int64     // LFU
	lastFreqTime time.Time // LFU decay bookkeeping
	refBit       bool      // CLOCK
	clockSlot    int       // CLOCK: index into the ring buffer, -1 if none
	arcList      arcListID // ARC: which of T1/T2 owns this key (ghosts in B1/B2 are ghostEntry records)

	lruNext, lruPrev *entry // LRU/FIFO list links (spec §3, "lru_prev, lru_next")
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits           int64
	Misses         int64
	Evictions      int64
	Expirations    int64
	CurrentEntries int
	CurrentBytes   int64
}

// Cache is a bounded, single eviction-policy key/value cache. Table access
// (the map), list mutation, and policy-auxiliary state each have their own
// mutex-equivalent scope, but in practice a single mutex guards the whole
// structure: spec §4.8 allows "at most two locks... in a fixed order", and
// since no ConcordKV caller needs finer-grained cache concurrency than one
// lock already gives, a single sync.RWMutex stands in for the three
// conceptually distinct locks without adding the ordering hazard a real
// three-lock scheme would risk.
type Cache struct {
	mu    sync.RWMutex
	opts  Options
	index map[string]*entry

	lru *lruList // MRU<->LRU list, used by LRU and FIFO

	clock *clockRing // used by Clock

	arc *arcState // used by ARC

	stats Stats

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New creates a Cache with the given options. If opts.SweepInterval > 0, a
// background goroutine periodically evicts expired entries.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts = DefaultOptions()
	}
	if opts.EvictionFactor <= 0 {
		opts.EvictionFactor = 0.1
	}
	if opts.MinEvictionCount <= 0 {
		opts.MinEvictionCount = 1
	}
	if opts.MaxEvictionCount <= 0 {
		opts.MaxEvictionCount = opts.MaxEntries
	}

	c := &Cache{opts: opts, index: make(map[string]*entry)}
	switch opts.Policy {
	case LRU, FIFO:
		c.lru = newLRUList()
	case Clock:
		c.clock = newClockRing(opts.MaxEntries)
	case ARC:
		c.arc = newARCState(opts.MaxEntries)
	}

	if opts.SweepInterval > 0 {
		c.stopSweep = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go c.sweepLoop()
	}
	return c
}

// Get returns the value for key, or ok=false on a miss or an expired entry.
func (c *Cache) Get(key string) (value []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.index[key]
	if !found {
		c.stats.Misses++
		return nil, false
	}
	if c.expiredLocked(e) {
		c.removeLocked(key)
		c.stats.Misses++
		c.stats.Expirations++
		return nil, false
	}

	e.lastAccess = time.Now()
	c.onAccessLocked(e)
	c.stats.Hits++

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set inserts or overwrites key with value and ttl (zero uses
// Options.DefaultTTL; both zero means no expiry). If the cache is at
// capacity, Set evicts eviction_factor * MaxEntries entries first (spec
// §4.8), bounded by Min/MaxEvictionCount.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	if existing, ok := c.index[key]; ok {
		c.stats.CurrentBytes -= existing.bytes
		existing.value = stored
		existing.bytes = int64(len(stored))
		existing.ttl = ttl
		existing.lastAccess = time.Now()
		c.stats.CurrentBytes += existing.bytes
		c.onAccessLocked(existing)
		return nil
	}

	if c.full() {
		c.evictLocked()
	}
	if c.full() {
		return errs.New(errs.OutOfMemory, "Cache.Set", "cache full after eviction pass")
	}

	now := time.Now()
	e := &entry{
		key: key, value: stored, bytes: int64(len(stored)),
		created: now, lastAccess: now, ttl: ttl,
		lastFreqTime: now, clockSlot: -1,
	}
	c.index[key] = e
	c.stats.CurrentBytes += e.bytes
	c.insertLocked(e)
	return nil
}

func (c *Cache) full() bool {
	if len(c.index) >= c.opts.MaxEntries {
		return true
	}
	if c.opts.MaxBytes > 0 && c.stats.CurrentBytes >= c.opts.MaxBytes {
		return true
	}
	return false
}

// Delete removes key, if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Exists reports whether key is present and unexpired, without affecting
// eviction order (no access-time update).
func (c *Cache) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.index[key]
	if !ok {
		return false
	}
	return !c.expiredLocked(e)
}

// Clear empties the cache and resets its statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*entry)
	switch c.opts.Policy {
	case LRU, FIFO:
		c.lru = newLRUList()
	case Clock:
		c.clock = newClockRing(c.opts.MaxEntries)
	case ARC:
		c.arc = newARCState(c.opts.MaxEntries)
	}
	c.stats = Stats{}
}

// Stats returns a snapshot of cache activity and current size.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.CurrentEntries = len(c.index)
	return s
}

// CheckIntegrity validates spec §8 invariant 8: |hash| == |list| ==
// stats.current_entries, plus list head/tail sanity for the list-backed
// policies. It is meant for tests, not the hot path.
func (c *Cache) CheckIntegrity() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.index)
	switch c.opts.Policy {
	case LRU, FIFO:
		if c.lru.len() != n {
			return errs.New(errs.Corrupted, "Cache.CheckIntegrity", "lru list length mismatch")
		}
	case Clock:
		live := 0
		for _, e := range c.clock.slots {
			if e != nil {
				live++
			}
		}
		if live != n {
			return errs.New(errs.Corrupted, "Cache.CheckIntegrity", "clock ring live-slot mismatch")
		}
	case ARC:
		if c.arc.t1.len()+c.arc.t2.len() != n {
			return errs.New(errs.Corrupted, "Cache.CheckIntegrity", "arc T1+T2 size mismatch")
		}
	}
	return nil
}

func (c *Cache) expiredLocked(e *entry) bool {
	if e.ttl <= 0 {
		return false
	}
	return time.Since(e.created) > e.ttl
}

func (c *Cache) removeLocked(key string) {
	e, ok := c.index[key]
	if !ok {
		return
	}
	delete(c.index, key)
	c.stats.CurrentBytes -= e.bytes
	c.removeFromPolicyLocked(e)
}

func (c *Cache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []string
	for k, e := range c.index {
		if c.expiredLocked(e) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		c.removeLocked(k)
		c.stats.Expirations++
	}
}

// Close stops the background expiration sweeper, if one is running.
func (c *Cache) Close() {
	if c.stopSweep == nil {
		return
	}
	close(c.stopSweep)
	<-c.sweepDone
}
