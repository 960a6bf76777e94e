// Package arena implements the size-classed block allocator MemTables use
// to own their entries (spec §2, "error & memory base"). It is sharded
// across GOMAXPROCS banks the way a NUMA-aware allocator shards across
// memory nodes — Go exposes no NUMA affinity API, so shard selection here
// is a fast round-robin rather than true node locality; see DESIGN.md.
package arena

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Size classes a block request is rounded up into.
const (
	ClassTiny   = 32
	ClassSmall  = 128
	ClassMedium = 512
	ClassLarge  = 4096
	ClassHuge   = 16384
	// MaxPooled is an upper guard in Free. Only requests up to ClassHuge
	// are pooled; anything larger is allocated directly and never returned
	// to a shard.
	MaxPooled = 1 << 20
)

var classes = [...]int{ClassTiny, ClassSmall, ClassMedium, ClassLarge, ClassHuge}

func classFor(n int) (size int, idx int, pooled bool) {
	for i, c := range classes {
		if n <= c {
			return c, i, true
		}
	}
	return n, -1, false
}

// ClassStats is a snapshot of allocation activity for one size class.
type ClassStats struct {
	Size   int
	Allocs int64
	Frees  int64
	InUse  int64
}

type shard struct {
	pools [len(classes)]sync.Pool
}

func newShard() *shard {
	s := &shard{}
	for i, c := range classes {
		size := c
		s.pools[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
	return s
}

// Arena hands out byte blocks for MemTable entries and tracks per-size-class
// allocation statistics. One Arena is shared by every MemTable a
// memtable.Manager creates; each block belongs to the single MemTable that
// allocated it and is never shared across MemTables (spec §3, "Ownership
// summary").
type Arena struct {
	shards []*shard
	next   atomic.Uint64

	// stats, one counter pair per size class plus an overflow bucket for
	// requests too large to pool.
	allocs   [len(classes) + 1]atomic.Int64
	frees    [len(classes) + 1]atomic.Int64
	liveBytes atomic.Int64
}

// New creates an Arena sharded across GOMAXPROCS banks.
func New() *Arena {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	a := &Arena{shards: make([]*shard, n)}
	for i := range a.shards {
		a.shards[i] = newShard()
	}
	return a
}

func (a *Arena) pickShard() *shard {
	i := a.next.Add(1) % uint64(len(a.shards))
	return a.shards[i]
}

// Alloc returns a zero-length byte slice with capacity >= n, drawn from the
// appropriate size class. The returned slice must be returned via Free once
// the arena's owner (the MemTable) is done with it, or left to the GC if the
// arena itself is discarded.
func (a *Arena) Alloc(n int) []byte {
	size, idx, pooled := classFor(n)
	bucket := idx
	if !pooled {
		bucket = len(classes)
	}
	a.allocs[bucket].Add(1)
	a.liveBytes.Add(int64(size))

	if !pooled {
		return make([]byte, 0, n)
	}

	sh := a.pickShard()
	bp := sh.pools[idx].Get().(*[]byte)
	buf := (*bp)[:0]
	if cap(buf) < n {
		buf = make([]byte, 0, size)
	}
	return buf
}

// Free returns a block to its size class for reuse. Blocks with capacity
// above ClassHuge are simply dropped (left to the GC).
func (a *Arena) Free(b []byte) {
	c := cap(b)
	_, idx, pooled := classFor(c)
	bucket := idx
	if !pooled || c > MaxPooled {
		bucket = len(classes)
		a.frees[bucket].Add(1)
		a.liveBytes.Add(-int64(c))
		return
	}
	a.frees[bucket].Add(1)
	a.liveBytes.Add(-int64(c))

	sh := a.pickShard()
	b = b[:0]
	sh.pools[idx].Put(&b)
}

// Stats returns a snapshot of allocation counters per size class, plus the
// overflow bucket for oversized requests.
func (a *Arena) Stats() []ClassStats {
	out := make([]ClassStats, 0, len(classes)+1)
	for i, c := range classes {
		allocs := a.allocs[i].Load()
		frees := a.frees[i].Load()
		out = append(out, ClassStats{Size: c, Allocs: allocs, Frees: frees, InUse: allocs - frees})
	}
	allocs := a.allocs[len(classes)].Load()
	frees := a.frees[len(classes)].Load()
	out = append(out, ClassStats{Size: -1, Allocs: allocs, Frees: frees, InUse: allocs - frees})
	return out
}

// LiveBytes returns the approximate number of bytes currently checked out
// from this arena (allocated size-class capacity, not logical length).
func (a *Arena) LiveBytes() int64 {
	return a.liveBytes.Load()
}
