package metrics

import (
	"time"

	"github.com/concordkv/concordkv/internal/arrayengine"
	"github.com/concordkv/concordkv/internal/btreeengine"
	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/hashengine"
	"github.com/concordkv/concordkv/internal/rbtreeengine"
)

// Collector polls a Manager's registered engines on a fixed interval and
// pushes their common and tagged-union stats into a Registry. This
// replaces the teacher's approach of updating gauges inline at each call
// site (pkg/metrics's RecordStorageOperation is called directly from
// storage code): ConcordKV's engines don't import internal/metrics
// themselves, so a Collector polls from the outside instead.
type Collector struct {
	reg   *Registry
	mgr   *engine.Manager
	names [engine.LSM + 1]string
	stop  chan struct{}
	done  chan struct{}
}

// NewCollector builds a Collector that labels each Type's metrics with the
// fixed per-Type "engine" name from defaultEngineNames ("array", "rbtree",
// "hash", "btree", "lsm").
func NewCollector(reg *Registry, mgr *engine.Manager) *Collector {
	return &Collector{
		reg:   reg,
		mgr:   mgr,
		names: defaultEngineNames(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func defaultEngineNames() [engine.LSM + 1]string {
	var n [engine.LSM + 1]string
	n[engine.Array] = "array"
	n[engine.RBTree] = "rbtree"
	n[engine.Hash] = "hash"
	n[engine.BTree] = "btree"
	n[engine.LSM] = "lsm"
	return n
}

// Run polls every interval until Stop is called. Intended to run in its
// own goroutine.
func (c *Collector) Run(interval time.Duration) {
	defer close(c.done)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

// Stop signals Run to exit and blocks until it has.
func (c *Collector) Stop() {
	close(c.stop)
	<-c.done
}

// CollectOnce gathers one snapshot immediately, independent of Run's
// ticker; the CLI's STATUS command uses this for an on-demand refresh.
func (c *Collector) CollectOnce() { c.collectOnce() }

func (c *Collector) collectOnce() {
	for t := engine.Array; t <= engine.LSM; t++ {
		e := c.mgr.At(t)
		if e == nil {
			continue
		}
		name := c.names[t]
		if mem, err := e.MemoryUsage(); err == nil {
			c.reg.SetMemoryBytes(name, mem)
		}
		if ce, ok := e.(*engine.CachedEngine); ok {
			if st := ce.CacheStats(); st.Hits+st.Misses > 0 {
				c.reg.SetCacheHitRate(name, float64(st.Hits)/float64(st.Hits+st.Misses))
			}
			e = ce.Engine
		}
		c.collectTagged(name, t, e)
	}
}

func (c *Collector) collectTagged(name string, t engine.Type, e engine.Engine) {
	switch t {
	case engine.Array:
		if a, ok := e.(*arrayengine.Engine); ok {
			c.reg.SetArrayStats(name, a.Resizes(), a.Capacity(), a.Utilization())
		}
	case engine.RBTree:
		if rb, ok := e.(*rbtreeengine.Engine); ok {
			c.reg.SetRBTreeStats(name, rb.Rotations(), rb.Rebalances(), rb.Depth())
		}
	case engine.Hash:
		if h, ok := e.(*hashengine.Engine); ok {
			c.reg.SetHashStats(name, h.Collisions(), h.LoadFactor(), int64(h.RehashCount()))
		}
	case engine.BTree:
		if bt, ok := e.(*btreeengine.Engine); ok {
			c.reg.SetBTreeStats(name, int64(bt.Splits()), int64(bt.Merges()), bt.Height())
		}
	case engine.LSM:
		if ls, ok := e.(*engine.LSMEngine); ok {
			s := ls.Stats()
			c.reg.SetLSMStats(name, s.FlushesDone, s.CompactionsDone, s.PopulatedLevels, int64(s.ActiveBytes), s.SSTableCount)
		}
	}
}
