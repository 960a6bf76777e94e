package cache

import "time"

// decayIdleWindow is how long an entry must sit untouched before its
// frequency is halved on its next access, per spec §4.8: "occasional
// halving decay after an hour idle."
const decayIdleWindow = time.Hour

// lfuAccess increments e's frequency counter, applying a halving decay
// first if the entry has been idle past decayIdleWindow. Callers must hold
// c.mu.
func (c *Cache) lfuAccess(e *entry) {
	now := time.Now()
	if now.Sub(e.lastFreqTime) > decayIdleWindow {
		e.freq /= 2
	}
	e.freq++
	e.lastFreqTime = now
}

// evictOneLFU scans for the minimum-frequency entry and evicts it (spec
// §4.8: "eviction scans for the minimum-frequency entry"). O(n) in the
// entry count; acceptable since eviction is already a bounded, infrequent
// batch operation gated by evictionCount.
func (c *Cache) evictOneLFU() {
	var victim *entry
	for _, e := range c.index {
		if victim == nil || e.freq < victim.freq ||
			(e.freq == victim.freq && e.lastAccess.Before(victim.lastAccess)) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(c.index, victim.key)
	c.stats.CurrentBytes -= victim.bytes
	c.stats.Evictions++
}
