package cache

// arcListID identifies which of ARC's two real lists (T1, T2) currently owns
// a live entry; the ghost lists B1 and B2 hold ghostEntry records instead
// (spec §4.8: "four LRU lists T1, T2, B1, B2 with adaptive target p").
type arcListID int

const (
	arcNone arcListID = iota
	arcT1
	arcT2
)

// ghostEntry is a key-only record in one of ARC's ghost lists (B1 or B2):
// recently evicted entries whose value has already been discarded, kept
// only so a later re-insert can be recognized as a ghost hit.
type ghostEntry struct {
	key        string
	list       *ghostList
	next, prev *ghostEntry
}

// ghostList is a bounded doubly linked list of ghostEntry, MRU-at-head.
type ghostList struct {
	head, tail *ghostEntry
	count      int
}

func newGhostList() *ghostList { return &ghostList{} }

func (g *ghostList) len() int { return g.count }

func (g *ghostList) pushFront(key string) *ghostEntry {
	ge := &ghostEntry{key: key, list: g, next: g.head}
	if g.head != nil {
		g.head.prev = ge
	}
	g.head = ge
	if g.tail == nil {
		g.tail = ge
	}
	g.count++
	return ge
}

func (g *ghostList) remove(ge *ghostEntry) {
	if ge.prev != nil {
		ge.prev.next = ge.next
	} else {
		g.head = ge.next
	}
	if ge.next != nil {
		ge.next.prev = ge.prev
	} else {
		g.tail = ge.prev
	}
	ge.next, ge.prev = nil, nil
	g.count--
}

func (g *ghostList) popBack() *ghostEntry {
	e := g.tail
	if e == nil {
		return nil
	}
	g.remove(e)
	return e
}

// arcState implements the Adaptive Replacement Cache's bookkeeping: two
// real lists (T1 recency, T2 frequency) mirrored in the shared entry
// table, and two ghost lists (B1, B2) of recently evicted keys that steer
// the adaptive target p. Grounded on the published ARC algorithm
// (Megiddo & Modha); this is the only policy among the six with no
// teacher precedent, so its structure follows the paper directly rather
// than an _examples file.
type arcState struct {
	capacity int
	p        int // adaptive target size for T1

	t1, t2 *lruList
	b1, b2 *ghostList

	ghostIdx map[string]*ghostEntry
}

func newARCState(capacity int) *arcState {
	if capacity <= 0 {
		capacity = 1
	}
	return &arcState{
		capacity: capacity,
		t1:       newLRUList(),
		t2:       newLRUList(),
		b1:       newGhostList(),
		b2:       newGhostList(),
		ghostIdx: make(map[string]*ghostEntry),
	}
}

// insert places a freshly created entry, promoting it straight to T2 and
// adapting p if its key is a ghost hit (spec: "access promotes between
// them according to the published ARC rules").
func (a *arcState) insert(c *Cache, e *entry) {
	if ge, ok := a.ghostIdx[e.key]; ok {
		switch ge.list {
		case a.b1:
			a.p = minInt(a.capacity, a.p+ratioStep(a.b2.len(), a.b1.len()))
		case a.b2:
			a.p = maxInt(0, a.p-ratioStep(a.b1.len(), a.b2.len()))
		}
		a.removeGhost(ge)
		e.arcList = arcT2
		a.t2.pushFront(e)
		return
	}
	e.arcList = arcT1
	a.t1.pushFront(e)
}

// access moves an already-resident entry to the MRU end of T2: any repeat
// access, whether it started in T1 or T2, is evidence of frequency.
func (a *arcState) access(c *Cache, e *entry) {
	switch e.arcList {
	case arcT1:
		a.t1.remove(e)
	case arcT2:
		a.t2.remove(e)
	default:
		return
	}
	e.arcList = arcT2
	a.t2.pushFront(e)
}

func (a *arcState) removeLive(e *entry) {
	switch e.arcList {
	case arcT1:
		a.t1.remove(e)
	case arcT2:
		a.t2.remove(e)
	}
	e.arcList = arcNone
}

// evictOne performs ARC's REPLACE step: evict from T1 if it exceeds the
// adaptive target p (or T2 is empty), otherwise from T2, and record the
// evicted key as a ghost so a near-future re-insert can adapt p again.
func (a *arcState) evictOne(c *Cache) {
	var victim *entry
	fromT1 := false
	switch {
	case a.t1.len() > 0 && (a.t1.len() > a.p || a.t2.len() == 0):
		victim = a.t1.back()
		fromT1 = true
	case a.t2.len() > 0:
		victim = a.t2.back()
	case a.t1.len() > 0:
		victim = a.t1.back()
		fromT1 = true
	}
	if victim == nil {
		return
	}

	delete(c.index, victim.key)
	c.stats.CurrentBytes -= victim.bytes
	c.stats.Evictions++

	if fromT1 {
		a.t1.remove(victim)
		a.addGhost(a.b1, victim.key)
	} else {
		a.t2.remove(victim)
		a.addGhost(a.b2, victim.key)
	}
	victim.arcList = arcNone
}

func (a *arcState) addGhost(list *ghostList, key string) {
	if old, ok := a.ghostIdx[key]; ok {
		a.removeGhost(old)
	}
	ge := list.pushFront(key)
	a.ghostIdx[key] = ge
	if list.len() > a.capacity {
		if tail := list.popBack(); tail != nil {
			delete(a.ghostIdx, tail.key)
		}
	}
}

func (a *arcState) removeGhost(ge *ghostEntry) {
	ge.list.remove(ge)
	delete(a.ghostIdx, ge.key)
}

// ratioStep mirrors ARC's paper: max(|other|/|self|, 1).
func ratioStep(other, self int) int {
	if self == 0 {
		return 1
	}
	r := other / self
	if r < 1 {
		return 1
	}
	return r
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
