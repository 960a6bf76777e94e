package cache

// lruList is a doubly linked list of entries, MRU-at-head and LRU-at-tail,
// threaded through each entry's own lruNext/lruPrev fields (spec §3, "Cache
// entry": "lru_prev, lru_next"). It backs both the LRU policy (reordered
// on every access) and the FIFO policy (ordered by insertion only, never
// reordered). Grounded on the teacher's container/list-based
// pkg/lsm.BlockCache, generalized to the entry type directly so eviction
// from the tail is O(1) without a separate map[*entry]*list.Element.
type lruList struct {
	head, tail *entry
	count      int
}

func newLRUList() *lruList { return &lruList{} }

func (l *lruList) len() int { return l.count }

func (l *lruList) pushFront(e *entry) {
	e.lruPrev = nil
	e.lruNext = l.head
	if l.head != nil {
		l.head.lruPrev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	l.count++
}

func (l *lruList) remove(e *entry) {
	if e.lruPrev != nil {
		e.lruPrev.lruNext = e.lruNext
	} else {
		l.head = e.lruNext
	}
	if e.lruNext != nil {
		e.lruNext.lruPrev = e.lruPrev
	} else {
		l.tail = e.lruPrev
	}
	e.lruNext, e.lruPrev = nil, nil
	l.count--
}

func (l *lruList) moveToFront(e *entry) {
	if l.head == e {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

func (l *lruList) back() *entry { return l.tail }
