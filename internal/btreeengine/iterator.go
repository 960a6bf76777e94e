package btreeengine

import (
	"bytes"

	"github.com/concordkv/concordkv/internal/engine"
)

// rangeIterator walks leaves in key order via their next links, the one
// operation a B+Tree's leaf-link list exists to make cheap (spec §4:
// "order-bounded nodes with leaf-link list").
type rangeIterator struct {
	e      *Engine
	leafID NodeId
	idx    int
	end    []byte

	key, value []byte
}

// RangeScan returns an iterator over [start, end). A nil start begins at
// the leftmost key; a nil end has no upper bound.
func (e *Engine) RangeScan(start, end []byte) (engine.Iterator, error) {
	e.mu.RLock()
	id := e.root
	for {
		n := e.node(id)
		if n.leaf {
			break
		}
		id = n.children[childIndex(n.keys, start)]
	}
	idx := leafInsertIndex(e.node(id).keys, start)
	e.mu.RUnlock()

	return &rangeIterator{e: e, leafID: id, idx: idx, end: end}, nil
}

// CreateIterator returns an iterator over the whole tree in key order.
func (e *Engine) CreateIterator() (engine.Iterator, error) {
	return e.RangeScan(nil, nil)
}

func (it *rangeIterator) Next() bool {
	it.e.mu.RLock()
	defer it.e.mu.RUnlock()
	for it.leafID != invalidNode {
		leaf := it.e.node(it.leafID)
		if it.idx >= len(leaf.keys) {
			it.leafID = leaf.next
			it.idx = 0
			continue
		}
		k := leaf.keys[it.idx]
		if it.end != nil && bytes.Compare(k, it.end) >= 0 {
			it.leafID = invalidNode
			return false
		}
		it.key = k
		it.value = leaf.values[it.idx]
		it.idx++
		return true
	}
	return false
}

func (it *rangeIterator) Key() []byte   { return it.key }
func (it *rangeIterator) Value() []byte { return it.value }
func (it *rangeIterator) Err() error    { return nil }
func (it *rangeIterator) Close() error  { return nil }
