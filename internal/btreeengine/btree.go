// Package btreeengine implements the disk-friendly B+Tree backend (spec
// §4, "order-bounded nodes with leaf-link list; insert with split, delete
// with borrow/merge"). Per DESIGN NOTES §9 ("cyclic parent/child pointers
// in the B+Tree... the idiomatic replacement is an arena-and-index
// model"), nodes live in a slice owned by the Engine and are referenced by
// stable NodeId indices; there is no parent pointer anywhere, cyclic or
// otherwise. Descent tracks the path back to the root explicitly as a
// stack of (parent NodeId, child index) pairs, which both drives split
// propagation on insert and borrow/merge propagation on delete.
package btreeengine

import (
	"bytes"
	"sync"

	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/errs"
)

// defaultOrder bounds the maximum number of children an internal node, or
// keys a leaf, may hold before it splits.
const defaultOrder = 32

// NodeId is a stable index into Engine.nodes. It never changes once
// assigned, so it survives the node's own box being copied or reallocated.
type NodeId int32

const invalidNode NodeId = -1

type bnode struct {
	leaf bool
	keys [][]byte

	children []NodeId // internal only; len(children) == len(keys)+1

	values [][]byte // leaf only; len(values) == len(keys)
	next   NodeId   // leaf only: next leaf in key order, invalidNode at the end
}

// pathEntry records, for one level of a descent, which node was visited
// and which child index was taken to go one level deeper. It stands in
// for the parent pointer a pointer-based tree would use.
type pathEntry struct {
	id  NodeId
	idx int
}

// Engine is the arena-backed B+Tree backend.
type Engine struct {
	engine.Unsupported
	mu    sync.RWMutex
	nodes []*bnode
	free  []NodeId
	root  NodeId
	order int
	count int

	splits, merges int
}

// New creates an empty B+Tree engine with the default node order.
func New() *Engine { return NewWithOrder(defaultOrder) }

// NewWithOrder creates an empty B+Tree engine bounded to order children
// per internal node (minimum 4).
func NewWithOrder(order int) *Engine {
	if order < 4 {
		order = 4
	}
	e := &Engine{order: order, root: invalidNode}
	e.root = e.alloc(&bnode{leaf: true, next: invalidNode})
	return e
}

func (e *Engine) alloc(n *bnode) NodeId {
	if len(e.free) > 0 {
		id := e.free[len(e.free)-1]
		e.free = e.free[:len(e.free)-1]
		e.nodes[id] = n
		return id
	}
	e.nodes = append(e.nodes, n)
	return NodeId(len(e.nodes) - 1)
}

func (e *Engine) node(id NodeId) *bnode { return e.nodes[id] }

func (e *Engine) freeNode(id NodeId) {
	e.nodes[id] = nil
	e.free = append(e.free, id)
}

func insertAt[T any](s []T, i int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}

// childIndex finds which child covers key: children[i] holds keys strictly
// less than keys[i], and the last child holds keys >= the last separator.
func childIndex(keys [][]byte, key []byte) int {
	i := 0
	for i < len(keys) && bytes.Compare(key, keys[i]) >= 0 {
		i++
	}
	return i
}

// leafInsertIndex returns the position key occupies (or would occupy) in
// an ordered leaf key slice.
func leafInsertIndex(keys [][]byte, key []byte) int {
	i := 0
	for i < len(keys) && bytes.Compare(key, keys[i]) > 0 {
		i++
	}
	return i
}

// descend walks from the root to the leaf that should contain key,
// recording the path taken. Callers must hold e.mu.
func (e *Engine) descend(key []byte) (leaf NodeId, path []pathEntry) {
	id := e.root
	for {
		n := e.node(id)
		if n.leaf {
			return id, path
		}
		idx := childIndex(n.keys, key)
		path = append(path, pathEntry{id: id, idx: idx})
		id = n.children[idx]
	}
}

func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return errs.New(errs.InvalidParam, "Engine.Put", "key must be non-empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	leafID, path := e.descend(key)
	leaf := e.node(leafID)
	i := leafInsertIndex(leaf.keys, key)
	if i < len(leaf.keys) && bytes.Equal(leaf.keys[i], key) {
		leaf.values[i] = value
		return nil
	}

	leaf.keys = insertAt(leaf.keys, i, append([]byte(nil), key...))
	leaf.values = insertAt(leaf.values, i, value)
	e.count++

	if len(leaf.keys) > e.order-1 {
		e.splitLeaf(leafID, path)
	}
	return nil
}

func (e *Engine) Update(key, value []byte) error { return e.Put(key, value) }

func (e *Engine) splitLeaf(id NodeId, path []pathEntry) {
	leaf := e.node(id)
	mid := len(leaf.keys) / 2

	rightKeys := append([][]byte(nil), leaf.keys[mid:]...)
	rightValues := append([][]byte(nil), leaf.values[mid:]...)
	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]

	rightID := e.alloc(&bnode{leaf: true, keys: rightKeys, values: rightValues, next: leaf.next})
	leaf.next = rightID

	sepKey := e.node(rightID).keys[0]
	e.insertIntoParent(id, sepKey, rightID, path)
	e.splits++
}

func (e *Engine) splitInternal(id NodeId, path []pathEntry) {
	n := e.node(id)
	mid := len(n.keys) / 2
	sepKey := n.keys[mid]

	rightKeys := append([][]byte(nil), n.keys[mid+1:]...)
	rightChildren := append([]NodeId(nil), n.children[mid+1:]...)
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	rightID := e.alloc(&bnode{keys: rightKeys, children: rightChildren})
	e.insertIntoParent(id, sepKey, rightID, path)
	e.splits++
}

// insertIntoParent adds a new separator key and right child produced by
// splitting leftID. If leftID was the root, a new root is allocated.
func (e *Engine) insertIntoParent(leftID NodeId, sepKey []byte, rightID NodeId, path []pathEntry) {
	if len(path) == 0 {
		newRoot := &bnode{keys: [][]byte{sepKey}, children: []NodeId{leftID, rightID}}
		e.root = e.alloc(newRoot)
		return
	}
	parentEntry := path[len(path)-1]
	parent := e.node(parentEntry.id)
	idx := parentEntry.idx

	parent.keys = insertAt(parent.keys, idx, sepKey)
	parent.children = insertAt(parent.children, idx+1, rightID)

	if len(parent.keys) > e.order-1 {
		e.splitInternal(parentEntry.id, path[:len(path)-1])
	}
}

func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id := e.root
	for {
		n := e.node(id)
		if n.leaf {
			i := leafInsertIndex(n.keys, key)
			if i < len(n.keys) && bytes.Equal(n.keys[i], key) {
				return n.values[i], nil
			}
			return nil, errs.New(errs.NotFound, "Engine.Get", "")
		}
		id = n.children[childIndex(n.keys, key)]
	}
}

func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	leafID, path := e.descend(key)
	leaf := e.node(leafID)
	i := leafInsertIndex(leaf.keys, key)
	if i >= len(leaf.keys) || !bytes.Equal(leaf.keys[i], key) {
		return errs.New(errs.NotFound, "Engine.Delete", "")
	}
	leaf.keys = removeAt(leaf.keys, i)
	leaf.values = removeAt(leaf.values, i)
	e.count--

	minLeaf := (e.order - 1) / 2
	if leafID != e.root && len(leaf.keys) < minLeaf {
		e.rebalanceLeaf(leafID, path)
	}
	return nil
}

// rebalanceLeaf restores the minimum-occupancy invariant for an
// underflowed leaf by borrowing a key from an adjacent sibling, or, if
// neither sibling has a spare key, merging with one (spec §4: "delete with
// borrow/merge").
func (e *Engine) rebalanceLeaf(id NodeId, path []pathEntry) {
	parentEntry := path[len(path)-1]
	parentID := parentEntry.id
	parent := e.node(parentID)
	idx := parentEntry.idx
	leaf := e.node(id)
	minLeaf := (e.order - 1) / 2

	if idx > 0 {
		left := e.node(parent.children[idx-1])
		if len(left.keys) > minLeaf {
			k := left.keys[len(left.keys)-1]
			v := left.values[len(left.values)-1]
			left.keys = left.keys[:len(left.keys)-1]
			left.values = left.values[:len(left.values)-1]
			leaf.keys = insertAt(leaf.keys, 0, k)
			leaf.values = insertAt(leaf.values, 0, v)
			parent.keys[idx-1] = leaf.keys[0]
			return
		}
	}
	if idx < len(parent.children)-1 {
		right := e.node(parent.children[idx+1])
		if len(right.keys) > minLeaf {
			k := right.keys[0]
			v := right.values[0]
			right.keys = removeAt(right.keys, 0)
			right.values = removeAt(right.values, 0)
			leaf.keys = append(leaf.keys, k)
			leaf.values = append(leaf.values, v)
			parent.keys[idx] = right.keys[0]
			return
		}
	}

	e.merges++
	if idx > 0 {
		leftID := parent.children[idx-1]
		left := e.node(leftID)
		left.keys = append(left.keys, leaf.keys...)
		left.values = append(left.values, leaf.values...)
		left.next = leaf.next
		e.freeNode(id)
		e.removeParentEntry(parentID, idx-1, path[:len(path)-1])
	} else {
		rightID := parent.children[idx+1]
		right := e.node(rightID)
		leaf.keys = append(leaf.keys, right.keys...)
		leaf.values = append(leaf.values, right.values...)
		leaf.next = right.next
		e.freeNode(rightID)
		e.removeParentEntry(parentID, idx, path[:len(path)-1])
	}
}

// removeParentEntry drops the separator at childIdx (keeping
// children[childIdx], discarding children[childIdx+1], the pair a leaf or
// internal merge just collapsed into one node) and shrinks the root, or
// propagates a further rebalance, as needed.
func (e *Engine) removeParentEntry(parentID NodeId, childIdx int, path []pathEntry) {
	parent := e.node(parentID)
	parent.keys = removeAt(parent.keys, childIdx)
	parent.children = removeAt(parent.children, childIdx+1)

	if parentID == e.root {
		if len(parent.children) == 1 {
			e.root = parent.children[0]
			e.freeNode(parentID)
		}
		return
	}

	minInternal := e.order / 2
	if len(parent.children) < minInternal {
		e.rebalanceInternal(parentID, path)
	}
}

func (e *Engine) rebalanceInternal(id NodeId, path []pathEntry) {
	if len(path) == 0 {
		return
	}
	parentEntry := path[len(path)-1]
	parentID := parentEntry.id
	parent := e.node(parentID)
	idx := parentEntry.idx
	n := e.node(id)
	minInternal := e.order / 2

	if idx > 0 {
		left := e.node(parent.children[idx-1])
		if len(left.children) > minInternal {
			sep := parent.keys[idx-1]
			movedChild := left.children[len(left.children)-1]
			movedKey := left.keys[len(left.keys)-1]
			left.children = left.children[:len(left.children)-1]
			left.keys = left.keys[:len(left.keys)-1]
			n.keys = insertAt(n.keys, 0, sep)
			n.children = insertAt(n.children, 0, movedChild)
			parent.keys[idx-1] = movedKey
			return
		}
	}
	if idx < len(parent.children)-1 {
		right := e.node(parent.children[idx+1])
		if len(right.children) > minInternal {
			sep := parent.keys[idx]
			movedChild := right.children[0]
			movedKey := right.keys[0]
			right.children = right.children[1:]
			right.keys = right.keys[1:]
			n.keys = append(n.keys, sep)
			n.children = append(n.children, movedChild)
			parent.keys[idx] = movedKey
			return
		}
	}

	e.merges++
	if idx > 0 {
		leftID := parent.children[idx-1]
		left := e.node(leftID)
		sep := parent.keys[idx-1]
		left.keys = append(left.keys, sep)
		left.keys = append(left.keys, n.keys...)
		left.children = append(left.children, n.children...)
		e.freeNode(id)
		e.removeParentEntry(parentID, idx-1, path[:len(path)-1])
	} else {
		rightID := parent.children[idx+1]
		right := e.node(rightID)
		sep := parent.keys[idx]
		n.keys = append(n.keys, sep)
		n.keys = append(n.keys, right.keys...)
		n.children = append(n.children, right.children...)
		e.freeNode(rightID)
		e.removeParentEntry(parentID, idx, path[:len(path)-1])
	}
}

func (e *Engine) Count() (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(e.count), nil
}

func (e *Engine) MemoryUsage() (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total int64
	for _, n := range e.nodes {
		if n == nil {
			continue
		}
		for _, k := range n.keys {
			total += int64(len(k))
		}
		for _, v := range n.values {
			total += int64(len(v))
		}
	}
	return total, nil
}

func (e *Engine) BatchSet(kvs []engine.KV) error {
	for _, kv := range kvs {
		if err := e.Put(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Height, Splits, and Merges back internal/metrics' B+Tree tagged union
// fields (spec §4.9).
func (e *Engine) Height() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h := 1
	id := e.root
	for {
		n := e.node(id)
		if n.leaf {
			return h
		}
		id = n.children[0]
		h++
	}
}

func (e *Engine) Splits() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.splits
}

func (e *Engine) Merges() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.merges
}

func (e *Engine) Sync() error  { return nil }
func (e *Engine) Flush() error { return nil }

func (e *Engine) Type() engine.Type { return engine.BTree }
func (e *Engine) Close() error      { return nil }
