// Package hashengine implements the chained hash table backend (spec §1:
// specified only by the common engine contract). Buckets are singly
// linked chains of records; the table rehashes to double its bucket count
// once the load factor crosses a fixed threshold, the textbook approach
// to keeping chain length bounded.
package hashengine

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/errs"
)

const (
	initialBuckets  = 16
	maxLoadFactor   = 0.75
	growthFactor    = 2
)

type node struct {
	key   []byte
	value []byte
	next  *node
}

// Engine is the chained hash table backend.
type Engine struct {
	engine.Unsupported
	mu         sync.RWMutex
	buckets    []*node
	count      int
	rehash     int
	collisions int64
}

// New creates an empty hash engine.
func New() *Engine {
	return &Engine{buckets: make([]*node, initialBuckets)}
}

func bucketIndex(key []byte, n int) int {
	return int(xxhash.Sum64(key) % uint64(n))
}

func (e *Engine) maybeRehashLocked() {
	if float64(e.count)/float64(len(e.buckets)) <= maxLoadFactor {
		return
	}
	newBuckets := make([]*node, len(e.buckets)*growthFactor)
	for _, head := range e.buckets {
		for n := head; n != nil; {
			next := n.next
			idx := bucketIndex(n.key, len(newBuckets))
			n.next = newBuckets[idx]
			newBuckets[idx] = n
			n = next
		}
	}
	e.buckets = newBuckets
	e.rehash++
}

func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return errs.New(errs.InvalidParam, "Engine.Put", "key must be non-empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := bucketIndex(key, len(e.buckets))
	for n := e.buckets[idx]; n != nil; n = n.next {
		if string(n.key) == string(key) {
			n.value = value
			return nil
		}
	}
	if e.buckets[idx] != nil {
		e.collisions++
	}
	e.buckets[idx] = &node{key: append([]byte(nil), key...), value: value, next: e.buckets[idx]}
	e.count++
	e.maybeRehashLocked()
	return nil
}

func (e *Engine) Update(key, value []byte) error { return e.Put(key, value) }

func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx := bucketIndex(key, len(e.buckets))
	for n := e.buckets[idx]; n != nil; n = n.next {
		if string(n.key) == string(key) {
			return n.value, nil
		}
	}
	return nil, errs.New(errs.NotFound, "Engine.Get", "")
}

func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := bucketIndex(key, len(e.buckets))
	var prev *node
	for n := e.buckets[idx]; n != nil; n = n.next {
		if string(n.key) == string(key) {
			if prev == nil {
				e.buckets[idx] = n.next
			} else {
				prev.next = n.next
			}
			e.count--
			return nil
		}
		prev = n
	}
	return errs.New(errs.NotFound, "Engine.Delete", "")
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
	for _, head := range e.buckets {
		for n := head; n != nil; n = n.next {
			total += int64(len(n.key) + len(n.value))
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

// LoadFactor and RehashCount back internal/metrics' hash-engine tagged
// union fields (collisions, load factor, rehashes).
func (e *Engine) LoadFactor() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return float64(e.count) / float64(len(e.buckets))
}

func (e *Engine) RehashCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rehash
}

func (e *Engine) Collisions() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collisions
}

func (e *Engine) Sync() error  { return nil }
func (e *Engine) Flush() error { return nil }

func (e *Engine) Type() engine.Type { return engine.Hash }
func (e *Engine) Close() error      { return nil }
