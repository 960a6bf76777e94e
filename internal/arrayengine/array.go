// Package arrayengine implements the unordered-array backend (spec §1:
// "specified only by the common engine contract they must satisfy — their
// internal algorithms are textbook"). Lookups and deletes are linear scans
// over an append-only slice of records; a tombstone marks a deleted key
// rather than shifting the slice, and Compact is the only operation that
// actually reclaims space.
package arrayengine

import (
	"sync"

	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/errs"
)

type record struct {
	key     []byte
	value   []byte
	deleted bool
}

// Engine is the textbook unordered-array backend.
type Engine struct {
	engine.Unsupported
	mu      sync.RWMutex
	records []record
	live    int
	resizes int64
}

// New creates an empty array engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) indexOfLocked(key []byte) int {
	for i := range e.records {
		if string(e.records[i].key) == string(key) {
			return i
		}
	}
	return -1
}

func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return errs.New(errs.InvalidParam, "Engine.Put", "key must be non-empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexOfLocked(key); i >= 0 {
		if e.records[i].deleted {
			e.live++
		}
		e.records[i].value = value
		e.records[i].deleted = false
		return nil
	}
	e.records = append(e.records, record{key: append([]byte(nil), key...), value: value})
	e.live++
	return nil
}

func (e *Engine) Update(key, value []byte) error { return e.Put(key, value) }

func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := e.indexOfLocked(key)
	if i < 0 || e.records[i].deleted {
		return nil, errs.New(errs.NotFound, "Engine.Get", "")
	}
	return e.records[i].value, nil
}

func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOfLocked(key)
	if i < 0 || e.records[i].deleted {
		return errs.New(errs.NotFound, "Engine.Delete", "")
	}
	e.records[i].deleted = true
	e.records[i].value = nil
	e.live--
	return nil
}

func (e *Engine) Count() (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(e.live), nil
}

func (e *Engine) MemoryUsage() (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total int64
	for _, r := range e.records {
		total += int64(len(r.key) + len(r.value))
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

// Compact drops tombstoned slots, the only way an array engine reclaims
// the space a Delete leaves behind.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.records[:0]
	for _, r := range e.records {
		if !r.deleted {
			kept = append(kept, r)
		}
	}
	e.records = kept
	e.resizes++
	return nil
}

// Resizes, Capacity, and Utilization back internal/metrics' array-engine
// tagged union fields.
func (e *Engine) Resizes() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resizes
}

func (e *Engine) Capacity() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(cap(e.records))
}

func (e *Engine) Utilization() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.records) == 0 {
		return 0
	}
	return float64(e.live) / float64(len(e.records))
}

func (e *Engine) Sync() error  { return nil }
func (e *Engine) Flush() error { return nil }

func (e *Engine) Type() engine.Type { return engine.Array }
func (e *Engine) Close() error      { return nil }
