// Package memtable implements the ordered in-memory write buffer that fronts
// durable storage (spec §4.2): a single MemTable holding (key, value,
// sequence, deleted) triples, plus a Manager that owns one active MemTable
// and a bounded FIFO queue of frozen immutables awaiting flush.
package memtable

import (
	"sort"
	"sync"

	"github.com/concordkv/concordkv/internal/arena"
	"github.com/concordkv/concordkv/internal/errs"
)

// State is a MemTable's position in its one-way lifecycle.
type State int

const (
	StateActive State = iota
	StateFrozen
	StateFlushing
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFrozen:
		return "frozen"
	case StateFlushing:
		return "flushing"
	case StateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Record is one entry returned by Iterator/Scan.
type Record struct {
	Key     []byte
	Value   []byte
	Seq     uint64
	Deleted bool
}

type entry struct {
	key     []byte
	value   []byte
	seq     uint64
	deleted bool
}

// perEntryOverhead approximates the bookkeeping cost (map slot, slice header,
// entry struct) the teacher's MemTable folds into its size estimate.
const perEntryOverhead = 48

// MemTable is an ordered, in-memory key/value buffer. Keys are held in a
// sorted slice rather than a skip-list or balanced tree: Go's standard
// library has neither, and a sorted slice with binary-search insert gives
// the same ordered-iteration guarantee at the scale a single MemTable
// operates at (bounded by memtable_max_size) without pulling in a
// third-party ordered-map implementation the pack never reaches for.
type MemTable struct {
	mu         sync.RWMutex
	arena      *arena.Arena
	id         uint64
	createdSeq uint64
	state      State
	keys       []string
	index      map[string]*entry
	bytes      int
}

// New creates an active MemTable. id identifies it for manager bookkeeping;
// createdSeq is the sequence number in effect when it was created.
func New(a *arena.Arena, id uint64, createdSeq uint64) *MemTable {
	return &MemTable{
		arena:      a,
		id:         id,
		createdSeq: createdSeq,
		state:      StateActive,
		index:      make(map[string]*entry),
	}
}

// ID returns this MemTable's identity, stable across its lifetime.
func (m *MemTable) ID() uint64 { return m.id }

// CreatedSeq returns the sequence number in effect at creation time.
func (m *MemTable) CreatedSeq() uint64 { return m.createdSeq }

// State returns the current lifecycle state.
func (m *MemTable) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetState transitions the MemTable's lifecycle state. Callers (the manager,
// flush workers) are responsible for only moving forward through
// active -> frozen -> flushing -> flushed.
func (m *MemTable) SetState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *MemTable) own(b []byte) []byte {
	if m.arena == nil {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	out := m.arena.Alloc(len(b))
	out = append(out[:0], b...)
	return out
}

// Put inserts or overwrites key with value at sequence seq. Returns
// errs.NotSupported if the MemTable is no longer active.
func (m *MemTable) Put(key, value []byte, seq uint64) error {
	return m.write(key, value, seq, false)
}

// Delete inserts a tombstone for key at sequence seq.
func (m *MemTable) Delete(key []byte, seq uint64) error {
	return m.write(key, nil, seq, true)
}

func (m *MemTable) write(key, value []byte, seq uint64, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return errs.New(errs.NotSupported, "MemTable.write", "memtable is not active")
	}

	keyStr := string(key)
	if existing, ok := m.index[keyStr]; ok {
		m.bytes -= len(existing.value)
		existing.value = nil
		if !deleted {
			existing.value = m.own(value)
			m.bytes += len(existing.value)
		}
		existing.seq = seq
		existing.deleted = deleted
		return nil
	}

	e := &entry{key: m.own(key), seq: seq, deleted: deleted}
	if !deleted {
		e.value = m.own(value)
	}
	m.index[keyStr] = e
	m.insertSorted(keyStr)
	m.bytes += len(e.key) + len(e.value) + perEntryOverhead
	return nil
}

// insertSorted inserts keyStr into the sorted keys slice. Callers must hold
// m.mu for writing.
func (m *MemTable) insertSorted(keyStr string) {
	i := sort.SearchStrings(m.keys, keyStr)
	m.keys = append(m.keys, "")
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = keyStr
}

// Get returns the value, sequence, and tombstone state for key. ok is false
// if the key has never been written to this MemTable.
func (m *MemTable) Get(key []byte) (value []byte, seq uint64, deleted bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, found := m.index[string(key)]
	if !found {
		return nil, 0, false, false
	}
	return e.value, e.seq, e.deleted, true
}

// ApproximateBytes returns the estimated memory footprint of live entries.
func (m *MemTable) ApproximateBytes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bytes
}

// EntryCount returns the number of distinct keys, tombstones included.
func (m *MemTable) EntryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Freeze performs the one-way transition to immutable. A frozen MemTable
// accepts no further writes.
func (m *MemTable) Freeze() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return errs.New(errs.NotSupported, "MemTable.Freeze", "memtable already frozen")
	}
	m.state = StateFrozen
	return nil
}

// Iterator returns every entry in ascending key order. includeTombstones
// controls whether deleted entries are included (compaction needs them;
// point reads through the manager do not).
func (m *MemTable) Iterator(includeTombstones bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.keys))
	for _, k := range m.keys {
		e := m.index[k]
		if e.deleted && !includeTombstones {
			continue
		}
		out = append(out, Record{Key: e.key, Value: e.value, Seq: e.seq, Deleted: e.deleted})
	}
	return out
}

// Scan returns entries with key in [start, end) in ascending order.
func (m *MemTable) Scan(start, end []byte, includeTombstones bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	startStr, endStr := string(start), string(end)
	lo := sort.SearchStrings(m.keys, startStr)

	out := make([]Record, 0)
	for _, k := range m.keys[lo:] {
		if len(endStr) > 0 && k >= endStr {
			break
		}
		e := m.index[k]
		if e.deleted && !includeTombstones {
			continue
		}
		out = append(out, Record{Key: e.key, Value: e.value, Seq: e.seq, Deleted: e.deleted})
	}
	return out
}

// Release returns every entry's key/value bytes to the owning arena. Callers
// must only invoke this once the MemTable has been fully flushed and is no
// longer reachable from any reader.
func (m *MemTable) Release() {
	if m.arena == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		e := m.index[k]
		m.arena.Free(e.key)
		if e.value != nil {
			m.arena.Free(e.value)
		}
	}
}
