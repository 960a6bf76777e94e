package memtable

import (
	"sync"

	"github.com/concordkv/concordkv/internal/arena"
	"github.com/concordkv/concordkv/internal/errs"
)

// Config governs when the Manager rotates the active MemTable to immutable.
type Config struct {
	// MemtableMaxSize is the approximate-bytes threshold that triggers a
	// freeze-and-rotate after a write.
	MemtableMaxSize int
	// MaxImmutableCount bounds the FIFO immutable queue; once full, writes
	// that would trigger a rotation block until a flush makes room
	// (backpressure, not a dropped write — spec §4.2).
	MaxImmutableCount int
	// AutoFreeze disables automatic rotation when false; callers must call
	// Manager.Rotate explicitly (used by tests and by Flush).
	AutoFreeze bool
}

// DefaultConfig mirrors the teacher's default MemTable sizing.
func DefaultConfig() Config {
	return Config{
		MemtableMaxSize:   4 << 20,
		MaxImmutableCount: 4,
		AutoFreeze:        true,
	}
}

// Manager owns exactly one active MemTable and a bounded FIFO queue of
// frozen immutables awaiting flush (spec §4.2, "MemTable manager").
type Manager struct {
	mu     sync.Mutex
	room   *sync.Cond
	arena  *arena.Arena
	cfg    Config
	active *MemTable
	queue  []*MemTable
	nextID uint64
}

// NewManager creates a Manager with one fresh active MemTable, created at
// startSeq (normally 0, or the sequence recovered from a WAL replay).
func NewManager(a *arena.Arena, cfg Config, startSeq uint64) *Manager {
	m := &Manager{arena: a, cfg: cfg}
	m.room = sync.NewCond(&m.mu)
	m.active = New(a, 0, startSeq)
	return m
}

// Put writes key/value at seq to the active MemTable, rotating to a fresh
// active MemTable if the write crosses the size threshold.
func (m *Manager) Put(key, value []byte, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.active.Put(key, value, seq); err != nil {
		return err
	}
	return m.maybeRotateLocked(seq)
}

// Delete writes a tombstone for key at seq, rotating if needed.
func (m *Manager) Delete(key []byte, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.active.Delete(key, seq); err != nil {
		return err
	}
	return m.maybeRotateLocked(seq)
}

func (m *Manager) maybeRotateLocked(seq uint64) error {
	if !m.cfg.AutoFreeze || m.active.ApproximateBytes() < m.cfg.MemtableMaxSize {
		return nil
	}
	return m.rotateLocked(seq)
}

// rotateLocked freezes the active MemTable and enqueues it, blocking on room
// becoming available if the immutable queue is already at capacity. Callers
// must hold m.mu.
func (m *Manager) rotateLocked(seq uint64) error {
	for len(m.queue) >= m.cfg.MaxImmutableCount {
		m.room.Wait()
	}
	if err := m.active.Freeze(); err != nil {
		return err
	}
	m.queue = append(m.queue, m.active)
	m.nextID++
	m.active = New(m.arena, m.nextID, seq)
	return nil
}

// Rotate forces an immediate freeze-and-rotate of the active MemTable,
// regardless of its size. Used by an explicit flush request.
func (m *Manager) Rotate(seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active.EntryCount() == 0 {
		return nil
	}
	return m.rotateLocked(seq)
}

// Get searches the active MemTable, then the immutable queue newest-first
// (spec §4.2, "the search visits active before immutables and newer
// immutables before older ones"). The first occurrence found is
// authoritative since each MemTable holds at most one entry per key.
func (m *Manager) Get(key []byte) (value []byte, seq uint64, deleted, found bool) {
	m.mu.Lock()
	tables := make([]*MemTable, 0, len(m.queue)+1)
	tables = append(tables, m.active)
	for i := len(m.queue) - 1; i >= 0; i-- {
		tables = append(tables, m.queue[i])
	}
	m.mu.Unlock()

	for _, t := range tables {
		if v, s, d, ok := t.Get(key); ok {
			return v, s, d, true
		}
	}
	return nil, 0, false, false
}

// ImmutableCount returns the number of frozen MemTables awaiting flush.
func (m *Manager) ImmutableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// ActiveApproximateBytes reports the active MemTable's current size.
func (m *Manager) ActiveApproximateBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.ApproximateBytes()
}

// ActiveEntryCount reports the active MemTable's distinct key count,
// tombstones included.
func (m *Manager) ActiveEntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.EntryCount()
}

// OldestImmutable returns the oldest frozen MemTable awaiting flush, without
// removing it from the queue. ok is false if the queue is empty.
func (m *Manager) OldestImmutable() (mt *MemTable, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	return m.queue[0], true
}

// RemoveImmutable removes the MemTable with the given id from the queue, by
// identity. It is idempotent: removing an id no longer present is not an
// error, since another worker may have already removed it (spec §4.5,
// "Remove the specific immutable MemTable... if already removed by another
// worker, continue").
func (m *Manager) RemoveImmutable(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.queue {
		if t.ID() == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.room.Signal()
			return
		}
	}
}

// Flush forces every immutable MemTable to be enqueued (rotating the active
// one first if it holds any entries) and returns the full, idempotent set of
// immutables now awaiting flush. It does not itself write SSTables — that is
// the compaction scheduler's job — it only guarantees nothing durable is
// left stranded in the active MemTable.
func (m *Manager) Flush(seq uint64) ([]*MemTable, error) {
	if err := m.Rotate(seq); err != nil {
		return nil, errs.Wrap(errs.IOError, "Manager.Flush", "force rotate", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MemTable, len(m.queue))
	copy(out, m.queue)
	return out, nil
}
