package engine

import (
	"sync"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/logging"
)

// Manager holds one instance per engine Type in a fixed-size array and
// routes operations to whichever is currently active (spec §4.1: "the
// manager holds a fixed-size array indexed by engine type; switching the
// active engine is a single write under a rw-lock"). Operations hold the
// lock for reading only, so routing never copies or blocks on a switch
// that isn't happening.
type Manager struct {
	mu      sync.RWMutex
	engines [numTypes]Engine
	active  Type
	log     *logging.Logger
}

// NewManager creates an empty Manager defaulting to the LSM engine as
// active; Register must be called before SetActive or any operation can
// succeed for a given Type.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{active: LSM, log: log}
}

// Register installs e under its own Type. Registering over an existing
// slot replaces it; callers are responsible for closing the old instance
// first if that matters.
func (m *Manager) Register(e Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[e.Type()] = e
}

// SetActive switches the active engine under an exclusive lock (spec
// §4.1). Sequence numbers are not synchronized across engines (spec §9
// open question): each engine owns its own sequence space, and switching
// never attempts to reconcile them.
func (m *Manager) SetActive(t Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engines[t] == nil {
		return errs.New(errs.InvalidParam, "Manager.SetActive", "engine type "+t.String()+" is not registered")
	}
	old := m.active
	m.active = t
	if m.log != nil {
		m.log.Info("engine switched", logging.String("from", old.String()), logging.String("to", t.String()))
	}
	return nil
}

// Active returns the currently active engine, or nil if nothing is
// registered for that slot yet.
func (m *Manager) Active() Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[m.active]
}

// ActiveType reports which Type is currently active.
func (m *Manager) ActiveType() Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) currentEngine() (Engine, error) {
	m.mu.RLock()
	e := m.engines[m.active]
	m.mu.RUnlock()
	if e == nil {
		return nil, errs.New(errs.InvalidParam, "Manager", "no engine registered for active type")
	}
	return e, nil
}

func (m *Manager) Put(key, value []byte) error {
	e, err := m.currentEngine()
	if err != nil {
		return err
	}
	return e.Put(key, value)
}

func (m *Manager) Get(key []byte) ([]byte, error) {
	e, err := m.currentEngine()
	if err != nil {
		return nil, err
	}
	return e.Get(key)
}

func (m *Manager) Delete(key []byte) error {
	e, err := m.currentEngine()
	if err != nil {
		return err
	}
	return e.Delete(key)
}

func (m *Manager) Update(key, value []byte) error {
	e, err := m.currentEngine()
	if err != nil {
		return err
	}
	return e.Update(key, value)
}

func (m *Manager) Count() (int64, error) {
	e, err := m.currentEngine()
	if err != nil {
		return 0, err
	}
	return e.Count()
}

// Close closes every registered engine, collecting the first error but
// attempting all of them.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, e := range m.engines {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Registered reports whether t has a registered instance, for external
// collaborators (e.g. the CLI's ENGINE command) to feature-detect before
// switching.
func (m *Manager) Registered(t Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[t] != nil
}

// At returns the engine registered for t, or nil. Unlike Active, it does
// not depend on which engine is currently switched in; internal/metrics
// uses it to poll every registered engine's tagged union stats regardless
// of which one is serving traffic.
func (m *Manager) At(t Type) Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[t]
}
