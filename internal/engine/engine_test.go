package engine

import (
	"testing"

	"github.com/concordkv/concordkv/internal/cache"
	"github.com/concordkv/concordkv/internal/errs"
)

// fakeEngine is a minimal in-memory Engine used to test Manager and
// CachedEngine without pulling in a real backend.
type fakeEngine struct {
	Unsupported
	kv    map[string][]byte
	typ   Type
	reads int
}

func newFakeEngine(t Type) *fakeEngine {
	return &fakeEngine{kv: map[string][]byte{}, typ: t}
}

func (f *fakeEngine) Put(key, value []byte) error {
	f.kv[string(key)] = append([]byte(nil), value...)
	return nil
}

func (f *fakeEngine) Get(key []byte) ([]byte, error) {
	f.reads++
	v, ok := f.kv[string(key)]
	if !ok {
		return nil, errs.New(errs.NotFound, "fakeEngine.Get", "missing key")
	}
	return v, nil
}

func (f *fakeEngine) Delete(key []byte) error {
	delete(f.kv, string(key))
	return nil
}

func (f *fakeEngine) Update(key, value []byte) error { return f.Put(key, value) }
func (f *fakeEngine) Count() (int64, error)          { return int64(len(f.kv)), nil }
func (f *fakeEngine) MemoryUsage() (int64, error)    { return 0, nil }
func (f *fakeEngine) Type() Type                     { return f.typ }
func (f *fakeEngine) Close() error                   { return nil }

func TestManagerRoutesToActiveEngine(t *testing.T) {
	mgr := NewManager(nil)
	mgr.Register(newFakeEngine(Array))
	mgr.Register(newFakeEngine(Hash))

	if err := mgr.SetActive(Array); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	if err := mgr.SetActive(Hash); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Get([]byte("k")); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("expected not_found on the other engine's empty store, got %v", err)
	}
}

func TestManagerSetActiveUnregisteredFails(t *testing.T) {
	mgr := NewManager(nil)
	if err := mgr.SetActive(LSM); errs.KindOf(err) != errs.InvalidParam {
		t.Fatalf("expected invalid_param switching to an unregistered engine, got %v", err)
	}
}

func TestCachedEngineServesHitsWithoutTouchingWrapped(t *testing.T) {
	backend := newFakeEngine(LSM)
	c := cache.New(cache.Options{Policy: cache.LRU, MaxEntries: 10, MaxBytes: 1 << 20, EvictionFactor: 0.1, MinEvictionCount: 1, MaxEvictionCount: 10})
	ce := NewCachedEngine(backend, c)
	defer ce.Close()

	if err := ce.Put([]byte("alpha"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := ce.Get([]byte("alpha")); err != nil {
		t.Fatal(err)
	}
	readsAfterFirst := backend.reads
	if readsAfterFirst != 1 {
		t.Fatalf("expected the first Get to fall through to the backend, got %d reads", readsAfterFirst)
	}

	if v, err := ce.Get([]byte("alpha")); err != nil || string(v) != "1" {
		t.Fatalf("expected cached hit to return 1, got %q, %v", v, err)
	}
	if backend.reads != readsAfterFirst {
		t.Fatalf("expected the second Get to be served from cache, backend reads grew to %d", backend.reads)
	}
}

func TestCachedEngineInvalidatesOnWrite(t *testing.T) {
	backend := newFakeEngine(LSM)
	c := cache.New(cache.Options{Policy: cache.LRU, MaxEntries: 10, MaxBytes: 1 << 20, EvictionFactor: 0.1, MinEvictionCount: 1, MaxEvictionCount: 10})
	ce := NewCachedEngine(backend, c)
	defer ce.Close()

	if err := ce.Put([]byte("k"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := ce.Get([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := ce.Put([]byte("k"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	v, err := ce.Get([]byte("k"))
	if err != nil || string(v) != "2" {
		t.Fatalf("expected post-write read to observe the new value, got %q, %v", v, err)
	}
}
