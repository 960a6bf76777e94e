package memtable

import (
	"sync"
	"testing"
	"time"

	"github.com/concordkv/concordkv/internal/arena"
)

func TestPutGetOrdering(t *testing.T) {
	mt := New(arena.New(), 0, 0)
	mt.Put([]byte("beta"), []byte("2"), 2)
	mt.Put([]byte("alpha"), []byte("1"), 1)

	recs := mt.Iterator(false)
	if len(recs) != 2 || string(recs[0].Key) != "alpha" || string(recs[1].Key) != "beta" {
		t.Fatalf("expected sorted [alpha beta], got %+v", recs)
	}
}

func TestPutOverwriteReplacesValue(t *testing.T) {
	mt := New(arena.New(), 0, 0)
	mt.Put([]byte("k"), []byte("v1"), 1)
	mt.Put([]byte("k"), []byte("v2"), 2)

	v, seq, deleted, ok := mt.Get([]byte("k"))
	if !ok || string(v) != "v2" || seq != 2 || deleted {
		t.Fatalf("unexpected entry: %q %d %v %v", v, seq, deleted, ok)
	}
	if mt.EntryCount() != 1 {
		t.Fatalf("expected one entry after overwrite, got %d", mt.EntryCount())
	}
}

func TestDeleteInsertsTombstone(t *testing.T) {
	mt := New(arena.New(), 0, 0)
	mt.Put([]byte("k"), []byte("v"), 1)
	mt.Delete([]byte("k"), 2)

	_, seq, deleted, ok := mt.Get([]byte("k"))
	if !ok || !deleted || seq != 2 {
		t.Fatalf("expected tombstone at seq 2, got deleted=%v seq=%d ok=%v", deleted, seq, ok)
	}
}

func TestFreezeRejectsWrites(t *testing.T) {
	mt := New(arena.New(), 0, 0)
	if err := mt.Freeze(); err != nil {
		t.Fatal(err)
	}
	if err := mt.Put([]byte("k"), []byte("v"), 1); err == nil {
		t.Fatal("expected write to frozen memtable to fail")
	}
}

func TestScanRange(t *testing.T) {
	mt := New(arena.New(), 0, 0)
	for i, k := range []string{"a", "b", "c", "d"} {
		mt.Put([]byte(k), []byte("v"), uint64(i+1))
	}
	recs := mt.Scan([]byte("b"), []byte("d"), false)
	if len(recs) != 2 || string(recs[0].Key) != "b" || string(recs[1].Key) != "c" {
		t.Fatalf("expected [b c], got %+v", recs)
	}
}

func TestManagerGetSearchesNewestFirst(t *testing.T) {
	a := arena.New()
	mgr := NewManager(a, Config{MemtableMaxSize: 1 << 30, MaxImmutableCount: 4, AutoFreeze: false}, 0)
	mgr.Put([]byte("k"), []byte("old"), 1)
	mgr.Rotate(2)
	mgr.Put([]byte("k"), []byte("new"), 3)

	v, seq, _, ok := mgr.Get([]byte("k"))
	if !ok || string(v) != "new" || seq != 3 {
		t.Fatalf("expected active value to win, got %q seq=%d ok=%v", v, seq, ok)
	}
}

func TestManagerRotatesOnSizeThreshold(t *testing.T) {
	a := arena.New()
	mgr := NewManager(a, Config{MemtableMaxSize: 1, MaxImmutableCount: 4, AutoFreeze: true}, 0)
	mgr.Put([]byte("k"), []byte("v"), 1)
	if mgr.ImmutableCount() != 1 {
		t.Fatalf("expected one immutable after crossing size threshold, got %d", mgr.ImmutableCount())
	}
}

func TestManagerBackpressureBlocksUntilRoom(t *testing.T) {
	a := arena.New()
	mgr := NewManager(a, Config{MemtableMaxSize: 1, MaxImmutableCount: 1, AutoFreeze: true}, 0)
	mgr.Put([]byte("a"), []byte("v"), 1) // fills the one immutable slot

	var wg sync.WaitGroup
	wg.Add(1)
	blocked := make(chan struct{})
	go func() {
		defer wg.Done()
		close(blocked)
		mgr.Put([]byte("b"), []byte("v"), 2) // should block until RemoveImmutable
	}()
	<-blocked
	time.Sleep(20 * time.Millisecond)
	if mgr.ImmutableCount() != 1 {
		t.Fatalf("expected writer to still be blocked with queue full")
	}

	oldest, ok := mgr.OldestImmutable()
	if !ok {
		t.Fatal("expected an oldest immutable")
	}
	mgr.RemoveImmutable(oldest.ID())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer never unblocked after room freed")
	}
}

func TestRemoveImmutableIsIdempotent(t *testing.T) {
	a := arena.New()
	mgr := NewManager(a, Config{MemtableMaxSize: 1, MaxImmutableCount: 4, AutoFreeze: true}, 0)
	mgr.Put([]byte("a"), []byte("v"), 1)
	oldest, _ := mgr.OldestImmutable()
	mgr.RemoveImmutable(oldest.ID())
	mgr.RemoveImmutable(oldest.ID()) // must not panic or double-signal incorrectly
	if mgr.ImmutableCount() != 0 {
		t.Fatalf("expected 0 immutables, got %d", mgr.ImmutableCount())
	}
}
