package concurrency

import (
	"testing"
	"time"

	"github.com/concordkv/concordkv/internal/errs"
)

func TestRWMutexExclusion(t *testing.T) {
	m := NewRWMutex()
	if err := m.Lock(time.Second); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		if err := m.Lock(50 * time.Millisecond); errs.KindOf(err) != errs.Timeout {
			t.Errorf("expected timeout, got %v", err)
		}
		close(done)
	}()
	<-done
	m.Unlock()
}

func TestRWMutexReadersConcurrent(t *testing.T) {
	m := NewRWMutex()
	if err := m.RLock(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := m.RLock(time.Second); err != nil {
		t.Fatalf("second RLock should not block: %v", err)
	}
	m.RUnlock()
	m.RUnlock()
}

func TestSpinlockTryLock(t *testing.T) {
	var s Spinlock
	if !s.TryLock() {
		t.Fatal("expected first TryLock to succeed")
	}
	if s.TryLock() {
		t.Fatal("expected second TryLock to fail while held")
	}
	s.Unlock()
	if !s.TryLock() {
		t.Fatal("expected TryLock to succeed after unlock")
	}
}

func TestStripedLockIndependentKeys(t *testing.T) {
	sl := NewStripedLock(16)
	if err := sl.Lock([]byte("a"), time.Second); err != nil {
		t.Fatal(err)
	}
	defer sl.Unlock([]byte("a"))

	// A different key may or may not hash to the same stripe; only assert
	// that locking never panics and releases cleanly either way.
	if err := sl.Lock([]byte("zzz-different"), 50*time.Millisecond); err == nil {
		sl.Unlock([]byte("zzz-different"))
	}
}

func TestStripedLockMultiOrdering(t *testing.T) {
	sl := NewStripedLock(4)
	keys := [][]byte{[]byte("k3"), []byte("k1"), []byte("k2")}
	if err := sl.LockMulti(keys, time.Second); err != nil {
		t.Fatal(err)
	}
	sl.UnlockMulti(keys)
}

func TestDeadlockDetectorTimesOutWaiter(t *testing.T) {
	d := NewDeadlockDetector(nil)
	d.Enter("writer-1")
	time.Sleep(10 * time.Millisecond)
	if err := d.Check(5 * time.Millisecond); errs.KindOf(err) != errs.Timeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	d.Exit("writer-1")
	if d.WaiterCount() != 0 {
		t.Fatal("expected no waiters after exit")
	}
}
