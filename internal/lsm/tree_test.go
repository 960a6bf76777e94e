package lsm

import (
	"errors"
	"testing"

	"github.com/concordkv/concordkv/internal/errs"
)

func smallOptions(dir string) Options {
	opts := DefaultOptions(dir)
	opts.Memtable.MemtableMaxSize = 4096
	opts.WorkerCount = 1
	return opts
}

func TestBasicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(smallOptions(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if err := tr.Put([]byte("alpha"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Put([]byte("beta"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Delete([]byte("alpha")); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Get([]byte("alpha")); !errors.Is(err, errs.New(errs.NotFound, "", "")) {
		t.Fatalf("expected not_found for alpha, got %v", err)
	}
	v, err := tr.Get([]byte("beta"))
	if err != nil || string(v) != "2" {
		t.Fatalf("expected beta=2, got %q err=%v", v, err)
	}

	payload := make([]byte, 50)
	for i := 0; i < 300; i++ {
		key := []byte("filler-" + string(rune('a'+i%26)) + string(rune(i)))
		if err := tr.Put(key, payload); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(tr.levels.Files(0)) == 0 {
		t.Fatal("expected at least one level 0 file after forced flush")
	}
	v, err = tr.Get([]byte("beta"))
	if err != nil || string(v) != "2" {
		t.Fatalf("expected beta=2 after flush, got %q err=%v", v, err)
	}
}

func TestCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(smallOptions(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Put([]byte("alpha"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Put([]byte("beta"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Delete([]byte("alpha")); err != nil {
		t.Fatal(err)
	}
	// Simulate an unclean shutdown: close only the WAL segment, skip
	// Tree.Close's manifest write and scheduler shutdown.
	if err := tr.wal.Close(); err != nil {
		t.Fatal(err)
	}

	tr2, err := Open(smallOptions(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr2.Close()

	if _, err := tr2.Get([]byte("alpha")); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected not_found for alpha after recovery, got %v", err)
	}
	v, err := tr2.Get([]byte("beta"))
	if err != nil || string(v) != "2" {
		t.Fatalf("expected beta=2 after recovery, got %q err=%v", v, err)
	}
}

func TestAtomicBatchCommitsAllOps(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(smallOptions(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	b := NewBatch(false, false)
	b.Put([]byte("x"), []byte("1"))
	b.Put([]byte("y"), []byte("2"))
	res, err := tr.CommitBatch(b, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 2 {
		t.Fatalf("expected 2 committed, got %d", res.Committed)
	}

	v, err := tr.Get([]byte("x"))
	if err != nil || string(v) != "1" {
		t.Fatalf("expected x=1, got %q err=%v", v, err)
	}
}

func TestBatchDedupKeepsLatest(t *testing.T) {
	b := NewBatch(false, true)
	b.Put([]byte("k"), []byte("1"))
	b.Put([]byte("k"), []byte("2"))
	ops := b.prepared()
	if len(ops) != 1 || string(ops[0].Value) != "2" {
		t.Fatalf("expected single op with latest value, got %+v", ops)
	}
}

func TestSequenceMonotonic(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(smallOptions(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	var last uint64
	for i := 0; i < 10; i++ {
		before := tr.NextSeq()
		if err := tr.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatal(err)
		}
		after := tr.NextSeq()
		if after <= before {
			t.Fatalf("sequence did not advance: before=%d after=%d", before, after)
		}
		last = after
	}
	if last == 0 {
		t.Fatal("expected sequence to have advanced")
	}
}
