package txn

import (
	"testing"
)

type fakeTarget struct {
	kv map[string][]byte
}

func newFakeTarget() *fakeTarget { return &fakeTarget{kv: map[string][]byte{}} }

func (f *fakeTarget) Put(key, value []byte) error {
	f.kv[string(key)] = append([]byte(nil), value...)
	return nil
}

func (f *fakeTarget) Delete(key []byte) error {
	delete(f.kv, string(key))
	return nil
}

func TestPrepareCommitApplies(t *testing.T) {
	dir := t.TempDir()
	target := newFakeTarget()

	p, inDoubt, err := Open(dir, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if len(inDoubt) != 0 {
		t.Fatalf("expected no in-doubt transactions on fresh journal, got %d", len(inDoubt))
	}

	txn := p.Begin()
	if err := txn.Put([]byte("alpha"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := txn.Delete([]byte("beta")); err != nil {
		t.Fatal(err)
	}

	if err := p.Prepare(txn); err != nil {
		t.Fatal(err)
	}
	if txn.State() != Prepared {
		t.Fatalf("expected Prepared, got %v", txn.State())
	}

	if err := p.Commit(txn); err != nil {
		t.Fatal(err)
	}
	if txn.State() != Committed {
		t.Fatalf("expected Committed, got %v", txn.State())
	}
	if string(target.kv["alpha"]) != "1" {
		t.Fatalf("expected committed put to apply, got %+v", target.kv)
	}
	if p.Active() != 0 {
		t.Fatalf("expected 0 active after commit, got %d", p.Active())
	}
}

func TestRollbackDiscardsOps(t *testing.T) {
	dir := t.TempDir()
	target := newFakeTarget()
	p, _, err := Open(dir, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	txn := p.Begin()
	_ = txn.Put([]byte("gamma"), []byte("3"))
	if err := p.Prepare(txn); err != nil {
		t.Fatal(err)
	}
	if err := p.Rollback(txn); err != nil {
		t.Fatal(err)
	}
	if _, ok := target.kv["gamma"]; ok {
		t.Fatal("rollback must not apply staged ops")
	}
}

func TestRecoverInDoubtAfterPrepareCrash(t *testing.T) {
	dir := t.TempDir()
	target := newFakeTarget()

	p1, _, err := Open(dir, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	txn := p1.Begin()
	_ = txn.Put([]byte("delta"), []byte("4"))
	if err := p1.Prepare(txn); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash: close without Commit/Rollback.
	p1.Close()

	p2, inDoubt, err := Open(dir, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()
	if len(inDoubt) != 1 || inDoubt[0].ID != txn.ID {
		t.Fatalf("expected the prepared txn to recover as in-doubt, got %+v", inDoubt)
	}

	if err := p2.Commit(inDoubt[0]); err != nil {
		t.Fatal(err)
	}
	if string(target.kv["delta"]) != "4" {
		t.Fatal("expected recovered commit to apply staged op")
	}
}
