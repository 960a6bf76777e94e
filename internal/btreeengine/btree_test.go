package btreeengine

import (
	"fmt"
	"testing"
)

func TestPutGetUpdate(t *testing.T) {
	e := New()
	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := e.Put([]byte("a"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	v, err := e.Get([]byte("a"))
	if err != nil || string(v) != "2" {
		t.Fatalf("expected a=2, got %q err=%v", v, err)
	}
	n, _ := e.Count()
	if n != 1 {
		t.Fatalf("expected count=1 after overwrite, got %d", n)
	}
}

// TestSplitsAndRangeScan forces enough inserts on a small-order tree to
// split repeatedly, then checks the leaf-link list produces every key in
// order.
func TestSplitsAndRangeScan(t *testing.T) {
	e := NewWithOrder(4)
	const n = 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k-%04d", i))
		if err := e.Put(key, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if e.Splits() == 0 {
		t.Fatal("expected at least one split over 200 inserts at order 4")
	}

	it, err := e.CreateIterator()
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	count := 0
	var prev []byte
	for it.Next() {
		if prev != nil && string(it.Key()) <= string(prev) {
			t.Fatalf("iterator not in ascending order: %q then %q", prev, it.Key())
		}
		prev = append([]byte(nil), it.Key()...)
		count++
	}
	if count != n {
		t.Fatalf("expected %d keys from full scan, got %d", n, count)
	}
}

// TestDeleteTriggersMergeAndPreservesReachability deletes most of a small
// tree's keys, forcing leaf and internal merges, and checks every
// surviving key is still reachable afterward.
func TestDeleteTriggersMergeAndPreservesReachability(t *testing.T) {
	e := NewWithOrder(4)
	const n = 100
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("k-%04d", i))
		if err := e.Put(keys[i], []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < n; i += 2 {
		if err := e.Delete(keys[i]); err != nil {
			t.Fatalf("delete %q: %v", keys[i], err)
		}
	}
	if e.Merges() == 0 {
		t.Fatal("expected at least one merge after deleting half the keys")
	}

	for i := 1; i < n; i += 2 {
		if _, err := e.Get(keys[i]); err != nil {
			t.Fatalf("expected %q reachable, got %v", keys[i], err)
		}
	}
	for i := 0; i < n; i += 2 {
		if _, err := e.Get(keys[i]); err == nil {
			t.Fatalf("expected %q gone after delete", keys[i])
		}
	}

	got, _ := e.Count()
	if got != n/2 {
		t.Fatalf("expected count=%d, got %d", n/2, got)
	}
}

func TestRangeScanBounds(t *testing.T) {
	e := New()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		e.Put([]byte(k), []byte(k))
	}
	it, err := e.RangeScan([]byte("b"), []byte("d"))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
