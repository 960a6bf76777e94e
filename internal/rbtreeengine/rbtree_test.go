package rbtreeengine

import (
	"fmt"
	"math"
	"testing"
)

func TestPutGetDelete(t *testing.T) {
	e := New()
	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	v, err := e.Get([]byte("a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("expected a=1, got %q err=%v", v, err)
	}
	if err := e.Delete([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Get([]byte("a")); err == nil {
		t.Fatal("expected not_found after delete")
	}
}

// TestBalancedAfterManyInserts checks the red-black height invariant
// (height <= 2*log2(n+1)) holds after a large ordered insert sequence,
// the case a plain unbalanced BST would degenerate on.
func TestBalancedAfterManyInserts(t *testing.T) {
	e := New()
	const n = 1000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		if err := e.Put(key, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	depth := e.Depth()
	limit := int(2*math.Log2(float64(n+1))) + 2
	if depth > limit {
		t.Fatalf("tree depth %d exceeds red-black bound %d for n=%d", depth, limit, n)
	}
}

func TestDeleteMaintainsReachability(t *testing.T) {
	e := New()
	keys := []string{"e", "b", "h", "a", "c", "g", "i", "d", "f"}
	for _, k := range keys {
		e.Put([]byte(k), []byte(k))
	}
	if err := e.Delete([]byte("b")); err != nil {
		t.Fatal(err)
	}
	for _, k := range keys {
		if k == "b" {
			continue
		}
		if _, err := e.Get([]byte(k)); err != nil {
			t.Fatalf("expected %s reachable after deleting b, got %v", k, err)
		}
	}
	n, _ := e.Count()
	if n != int64(len(keys)-1) {
		t.Fatalf("expected count=%d, got %d", len(keys)-1, n)
	}
}
