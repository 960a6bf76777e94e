package cache

import "testing"

// TestLRUEvictionOrder covers spec §8 scenario 5: max_entries=3, sequence
// set(a),set(b),set(c),get(a),set(d) -> a and c and d present, b evicted.
func TestLRUEvictionOrder(t *testing.T) {
	c := New(Options{Policy: LRU, MaxEntries: 3, EvictionFactor: 1.0 / 3, MinEvictionCount: 1, MaxEvictionCount: 1})
	defer c.Close()

	must(t, c.Set("a", []byte("1"), 0))
	must(t, c.Set("b", []byte("2"), 0))
	must(t, c.Set("c", []byte("3"), 0))
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a present before eviction")
	}
	must(t, c.Set("d", []byte("4"), 0))

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b evicted as least recently used")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %s present after eviction", k)
		}
	}
	if err := c.CheckIntegrity(); err != nil {
		t.Fatal(err)
	}
}

// TestARCAdaptation covers spec §8 scenario 6: max_entries=4, workload
// a b c d a b c d e; verifies |T1|+|T2| <= 4 throughout and that repeated
// access of a promotes it out of T1 into T2.
func TestARCAdaptation(t *testing.T) {
	c := New(Options{Policy: ARC, MaxEntries: 4, EvictionFactor: 0.25, MinEvictionCount: 1, MaxEvictionCount: 1})
	defer c.Close()

	workload := []string{"a", "b", "c", "d", "a", "b", "c", "d", "e"}
	for _, k := range workload {
		if _, ok := c.Get(k); !ok {
			must(t, c.Set(k, []byte(k), 0))
		}
		if got := c.arc.t1.len() + c.arc.t2.len(); got > 4 {
			t.Fatalf("|T1|+|T2|=%d exceeds max_entries after key %q", got, k)
		}
	}

	if err := c.CheckIntegrity(); err != nil {
		t.Fatal(err)
	}

	aEntry, ok := c.index["a"]
	if !ok {
		t.Fatal("expected a still resident")
	}
	if aEntry.arcList != arcT2 {
		t.Fatalf("expected a promoted to T2 after repeat access, got %v", aEntry.arcList)
	}
}

// TestFIFODoesNotReorderOnAccess covers FIFO's "access does not reorder"
// rule (spec §4.8), distinguishing it from LRU with the same workload.
func TestFIFODoesNotReorderOnAccess(t *testing.T) {
	c := New(Options{Policy: FIFO, MaxEntries: 3, EvictionFactor: 1.0 / 3, MinEvictionCount: 1, MaxEvictionCount: 1})
	defer c.Close()

	must(t, c.Set("a", []byte("1"), 0))
	must(t, c.Set("b", []byte("2"), 0))
	must(t, c.Set("c", []byte("3"), 0))
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a present before eviction")
	}
	must(t, c.Set("d", []byte("4"), 0))

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a evicted: FIFO ignores the intervening access")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %s present", k)
		}
	}
}

func TestCacheNonPositiveTTLMeansNoExpiry(t *testing.T) {
	c := New(Options{Policy: LRU, MaxEntries: 10})
	defer c.Close()
	must(t, c.Set("k", []byte("v"), -1))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected k present with no ttl")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
