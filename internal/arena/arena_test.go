package arena

import "testing"

func TestAllocRoundsUpToClass(t *testing.T) {
	a := New()
	b := a.Alloc(10)
	if cap(b) < 10 {
		t.Fatalf("expected capacity >= 10, got %d", cap(b))
	}
}

func TestAllocOversized(t *testing.T) {
	a := New()
	b := a.Alloc(ClassHuge + 1)
	if cap(b) < ClassHuge+1 {
		t.Fatalf("expected capacity >= %d, got %d", ClassHuge+1, cap(b))
	}
	stats := a.Stats()
	overflow := stats[len(stats)-1]
	if overflow.Allocs != 1 {
		t.Fatalf("expected 1 overflow alloc, got %d", overflow.Allocs)
	}
}

func TestFreeUpdatesStats(t *testing.T) {
	a := New()
	b := a.Alloc(ClassSmall)
	a.Free(b)

	stats := a.Stats()
	var found bool
	for _, s := range stats {
		if s.Size == ClassSmall {
			found = true
			if s.Allocs != 1 || s.Frees != 1 || s.InUse != 0 {
				t.Fatalf("unexpected stats: %+v", s)
			}
		}
	}
	if !found {
		t.Fatal("expected to find ClassSmall stats")
	}
}

func TestLiveBytesTracksOutstandingAllocations(t *testing.T) {
	a := New()
	before := a.LiveBytes()
	b := a.Alloc(ClassMedium)
	if a.LiveBytes() != before+ClassMedium {
		t.Fatalf("expected live bytes to grow by %d", ClassMedium)
	}
	a.Free(b)
	if a.LiveBytes() != before {
		t.Fatalf("expected live bytes to return to baseline, got %d want %d", a.LiveBytes(), before)
	}
}
