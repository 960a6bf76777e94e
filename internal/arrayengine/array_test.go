package arrayengine

import "testing"

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

func TestCompactDropsTombstones(t *testing.T) {
	e := New()
	e.Put([]byte("a"), []byte("1"))
	e.Put([]byte("b"), []byte("2"))
	e.Delete([]byte("a"))
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	if len(e.records) != 1 {
		t.Fatalf("expected one surviving record after compact, got %d", len(e.records))
	}
}

func TestCountTracksLiveEntries(t *testing.T) {
	e := New()
	e.Put([]byte("a"), []byte("1"))
	e.Put([]byte("b"), []byte("2"))
	e.Delete([]byte("a"))
	n, err := e.Count()
	if err != nil || n != 1 {
		t.Fatalf("expected count=1, got %d err=%v", n, err)
	}
}
