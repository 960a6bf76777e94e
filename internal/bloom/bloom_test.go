package bloom

import (
	"fmt"
	"math/rand"
	"testing"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		f.Add(keys[i])
	}
	for _, k := range keys {
		if !f.MayContain(k) {
			t.Fatalf("false negative for %q", k)
		}
	}
}

func TestFalsePositiveRateWithinFactorOfTwo(t *testing.T) {
	const n = 10_000
	const fp = 0.01
	f := New(n, fp)

	rnd := rand.New(rand.NewSource(1))
	inserted := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		k := randomKey(rnd, 16)
		inserted[string(k)] = true
		f.Add(k)
	}

	const trials = 20_000
	falsePositives := 0
	for i := 0; i < trials; i++ {
		k := randomKey(rnd, 16)
		if inserted[string(k)] {
			continue
		}
		if f.MayContain(k) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	if rate > fp*2 {
		t.Fatalf("false positive rate %.4f exceeds 2x target %.4f", rate, fp)
	}
}

func TestMergeRejectsIncompatible(t *testing.T) {
	a := New(100, 0.01)
	b := New(200, 0.01)
	if err := a.Merge(b); err == nil {
		t.Fatal("expected merge of differently-sized filters to fail")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	f := New(100, 0.01)
	f.Add([]byte("hello"))
	data := f.MarshalBinary()

	g := NewSeeded(100, 0.01, f.Seed())
	if err := g.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if !g.MayContain([]byte("hello")) {
		t.Fatal("round-tripped filter lost membership")
	}
}

func TestUnmarshalLengthMismatchIsCorrupted(t *testing.T) {
	f := New(100, 0.01)
	if err := f.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected corruption error for mismatched length")
	}
}

func randomKey(rnd *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rnd.Read(b)
	return b
}
