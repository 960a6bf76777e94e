package sstable

import (
	"fmt"
	"path/filepath"
	"testing"
)

func writeTable(t *testing.T, path string, recs []Record, opts WriterOptions) Meta {
	t.Helper()
	w, err := NewWriter(path, len(recs), opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if err := w.Add(r); err != nil {
			t.Fatal(err)
		}
	}
	meta, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	return meta
}

func sampleRecords(n int) []Record {
	recs := make([]Record, n)
	for i := 0; i < n; i++ {
		recs[i] = Record{
			Key:   []byte(fmt.Sprintf("key-%05d", i)),
			Value: []byte(fmt.Sprintf("value-%d", i)),
			Seq:   uint64(i + 1),
		}
	}
	return recs
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	recs := sampleRecords(500)
	opts := WriterOptions{BlockSize: 256, Compress: true, BloomFalsePositiveRate: 0.01}
	meta := writeTable(t, filepath.Join(dir, "0.sst"), recs, opts)

	if meta.EntryCount != 500 {
		t.Fatalf("expected 500 entries, got %d", meta.EntryCount)
	}

	r, err := Open(filepath.Join(dir, "0.sst"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, want := range recs {
		got, ok, err := r.Get(want.Key)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("missing key %q", want.Key)
		}
		if string(got.Value) != string(want.Value) || got.Seq != want.Seq {
			t.Fatalf("mismatch for %q: got %+v want %+v", want.Key, got, want)
		}
	}
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	recs := sampleRecords(50)
	writeTable(t, filepath.Join(dir, "0.sst"), recs, DefaultWriterOptions())

	r, err := Open(filepath.Join(dir, "0.sst"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, ok, err := r.Get([]byte("nonexistent-key"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestIteratorYieldsSortedOrder(t *testing.T) {
	dir := t.TempDir()
	recs := sampleRecords(300)
	writeTable(t, filepath.Join(dir, "0.sst"), recs, WriterOptions{BlockSize: 512, Compress: false, BloomFalsePositiveRate: 0.01})

	r, err := Open(filepath.Join(dir, "0.sst"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	it := r.Iterator(false)
	count := 0
	var prev []byte
	for it.Next() {
		rec := it.Record()
		if prev != nil && bytesCompare(prev, rec.Key) >= 0 {
			t.Fatalf("iterator out of order: %q then %q", prev, rec.Key)
		}
		prev = append([]byte(nil), rec.Key...)
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if count != len(recs) {
		t.Fatalf("expected %d records, got %d", len(recs), count)
	}
}

func TestIteratorCanIncludeTombstones(t *testing.T) {
	dir := t.TempDir()
	recs := []Record{
		{Key: []byte("a"), Value: []byte("1"), Seq: 1},
		{Key: []byte("b"), Seq: 2, Deleted: true},
		{Key: []byte("c"), Value: []byte("3"), Seq: 3},
	}
	writeTable(t, filepath.Join(dir, "0.sst"), recs, DefaultWriterOptions())

	r, err := Open(filepath.Join(dir, "0.sst"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	withTombstones := 0
	it := r.Iterator(true)
	for it.Next() {
		withTombstones++
	}
	if withTombstones != 3 {
		t.Fatalf("expected 3 records including tombstone, got %d", withTombstones)
	}

	withoutTombstones := 0
	it2 := r.Iterator(false)
	for it2.Next() {
		withoutTombstones++
	}
	if withoutTombstones != 2 {
		t.Fatalf("expected 2 records excluding tombstone, got %d", withoutTombstones)
	}
}

func TestEmptyTableRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.sst")
	w, err := NewWriter(path, 1, DefaultWriterOptions())
	if err != nil {
		t.Fatal(err)
	}
	meta, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if meta.EntryCount != 0 {
		t.Fatalf("expected zero entries, got %d", meta.EntryCount)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.EntryCount() != 0 {
		t.Fatalf("expected EntryCount 0, got %d", r.EntryCount())
	}
	it := r.Iterator(true)
	if it.Next() {
		t.Fatal("expected no records from empty table iterator")
	}
}

func TestAddRejectsOutOfOrderKeys(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "0.sst"), 2, DefaultWriterOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add(Record{Key: []byte("b"), Value: []byte("1"), Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(Record{Key: []byte("a"), Value: []byte("2"), Seq: 2}); err == nil {
		t.Fatal("expected error for out-of-order key")
	}
}

func TestUncompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	recs := sampleRecords(200)
	writeTable(t, filepath.Join(dir, "0.sst"), recs, WriterOptions{BlockSize: 1024, Compress: false, BloomFalsePositiveRate: 0.01})

	r, err := Open(filepath.Join(dir, "0.sst"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, ok, err := r.Get(recs[100].Key)
	if err != nil || !ok {
		t.Fatalf("expected to find key, ok=%v err=%v", ok, err)
	}
	if string(got.Value) != string(recs[100].Value) {
		t.Fatalf("value mismatch: got %q want %q", got.Value, recs[100].Value)
	}
}
