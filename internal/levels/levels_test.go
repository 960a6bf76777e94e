package levels

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/concordkv/concordkv/internal/sstable"
)

func writeFile(t *testing.T, dir string, id int, recs []sstable.Record) sstable.Meta {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("%d.sst", id))
	w, err := sstable.NewWriter(path, len(recs), sstable.DefaultWriterOptions())
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

func TestNeedsCompactionLevel0ByFileCount(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(Config{Level0FileLimit: 2, BaseLevelBytes: 1 << 30, Multiplier: 10})

	for i := 0; i < 2; i++ {
		m := writeFile(t, dir, i, []sstable.Record{{Key: []byte(fmt.Sprintf("k%d", i)), Value: []byte("v"), Seq: uint64(i + 1)}})
		mgr.AddSSTable(0, NewFileMeta(uint64(i), 0, m, 0))
	}
	if !mgr.NeedsCompaction(0) {
		t.Fatal("expected level 0 to need compaction at file limit")
	}
}

func TestNeedsCompactionLevelNByBytes(t *testing.T) {
	mgr := NewManager(Config{Level0FileLimit: 100, BaseLevelBytes: 100, Multiplier: 10})
	mgr.AddSSTable(1, &FileMeta{FileID: 1, FileSize: 1000, MinKey: []byte("a"), MaxKey: []byte("b")})
	if !mgr.NeedsCompaction(1) {
		t.Fatal("expected level 1 to need compaction once bytes exceed budget")
	}
}

func TestGetSearchesLevel0NewestFirst(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(DefaultConfig())

	m1 := writeFile(t, dir, 1, []sstable.Record{{Key: []byte("k"), Value: []byte("old"), Seq: 1}})
	mgr.AddSSTable(0, NewFileMeta(1, 0, m1, 0))
	m2 := writeFile(t, dir, 2, []sstable.Record{{Key: []byte("k"), Value: []byte("new"), Seq: 2}})
	mgr.AddSSTable(0, NewFileMeta(2, 0, m2, 0))

	rec, ok, err := mgr.Get([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(rec.Value) != "new" {
		t.Fatalf("expected newest file's value to win, got %q", rec.Value)
	}
}

func TestGetBinarySearchesNonOverlappingLevel(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(DefaultConfig())

	m1 := writeFile(t, dir, 1, []sstable.Record{{Key: []byte("a"), Value: []byte("1"), Seq: 1}, {Key: []byte("b"), Value: []byte("2"), Seq: 1}})
	mgr.AddSSTable(1, NewFileMeta(1, 1, m1, 0))
	m2 := writeFile(t, dir, 2, []sstable.Record{{Key: []byte("x"), Value: []byte("3"), Seq: 1}, {Key: []byte("y"), Value: []byte("4"), Seq: 1}})
	mgr.AddSSTable(1, NewFileMeta(2, 1, m2, 0))

	rec, ok, err := mgr.Get([]byte("y"))
	if err != nil || !ok || string(rec.Value) != "4" {
		t.Fatalf("expected hit value 4, got %+v ok=%v err=%v", rec, ok, err)
	}

	_, ok, err = mgr.Get([]byte("m")) // falls in the gap between files
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss for key in the gap between disjoint files")
	}
}

func TestRemoveSSTableByIdentity(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(DefaultConfig())
	m1 := writeFile(t, dir, 1, []sstable.Record{{Key: []byte("a"), Value: []byte("1"), Seq: 1}})
	meta := NewFileMeta(1, 0, m1, 0)
	mgr.AddSSTable(0, meta)

	if len(mgr.Files(0)) != 1 {
		t.Fatalf("expected 1 file before removal")
	}
	mgr.RemoveSSTable(0, meta)
	if len(mgr.Files(0)) != 0 {
		t.Fatalf("expected 0 files after removal")
	}
}
