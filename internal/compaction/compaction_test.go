package compaction

import (
	"fmt"
	"testing"
	"time"

	"github.com/concordkv/concordkv/internal/levels"
	"github.com/concordkv/concordkv/internal/memtable"
	"github.com/concordkv/concordkv/internal/sstable"
)

func TestQueueOrdersByPriorityThenFIFO(t *testing.T) {
	var q taskQueue
	q.push(&Task{ID: 1, Priority: PriorityLow})
	q.push(&Task{ID: 2, Priority: PriorityUrgent})
	q.push(&Task{ID: 3, Priority: PriorityNormal})
	q.push(&Task{ID: 4, Priority: PriorityNormal})

	want := []uint64{2, 3, 4, 1}
	for _, w := range want {
		got, ok := q.pop()
		if !ok || got.ID != w {
			t.Fatalf("expected id %d, got %+v ok=%v", w, got, ok)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestSchedulerRunsLevel0Task(t *testing.T) {
	dir := t.TempDir()
	mtMgr := memtable.NewManager(nil, memtable.Config{MemtableMaxSize: 1 << 30, MaxImmutableCount: 4, AutoFreeze: false}, 0)
	if err := mtMgr.Put([]byte("a"), []byte("1"), 1); err != nil {
		t.Fatal(err)
	}
	if err := mtMgr.Put([]byte("b"), []byte("2"), 2); err != nil {
		t.Fatal(err)
	}
	if err := mtMgr.Rotate(2); err != nil {
		t.Fatal(err)
	}
	mt, ok := mtMgr.OldestImmutable()
	if !ok {
		t.Fatal("expected one immutable memtable")
	}

	lvlMgr := levels.NewManager(levels.DefaultConfig())
	exec := NewExecutor(mtMgr, lvlMgr, dir, sstable.DefaultWriterOptions(), 0, nil)
	sched := NewScheduler(2, exec, mtMgr, lvlMgr, nil)
	sched.Start()
	defer sched.Shutdown()

	done := make(chan struct{})
	task := &Task{Type: TypeLevel0, Priority: PriorityHigh, Memtable: mt}
	sched.Enqueue(task)

	go func() {
		for task.Status() == StatusQueued || task.Status() == StatusRunning {
			time.Sleep(5 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for level0 task")
	}

	if task.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %v err=%v", task.Status(), task.Err())
	}
	if len(lvlMgr.Files(0)) != 1 {
		t.Fatalf("expected 1 file at level 0, got %d", len(lvlMgr.Files(0)))
	}
	if mtMgr.ImmutableCount() != 0 {
		t.Fatal("expected the flushed memtable removed from the queue")
	}
}

func writeMergeFile(t *testing.T, dir string, id int, recs []sstable.Record) sstable.Meta {
	t.Helper()
	w, err := sstable.NewWriter(fmt.Sprintf("%s/in%d.sst", dir, id), len(recs), sstable.DefaultWriterOptions())
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

func TestRunLevelNMergesAndDropsShadowedWrites(t *testing.T) {
	dir := t.TempDir()
	lvlMgr := levels.NewManager(levels.DefaultConfig())

	l0 := writeMergeFile(t, dir, 0, []sstable.Record{
		{Key: []byte("a"), Value: []byte("new-a"), Seq: 10},
		{Key: []byte("c"), Value: nil, Seq: 11, Deleted: true},
	})
	lvlMgr.AddSSTable(0, levels.NewFileMeta(100, 0, l0, 0))

	l1 := writeMergeFile(t, dir, 1, []sstable.Record{
		{Key: []byte("a"), Value: []byte("old-a"), Seq: 1},
		{Key: []byte("b"), Value: []byte("b-val"), Seq: 2},
		{Key: []byte("c"), Value: []byte("old-c"), Seq: 3},
	})
	lvlMgr.AddSSTable(1, levels.NewFileMeta(200, 1, l1, 0))

	exec := NewExecutor(nil, lvlMgr, dir, sstable.DefaultWriterOptions(), 1000, nil)
	task := &Task{Type: TypeLevelN, SourceLevel: 0, TargetLevel: 1}
	if err := exec.RunLevelN(task); err != nil {
		t.Fatal(err)
	}

	files := lvlMgr.Files(1)
	if len(files) != 1 {
		t.Fatalf("expected 1 merged output file, got %d", len(files))
	}
	if len(lvlMgr.Files(0)) != 0 {
		t.Fatal("expected level 0 input removed after merge")
	}

	rec, ok, err := lvlMgr.Get([]byte("a"))
	if err != nil || !ok || string(rec.Value) != "new-a" {
		t.Fatalf("expected newest value for a, got %+v ok=%v err=%v", rec, ok, err)
	}
	rec, ok, err = lvlMgr.Get([]byte("b"))
	if err != nil || !ok || string(rec.Value) != "b-val" {
		t.Fatalf("expected b to survive the merge unchanged, got %+v ok=%v err=%v", rec, ok, err)
	}
}

func TestRunLevelNDropsTombstonesAtDeepestLevel(t *testing.T) {
	dir := t.TempDir()
	lvlMgr := levels.NewManager(levels.DefaultConfig())

	src := writeMergeFile(t, dir, 0, []sstable.Record{
		{Key: []byte("x"), Value: nil, Seq: 5, Deleted: true},
	})
	lvlMgr.AddSSTable(levels.MaxLevels-2, levels.NewFileMeta(1, levels.MaxLevels-2, src, 0))

	exec := NewExecutor(nil, lvlMgr, dir, sstable.DefaultWriterOptions(), 10, nil)
	task := &Task{Type: TypeLevelN, SourceLevel: levels.MaxLevels - 2, TargetLevel: levels.MaxLevels - 1}
	if err := exec.RunLevelN(task); err != nil {
		t.Fatal(err)
	}

	if len(lvlMgr.Files(levels.MaxLevels-1)) != 0 {
		t.Fatal("expected the tombstone to be dropped, producing no output file")
	}
}
