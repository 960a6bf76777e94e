package compaction

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/levels"
	"github.com/concordkv/concordkv/internal/logging"
	"github.com/concordkv/concordkv/internal/memtable"
	"github.com/concordkv/concordkv/internal/sstable"
)

// Executor runs the actual work behind a Task: flushing a MemTable to a new
// Level 0 SSTable, or merging a source-level file with its overlapping
// next-level files.
type Executor struct {
	Memtables     *memtable.Manager
	Levels        *levels.Manager
	DataDir       string
	WriterOptions sstable.WriterOptions

	// fileSeq allocates globally unique file IDs. Owned here rather than
	// pulled from a package-global counter so multiple engines (tests,
	// multiple open databases in one process) never collide.
	fileSeq atomic.Uint64

	log *logging.Logger
}

// NewExecutor builds an Executor. startFileID seeds the file-id counter,
// normally 0 or the highest ID recovered from a manifest.
func NewExecutor(mt *memtable.Manager, lv *levels.Manager, dataDir string, opts sstable.WriterOptions, startFileID uint64, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Discard()
	}
	e := &Executor{Memtables: mt, Levels: lv, DataDir: dataDir, WriterOptions: opts, log: log}
	e.fileSeq.Store(startFileID)
	return e
}

// allocPath reserves a unique output path for level, retrying on the rare
// case a filename collides with an existing file (spec §4.6: up to 10
// attempts before giving up).
func (e *Executor) allocPath(level, workerHash int) (id uint64, path string, err error) {
	for attempt := 0; attempt < 10; attempt++ {
		id = e.fileSeq.Add(1)
		name := fmt.Sprintf("level_%d_%d_%x_%d.sst", level, id, workerHash, time.Now().UnixNano())
		path = filepath.Join(e.DataDir, name)
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return id, path, nil
		}
	}
	return 0, "", errs.New(errs.IOError, "Executor.allocPath", "could not allocate a unique sstable filename after 10 attempts")
}

// RunLevel0 flushes a frozen MemTable to a new Level 0 SSTable (spec §4.6,
// steps 1-7).
func (e *Executor) RunLevel0(t *Task) error {
	mt := t.Memtable
	if mt == nil {
		return errs.New(errs.InvalidParam, "Executor.RunLevel0", "task has no target memtable")
	}

	if mt.EntryCount() == 0 {
		e.Memtables.RemoveImmutable(mt.ID())
		t.bytesWritten = 0
		return nil
	}

	fileID, path, err := e.allocPath(0, int(mt.ID()))
	if err != nil {
		return err
	}

	w, err := sstable.NewWriter(path, mt.EntryCount(), e.WriterOptions)
	if err != nil {
		return errs.Wrap(errs.IOError, "Executor.RunLevel0", "create writer", err)
	}

	for _, r := range mt.Iterator(true) {
		rec := sstable.Record{Key: r.Key, Value: r.Value, Seq: r.Seq, Deleted: r.Deleted}
		if err := w.Add(rec); err != nil {
			w.Abort()
			return errs.Wrap(errs.IOError, "Executor.RunLevel0", "write entry", err)
		}
	}

	meta, err := w.Finalize()
	if err != nil {
		return errs.Wrap(errs.IOError, "Executor.RunLevel0", "finalize", err)
	}

	// Open the freshly written file once before registering it, so a
	// corrupt flush is caught here rather than surfacing at the next read.
	reader, err := sstable.Open(meta.Path)
	if err != nil {
		return errs.Wrap(errs.IOError, "Executor.RunLevel0", "validate written file", err)
	}
	reader.Close()

	fm := levels.NewFileMeta(fileID, 0, meta, time.Now().UnixNano())
	if err := e.Levels.AddSSTable(0, fm); err != nil {
		return err
	}

	e.Memtables.RemoveImmutable(mt.ID())
	mt.Release()

	t.bytesWritten = meta.FileSize
	e.log.Info("flushed memtable to level 0", logging.Uint64("memtable_id", mt.ID()), logging.Path(meta.Path), logging.Int64("bytes", meta.FileSize))
	return nil
}

// RunMajor runs a full compaction pass over every level that currently
// needs it, oldest level first. Used for operator-requested maintenance,
// not the automatic trigger path.
func (e *Executor) RunMajor(t *Task) error {
	for lvl := 0; lvl < levels.MaxLevels-1; lvl++ {
		if !e.Levels.NeedsCompaction(lvl) {
			continue
		}
		sub := &Task{SourceLevel: lvl, TargetLevel: lvl + 1}
		if err := e.RunLevelN(sub); err != nil {
			return err
		}
	}
	return nil
}
