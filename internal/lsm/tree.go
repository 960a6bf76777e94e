// Package lsm composes the MemTable manager, WAL, level manager, and
// compaction scheduler behind the engine contract (spec §4.7, "LSM tree
// top"). It is the direct generalization of the teacher's
// pkg/lsm/lsm.go + pkg/lsm/lsm_workers.go: the same shared/exclusive
// tree-lock discipline and background-worker wiring, now over the
// block-exact SSTable format and levelled compaction this package's
// siblings implement.
package lsm

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/concordkv/concordkv/internal/arena"
	"github.com/concordkv/concordkv/internal/compaction"
	"github.com/concordkv/concordkv/internal/concurrency"
	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/levels"
	"github.com/concordkv/concordkv/internal/logging"
	"github.com/concordkv/concordkv/internal/memtable"
	"github.com/concordkv/concordkv/internal/sstable"
	"github.com/concordkv/concordkv/internal/wal"
)

// Limits on key/value size (spec §3: "Max key ~64 KiB, max value ~16 MiB").
const (
	DefaultMaxKeySize   = 64 << 10
	DefaultMaxValueSize = 16 << 20
)

// defaultLockTimeout bounds how long a Tree operation waits on the tree-lock
// before failing with errs.Timeout, giving Tree the cancellation/timeout
// semantics spec §5 describes for the lock primitives rather than blocking
// forever on a stuck holder.
const defaultLockTimeout = 30 * time.Second

// Options configures a Tree end to end.
type Options struct {
	DataDir      string
	MaxKeySize   int
	MaxValueSize int
	SyncWrites   bool
	WorkerCount  int

	Memtable memtable.Config
	Levels   levels.Config
	WAL      wal.Options
	Writer   sstable.WriterOptions
}

// DefaultOptions mirrors the teacher's LSMOptions/DefaultLSMOptions shape,
// scaled to this package's richer level/compaction/WAL configuration.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:      dataDir,
		MaxKeySize:   DefaultMaxKeySize,
		MaxValueSize: DefaultMaxValueSize,
		SyncWrites:   false,
		WorkerCount:  2,
		Memtable:     memtable.DefaultConfig(),
		Levels:       levels.DefaultConfig(),
		WAL:          wal.DefaultOptions(),
		Writer:       sstable.DefaultWriterOptions(),
	}
}

// Tree is the LSM engine top: it owns the WAL, the MemTable manager, the
// level manager, and the compaction scheduler, and exposes the single
// shared/exclusive tree-lock spec §4.7 describes ("Acquire shared
// tree-lock... assign the next sequence").
type Tree struct {
	mu   *concurrency.RWMutex
	opts Options
	log  *logging.Logger

	arena     *arena.Arena
	wal       *wal.WAL
	memtables *memtable.Manager
	levels    *levels.Manager
	executor  *compaction.Executor
	scheduler *compaction.Scheduler

	seq    atomic.Uint64
	closed bool
}

// Open opens (or creates) an LSM tree rooted at opts.DataDir, replaying its
// WAL to recover any mutation acknowledged but not yet flushed (spec §4.3,
// "Replay"), and reconstructing the level manager by scanning the data
// directory for SSTable files, skipping any that fail to open rather than
// aborting the whole recovery (spec §8 scenario 3).
func Open(opts Options, log *logging.Logger) (*Tree, error) {
	if opts.MaxKeySize <= 0 {
		opts.MaxKeySize = DefaultMaxKeySize
	}
	if opts.MaxValueSize <= 0 {
		opts.MaxValueSize = DefaultMaxValueSize
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 2
	}
	if log == nil {
		log = logging.Discard()
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, "lsm.Open", opts.DataDir, err)
	}

	t := &Tree{opts: opts, log: log, arena: arena.New(), levels: levels.NewManager(opts.Levels), mu: concurrency.NewRWMutex()}

	var nextFileID uint64
	if m, ok, err := readManifest(opts.DataDir); err != nil {
		log.Warn("manifest unreadable, falling back to directory scan", logging.Err(err))
	} else if ok {
		nextFileID = m.NextFileID
	}

	maxSeqFromFiles, err := t.rebuildLevelsFromDisk()
	if err != nil {
		return nil, err
	}

	walDir := filepath.Join(opts.DataDir, "wal")
	w, err := wal.Open(walDir, opts.WAL)
	if err != nil {
		return nil, err
	}
	t.wal = w

	t.memtables = memtable.NewManager(t.arena, opts.Memtable, maxSeqFromFiles+1)

	maxSeqFromWAL, err := w.Replay(func(rec wal.Record) error {
		switch rec.Type {
		case wal.RecordPut:
			return t.memtables.Put(rec.Key, rec.Value, rec.Seq)
		case wal.RecordDelete:
			return t.memtables.Delete(rec.Key, rec.Seq)
		case wal.RecordCheckpoint, wal.RecordCommit:
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	startSeq := maxSeqFromFiles
	if maxSeqFromWAL > startSeq {
		startSeq = maxSeqFromWAL
	}
	t.seq.Store(startSeq + 1)

	if nextFileID <= startSeq {
		nextFileID = startSeq + 1
	}
	// Never hand out a file ID that a recovered SSTable already uses.
	for lvl := 0; lvl < levels.MaxLevels; lvl++ {
		for _, f := range t.levels.Files(lvl) {
			if f.FileID >= nextFileID {
				nextFileID = f.FileID
			}
		}
	}
	t.executor = compaction.NewExecutor(t.memtables, t.levels, opts.DataDir, opts.Writer, nextFileID, log)
	t.scheduler = compaction.NewScheduler(opts.WorkerCount, t.executor, t.memtables, t.levels, log)
	t.scheduler.Start()

	return t, nil
}

// rebuildLevelsFromDisk scans opts.DataDir for files named
// level_<n>_<id>_<hash>_<ts>.sst (the Executor's naming scheme) and
// registers every one that opens cleanly with the level manager. A file
// that fails to open (spec §8 scenario 3: corrupted footer) is logged and
// skipped rather than aborting Open. It returns the highest sequence number
// observed across every successfully opened file.
func (t *Tree) rebuildLevelsFromDisk() (uint64, error) {
	entries, err := os.ReadDir(t.opts.DataDir)
	if err != nil {
		return 0, errs.Wrap(errs.IOError, "lsm.rebuildLevelsFromDisk", t.opts.DataDir, err)
	}
	// Register files in file-ID order so Level 0 comes back newest-last;
	// ReadDir's name order would put level_0_10_... before level_0_9_....
	sort.Slice(entries, func(i, j int) bool {
		_, a, _ := parseSSTableName(entries[i].Name())
		_, b, _ := parseSSTableName(entries[j].Name())
		return a < b
	})

	var maxSeq uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sst") {
			continue
		}
		level, fileID, ok := parseSSTableName(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(t.opts.DataDir, e.Name())
		r, err := sstable.Open(path)
		if err != nil {
			t.log.Warn("skipping unreadable sstable during recovery", logging.Path(path), logging.Err(err))
			continue
		}
		info, statErr := os.Stat(path)
		var size int64
		if statErr == nil {
			size = info.Size()
		}
		meta := sstable.Meta{
			Path:       path,
			FileSize:   size,
			EntryCount: r.EntryCount(),
			MinSeq:     r.MinSeq(),
			MaxSeq:     r.MaxSeq(),
		}
		if it := r.Iterator(true); it.Next() {
			meta.MinKey = append([]byte(nil), it.Record().Key...)
			last := it.Record().Key
			for it.Next() {
				last = it.Record().Key
			}
			meta.MaxKey = append([]byte(nil), last...)
		}
		r.Close()

		fm := levels.NewFileMeta(fileID, level, meta, time.Now().UnixNano())
		if err := t.levels.AddSSTable(level, fm); err != nil {
			t.log.Warn("skipping sstable with invalid level", logging.Path(path), logging.Err(err))
			continue
		}
		if r.MaxSeq() > maxSeq {
			maxSeq = r.MaxSeq()
		}
	}
	return maxSeq, nil
}

func parseSSTableName(name string) (level int, fileID uint64, ok bool) {
	base := strings.TrimSuffix(name, ".sst")
	parts := strings.Split(base, "_")
	if len(parts) < 5 || parts[0] != "level" {
		return 0, 0, false
	}
	lvl, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return lvl, id, true
}

// rlock/runlock and lock/unlock wrap the tree-lock with a fixed timeout so
// every Tree operation shares the same deadline instead of each call site
// picking its own. lock is the exclusive variant spec §4.7 requires for
// atomic batch commit; every other operation uses the shared rlock.
func (t *Tree) rlock() error { return t.mu.RLock(defaultLockTimeout) }
func (t *Tree) runlock()     { t.mu.RUnlock() }
func (t *Tree) lock() error  { return t.mu.Lock(defaultLockTimeout) }
func (t *Tree) unlock()      { t.mu.Unlock() }

// Put assigns the next sequence number and durably records a mutation
// before applying it to the MemTable (spec §4.7, §5: "WAL append precedes
// MemTable mutation").
func (t *Tree) Put(key, value []byte) error {
	return t.write(key, value, false)
}

// Delete records a tombstone for key.
func (t *Tree) Delete(key []byte) error {
	return t.write(key, nil, true)
}

func (t *Tree) write(key, value []byte, deleted bool) error {
	if len(key) == 0 || (!deleted && len(value) == 0) {
		return errs.New(errs.InvalidParam, "Tree.write", "key and value must be non-empty")
	}
	if len(key) > t.opts.MaxKeySize {
		return errs.New(errs.InvalidParam, "Tree.write", "key exceeds max key size")
	}
	if len(value) > t.opts.MaxValueSize {
		return errs.New(errs.InvalidParam, "Tree.write", "value exceeds max value size")
	}

	if err := t.rlock(); err != nil {
		return err
	}
	defer t.runlock()
	if t.closed {
		return errs.New(errs.NotSupported, "Tree.write", "tree is closed")
	}

	seq := t.seq.Add(1)
	recType := wal.RecordPut
	if deleted {
		recType = wal.RecordDelete
	}
	if err := t.wal.Append(wal.Record{Type: recType, Seq: seq, Timestamp: time.Now().UnixNano(), Key: key, Value: value}, t.opts.SyncWrites); err != nil {
		return err
	}

	var err error
	if deleted {
		err = t.memtables.Delete(key, seq)
	} else {
		err = t.memtables.Put(key, value, seq)
	}
	if err != nil {
		return err
	}

	t.scheduler.TriggerCheck()
	return nil
}

// Get resolves key by consulting the MemTable manager (active, then
// immutables newest-first), then the level manager (spec §4.7, §2 "Control
// flow for a write/read").
func (t *Tree) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errs.New(errs.InvalidParam, "Tree.Get", "key must be non-empty")
	}

	if err := t.rlock(); err != nil {
		return nil, err
	}
	defer t.runlock()
	if t.closed {
		return nil, errs.New(errs.NotSupported, "Tree.Get", "tree is closed")
	}

	if v, _, deleted, found := t.memtables.Get(key); found {
		if deleted {
			return nil, errs.New(errs.NotFound, "Tree.Get", "")
		}
		return v, nil
	}

	rec, ok, err := t.levels.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Deleted {
		return nil, errs.New(errs.NotFound, "Tree.Get", "")
	}
	return rec.Value, nil
}

// Flush forces every immutable MemTable (rotating the active one first, if
// non-empty) to be enqueued for a Level-0 flush, then blocks until the
// immutable queue has fully drained (spec §4.7, "Flush... Idempotent").
func (t *Tree) Flush() error {
	if err := t.rlock(); err != nil {
		return err
	}
	seq := t.seq.Load()
	t.runlock()

	if _, err := t.memtables.Flush(seq); err != nil {
		return err
	}
	t.scheduler.TriggerCheck()

	deadline := time.Now().Add(30 * time.Second)
	for t.memtables.ImmutableCount() > 0 {
		if time.Now().After(deadline) {
			return errs.New(errs.Timeout, "Tree.Flush", "immutable queue did not drain")
		}
		time.Sleep(5 * time.Millisecond)
		t.scheduler.TriggerCheck()
	}
	return nil
}

// Compact runs the scheduler's trigger check, which enqueues a LevelN task
// for every level that currently needs compaction (and a Level0 flush if one
// is due), subject to the scheduler's load cap. It returns without waiting
// for those tasks to run.
func (t *Tree) Compact() {
	t.scheduler.TriggerCheck()
}

// Count returns the active MemTable's entry count plus the entry counts of
// every level's SSTables. It is an estimate, not a count of distinct live
// keys: a key stored in more than one place is counted once per location,
// tombstones are counted as entries, and frozen MemTables still waiting to
// be flushed are not counted at all.
func (t *Tree) Count() (int64, error) {
	if err := t.rlock(); err != nil {
		return 0, err
	}
	defer t.runlock()
	if t.closed {
		return 0, errs.New(errs.NotSupported, "Tree.Count", "tree is closed")
	}
	total := int64(t.memtables.ActiveEntryCount())
	for lvl := 0; lvl < levels.MaxLevels; lvl++ {
		for _, f := range t.levels.Files(lvl) {
			total += int64(f.EntryCount)
		}
	}
	return total, nil
}

// MemoryUsage returns the active MemTable's approximate in-memory size.
// On-disk SSTable bytes are reported separately via Stats/metrics, not
// folded in here, since they are not resident memory.
func (t *Tree) MemoryUsage() (int64, error) {
	if err := t.rlock(); err != nil {
		return 0, err
	}
	defer t.runlock()
	if t.closed {
		return 0, errs.New(errs.NotSupported, "Tree.MemoryUsage", "tree is closed")
	}
	return int64(t.memtables.ActiveApproximateBytes()), nil
}

// Sync forces the WAL's current segment to disk, ahead of its normal
// SyncWrites-gated fsync schedule.
func (t *Tree) Sync() error {
	if err := t.rlock(); err != nil {
		return err
	}
	defer t.runlock()
	if t.closed {
		return errs.New(errs.NotSupported, "Tree.Sync", "tree is closed")
	}
	return t.wal.Sync()
}

// NextSeq returns the sequence number that will be assigned to the next
// mutation, without consuming it. Useful for tests asserting monotonicity.
func (t *Tree) NextSeq() uint64 { return t.seq.Load() }

// Close stops the compaction scheduler, persists the manifest, and closes
// the WAL and every open SSTable reader. The manifest records the sequence
// counter, which the next Open uses as a floor for new file IDs; Open always
// scans the directory as well, and correctness never depends on the
// manifest: Open's WAL replay plus directory scan recovers fully even after
// an unclean exit (spec §8, invariant 6).
func (t *Tree) Close() error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	t.scheduler.Shutdown()

	var counts [levels.MaxLevels]uint32
	for lvl := 0; lvl < levels.MaxLevels; lvl++ {
		files := t.levels.Files(lvl)
		counts[lvl] = uint32(len(files))
		for _, f := range files {
			f.Close()
		}
	}

	m := manifestData{Version: 1, NextFileID: t.seq.Load(), LevelFileCounts: counts}
	if err := writeManifest(t.opts.DataDir, m); err != nil {
		t.log.Warn("failed to persist manifest on close", logging.Err(err))
	}

	if err := t.wal.Checkpoint(t.seq.Load()); err != nil {
		t.log.Warn("failed to checkpoint WAL on close", logging.Err(err))
	}
	return t.wal.Close()
}

// Stats is a point-in-time snapshot of engine-visible state, used by
// internal/metrics and by STATUS in the CLI.
type Stats struct {
	Sequence         uint64
	ActiveBytes      int
	ImmutableCount   int
	Level0Files      int
	CompactionQueued int
	CompactionActive int
	FlushesDone      int64
	CompactionsDone  int64
	PopulatedLevels  int
	SSTableCount     int
}

func (t *Tree) Stats() Stats {
	populated, files := 0, 0
	for lvl := 0; lvl < levels.MaxLevels; lvl++ {
		n := len(t.levels.Files(lvl))
		files += n
		if n > 0 {
			populated++
		}
	}
	return Stats{
		Sequence:         t.seq.Load(),
		ActiveBytes:      t.memtables.ActiveApproximateBytes(),
		ImmutableCount:   t.memtables.ImmutableCount(),
		Level0Files:      len(t.levels.Files(0)),
		CompactionQueued: t.scheduler.QueueLen(),
		CompactionActive: t.scheduler.ActiveCount(),
		FlushesDone:      t.scheduler.FlushesCompleted(),
		CompactionsDone:  t.scheduler.CompactionsCompleted(),
		PopulatedLevels:  populated,
		SSTableCount:     files,
	}
}
