// Package wal implements the append-only, crash-recoverable write-ahead log
// every durable mutation passes through before it reaches a MemTable (spec
// §4.3). Records carry a per-record CRC32; replay reconstructs MemTable
// state after a crash; segment rotation and checkpoint-driven pruning keep
// the log from growing without bound.
package wal

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/concordkv/concordkv/internal/errs"
)

// Options configures a WAL instance.
type Options struct {
	// MaxSegmentBytes rotates to a new segment once the current one would
	// exceed this size.
	MaxSegmentBytes int
	// SyncWrites fsyncs the current segment after every Append. When false,
	// durability is bounded by the OS page cache flush interval; callers
	// that need per-write durability should pass sync=true to Append
	// instead of enabling this globally.
	SyncWrites bool
}

// DefaultOptions mirrors the teacher's WAL defaults, scaled up for
// segment-based rotation.
func DefaultOptions() Options {
	return Options{MaxSegmentBytes: 64 << 20, SyncWrites: false}
}

// closedSegmentInfo is the pruning metadata kept for a segment once it has
// been rotated out of active use.
type closedSegmentInfo struct {
	id     uint64
	path   string
	minSeq uint64
	maxSeq uint64
	hasAny bool
}

// WAL owns a directory of segment files named wal/<id>.log. Exactly one
// segment is open for appends at a time; older segments are retained only
// until a checkpoint proves their contents are no longer needed for replay.
type WAL struct {
	mu      sync.Mutex
	dir     string
	opts    Options
	current *segment
	closed  []closedSegmentInfo
	nextID  uint64
}

// Open opens or creates a WAL rooted at dir. It does not replay existing
// segments; call Replay explicitly once the caller is ready to process
// records.
func Open(dir string, opts Options) (*WAL, error) {
	if opts.MaxSegmentBytes <= 0 {
		opts = DefaultOptions()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, "wal.Open", dir, err)
	}

	ids, err := listSegmentIDs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "wal.Open", "list segments", err)
	}

	w := &WAL{dir: dir, opts: opts}
	if len(ids) == 0 {
		seg, err := openSegmentForAppend(dir, 0)
		if err != nil {
			return nil, errs.Wrap(errs.IOError, "wal.Open", "create segment 0", err)
		}
		w.current = seg
		w.nextID = 1
		return w, nil
	}

	last := ids[len(ids)-1]
	for _, id := range ids[:len(ids)-1] {
		w.closed = append(w.closed, closedSegmentInfo{id: id, path: segmentPath(dir, id)})
	}
	seg, err := openSegmentForAppend(dir, last)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "wal.Open", "reopen last segment", err)
	}
	w.current = seg
	w.nextID = last + 1
	return w, nil
}

// Append writes rec to the current segment, rotating to a new segment first
// if it would overflow MaxSegmentBytes. sync forces an fsync regardless of
// Options.SyncWrites.
func (w *WAL) Append(rec Record, sync bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := encode(rec)
	if w.current.bytes+len(buf) > w.opts.MaxSegmentBytes && w.current.bytes > 0 {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	if err := w.current.write(buf, sync || w.opts.SyncWrites); err != nil {
		return errs.Wrap(errs.IOError, "WAL.Append", rec.Type.String(), err)
	}
	w.current.bytes += len(buf)
	w.current.observe(rec)
	return nil
}

// Sync flushes and fsyncs the current segment, ahead of its normal
// SyncWrites-gated schedule.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.write(nil, true)
}

func (w *WAL) rotateLocked() error {
	old := w.current
	if err := old.closeForWriting(); err != nil {
		return errs.Wrap(errs.IOError, "WAL.rotate", "close segment", err)
	}
	w.closed = append(w.closed, closedSegmentInfo{id: old.id, path: old.path, minSeq: old.minSeq, maxSeq: old.maxSeq, hasAny: old.hasAny})

	seg, err := openSegmentForAppend(w.dir, w.nextID)
	if err != nil {
		return errs.Wrap(errs.IOError, "WAL.rotate", "open new segment", err)
	}
	w.current = seg
	w.nextID++
	return nil
}

// Checkpoint appends a checkpoint record at seq, then prunes every closed
// segment whose contents are entirely at or below seq: they can never
// contribute an un-replayed mutation past the checkpoint. Segments that were
// already on disk when Open ran carry no recorded sequence range and are
// never pruned.
func (w *WAL) Checkpoint(seq uint64) error {
	if err := w.Append(Record{Type: RecordCheckpoint, Seq: seq, Timestamp: time.Now().UnixNano()}, true); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.closed[:0]
	for _, c := range w.closed {
		if c.hasAny && c.maxSeq <= seq {
			os.Remove(c.path)
			continue
		}
		kept = append(kept, c)
	}
	w.closed = kept
	return nil
}

// Replay streams every record across every segment, oldest first, invoking
// handler for each. It stops silently (without error) at the first
// corrupted or truncated record, per spec §4.3: "truncation at file
// boundary is treated as normal EOF." It returns the highest sequence
// number observed across all successfully-read records.
func (w *WAL) Replay(handler func(Record) error) (uint64, error) {
	w.mu.Lock()
	var ids []uint64
	for _, c := range w.closed {
		ids = append(ids, c.id)
	}
	ids = append(ids, w.current.id)
	dir := w.dir
	w.mu.Unlock()

	var maxSeq uint64
	for _, id := range ids {
		f, err := os.Open(segmentPath(dir, id))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return maxSeq, errs.Wrap(errs.IOError, "WAL.Replay", "open segment", err)
		}

		r := bufio.NewReader(f)
		for {
			rec, err := decode(r)
			if err != nil {
				if errs.Is(err, errs.Corrupted) {
					// A CRC mismatch ends the whole replay at the prior record.
					f.Close()
					return maxSeq, nil
				}
				break // EOF or a truncated trailing record: stop this segment.
			}
			if rec.Seq > maxSeq {
				maxSeq = rec.Seq
			}
			if err := handler(rec); err != nil {
				f.Close()
				return maxSeq, errs.Wrap(errs.IOError, "WAL.Replay", "handler", err)
			}
		}
		f.Close()
	}
	return maxSeq, nil
}

// Close flushes and closes the current segment. Closed (pruned-eligible)
// segments are left on disk untouched.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.closeForWriting(); err != nil {
		return errs.Wrap(errs.IOError, "WAL.Close", "close segment", err)
	}
	return nil
}

// SegmentCount returns the number of segment files currently on disk,
// closed plus the one open for appends.
func (w *WAL) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.closed) + 1
}
