package compaction

import (
	"bytes"
	"os"
	"time"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/levels"
	"github.com/concordkv/concordkv/internal/logging"
	"github.com/concordkv/concordkv/internal/sstable"
)

// outputSizeBudgetBlocks bounds how large a single merge output file grows
// before it is finalized and a fresh one started, so one LevelN task never
// produces an unbounded single file (spec §4.6: output is split at a size
// bound derived from the configured block size). mergeSources turns it into
// an entry cap of outputSizeBudgetBlocks * (BlockSize / 32).
const outputSizeBudgetBlocks = 256

// mergeSource is one input stream to the k-way merge: either the oldest
// file at the source level or one overlapping file at the target level.
type mergeSource struct {
	file *levels.FileMeta
	it   *sstable.Iterator
	cur  sstable.Record
	ok   bool
}

func newMergeSource(f *levels.FileMeta) (*mergeSource, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	ms := &mergeSource{file: f, it: r.Iterator(true)}
	ms.advance()
	return ms, nil
}

func (m *mergeSource) advance() {
	m.ok = m.it.Next()
	if m.ok {
		m.cur = m.it.Record()
	}
}

// RunLevelN merges the oldest file at SourceLevel with every overlapping
// file at TargetLevel, producing one or more new TargetLevel files, then
// atomically swaps the inputs out and outputs in (spec §4.6, "Level-N
// compaction"). Tombstones are dropped only when TargetLevel is the deepest
// level in the hierarchy, since only there is it safe to assume no older
// write could still be shadowed by the tombstone at a level below.
func (e *Executor) RunLevelN(t *Task) error {
	srcFiles := e.Levels.Files(t.SourceLevel)
	if len(srcFiles) == 0 {
		return nil
	}
	src := oldestFile(srcFiles)

	bound := src.MaxKey
	targets := e.Levels.Overlapping(t.TargetLevel, src.MinKey, nil)
	var overlapping []*levels.FileMeta
	for _, f := range targets {
		if f.OverlapsInclusive(src.MinKey, bound) {
			overlapping = append(overlapping, f)
		}
	}

	sources := make([]*mergeSource, 0, 1+len(overlapping))
	ms, err := newMergeSource(src)
	if err != nil {
		return err
	}
	sources = append(sources, ms)
	for _, f := range overlapping {
		ms, err := newMergeSource(f)
		if err != nil {
			return err
		}
		sources = append(sources, ms)
	}

	dropTombstones := t.TargetLevel == levels.MaxLevels-1

	outputs, err := e.mergeSources(sources, t.TargetLevel, dropTombstones)
	if err != nil {
		return err
	}

	removals := append([]*levels.FileMeta{src}, overlapping...)
	additions := map[int][]*levels.FileMeta{t.TargetLevel: outputs}
	e.Levels.Swap(removals, additions)

	var total int64
	for _, f := range removals {
		total += f.FileSize
		f.Close()
		os.Remove(f.Path)
	}
	var outBytes int64
	for _, f := range outputs {
		outBytes += f.FileSize
	}
	t.bytesWritten = outBytes
	e.log.Info("compacted level", logging.Int("source_level", t.SourceLevel), logging.Int("target_level", t.TargetLevel),
		logging.Int("inputs", len(removals)), logging.Int("outputs", len(outputs)), logging.Int64("input_bytes", total), logging.Int64("output_bytes", outBytes))
	return nil
}

func oldestFile(files []*levels.FileMeta) *levels.FileMeta {
	oldest := files[0]
	for _, f := range files[1:] {
		if f.FileID < oldest.FileID {
			oldest = f
		}
	}
	return oldest
}

// mergeSources performs a k-way merge across sources, keyed by ascending
// key and, for equal keys, descending sequence number, keeping only the
// highest-sequence record per key (spec §3: "highest sequence wins").
func (e *Executor) mergeSources(sources []*mergeSource, targetLevel int, dropTombstones bool) ([]*levels.FileMeta, error) {
	var outputs []*levels.FileMeta
	var w *sstable.Writer
	var curID uint64
	var writtenInCur int

	// maxEntriesPerOutput bounds a single merge output's entry count so one
	// LevelN task never produces an unbounded file; derived from the
	// configured block size so larger blocks yield proportionally larger
	// output files.
	maxEntriesPerOutput := outputSizeBudgetBlocks * (e.WriterOptions.BlockSize / 32)
	if maxEntriesPerOutput <= 0 {
		maxEntriesPerOutput = outputSizeBudgetBlocks
	}

	openWriter := func() error {
		id, path, err := e.allocPath(targetLevel, targetLevel)
		if err != nil {
			return err
		}
		nw, err := sstable.NewWriter(path, maxEntriesPerOutput, e.WriterOptions)
		if err != nil {
			return errs.Wrap(errs.IOError, "Executor.mergeSources", "create writer", err)
		}
		w = nw
		curID = id
		writtenInCur = 0
		return nil
	}
	closeWriter := func() error {
		if w == nil {
			return nil
		}
		meta, err := w.Finalize()
		w = nil
		if err != nil {
			return errs.Wrap(errs.IOError, "Executor.mergeSources", "finalize output", err)
		}
		if meta.EntryCount == 0 {
			os.Remove(meta.Path)
			return nil
		}
		outputs = append(outputs, levels.NewFileMeta(curID, targetLevel, meta, time.Now().UnixNano()))
		return nil
	}

	if err := openWriter(); err != nil {
		return nil, err
	}

	for {
		idx := pickMin(sources)
		if idx < 0 {
			break
		}
		winner := sources[idx]
		rec := winner.cur

		// Drain (and discard) every other source's copy of this key: the
		// one with the highest sequence, already selected by pickMin, wins.
		// This is what drops shadowed writes during compaction.
		for i, s := range sources {
			if i == idx || !s.ok {
				continue
			}
			if bytes.Equal(s.cur.Key, rec.Key) {
				s.advance()
			}
		}
		winner.advance()

		if rec.Deleted && dropTombstones {
			continue
		}

		if err := w.Add(sstable.Record{Key: rec.Key, Value: rec.Value, Seq: rec.Seq, Deleted: rec.Deleted}); err != nil {
			return nil, errs.Wrap(errs.IOError, "Executor.mergeSources", "write merged entry", err)
		}
		writtenInCur++

		if writtenInCur >= maxEntriesPerOutput {
			if err := closeWriter(); err != nil {
				return nil, err
			}
			if err := openWriter(); err != nil {
				return nil, err
			}
		}
	}

	if err := closeWriter(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// pickMin returns the index of the source whose current key is smallest; on
// a tie it prefers the one with the highest sequence number so the merge
// loop's caller sees the authoritative version first.
func pickMin(sources []*mergeSource) int {
	best := -1
	for i, s := range sources {
		if !s.ok {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		c := bytes.Compare(s.cur.Key, sources[best].cur.Key)
		if c < 0 || (c == 0 && s.cur.Seq > sources[best].cur.Seq) {
			best = i
		}
	}
	return best
}
