// Package levels implements the leveled SSTable hierarchy (spec §4.5):
// Level 0 holds overlapping files in insertion order, newest last; Level 1..N hold
// non-overlapping files ordered by key range, each level bounded by a
// byte budget that grows by a fixed multiplier per level.
package levels

import (
	"sync"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/sstable"
)

// FileMeta is the per-file bookkeeping record the level manager holds
// (spec §3, "SSTable metadata"). Its reader is opened lazily on first use
// and cached for the metadata's lifetime; close it when the file is removed
// from the level manager (e.g. after compaction).
type FileMeta struct {
	FileID     uint64
	Level      int
	Path       string
	FileSize   int64
	EntryCount uint64
	MinKey     []byte
	MaxKey     []byte
	CreatedAt  int64

	mu     sync.Mutex
	reader *sstable.Reader
}

// NewFileMeta builds a FileMeta from a freshly finalized sstable.Meta.
func NewFileMeta(fileID uint64, level int, m sstable.Meta, createdAt int64) *FileMeta {
	return &FileMeta{
		FileID:     fileID,
		Level:      level,
		Path:       m.Path,
		FileSize:   m.FileSize,
		EntryCount: m.EntryCount,
		MinKey:     m.MinKey,
		MaxKey:     m.MaxKey,
		CreatedAt:  createdAt,
	}
}

// Reader lazily opens (and caches) this file's sstable.Reader.
func (f *FileMeta) Reader() (*sstable.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reader != nil {
		return f.reader, nil
	}
	r, err := sstable.Open(f.Path)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "FileMeta.Reader", f.Path, err)
	}
	f.reader = r
	return r, nil
}

// Close releases the cached reader, if one was opened.
func (f *FileMeta) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reader == nil {
		return nil
	}
	err := f.reader.Close()
	f.reader = nil
	return err
}

// Overlaps reports whether this file's key range intersects [start, end).
// An empty end means unbounded.
func (f *FileMeta) Overlaps(start, end []byte) bool {
	if len(end) > 0 && bytesCompare(f.MinKey, end) >= 0 {
		return false
	}
	if len(start) > 0 && bytesCompare(f.MaxKey, start) < 0 {
		return false
	}
	return true
}

// OverlapsInclusive reports whether this file's key range intersects the
// closed range [start, end]. Used by compaction input selection, where both
// endpoints of the source file's range must be considered.
func (f *FileMeta) OverlapsInclusive(start, end []byte) bool {
	return bytesCompare(f.MinKey, end) <= 0 && bytesCompare(f.MaxKey, start) >= 0
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
