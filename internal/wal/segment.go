package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// segmentExt is the suffix every WAL segment file carries: wal/<id>.log.
const segmentExt = ".log"

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d%s", id, segmentExt))
}

// listSegmentIDs returns every segment id present in dir, ascending.
func listSegmentIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segmentExt) {
			continue
		}
		idStr := strings.TrimSuffix(e.Name(), segmentExt)
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// segment is one open, append-only WAL file plus the sequence-range metadata
// the manager needs to decide when the segment can be pruned.
type segment struct {
	id     uint64
	path   string
	file   *os.File
	writer *bufio.Writer
	bytes  int
	minSeq uint64
	maxSeq uint64
	hasAny bool
}

func openSegmentForAppend(dir string, id uint64) (*segment, error) {
	path := segmentPath(dir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{id: id, path: path, file: f, writer: bufio.NewWriter(f), bytes: int(info.Size())}, nil
}

func (s *segment) observe(rec Record) {
	if !s.hasAny {
		s.minSeq = rec.Seq
		s.hasAny = true
	}
	if rec.Seq > s.maxSeq {
		s.maxSeq = rec.Seq
	}
}

func (s *segment) write(buf []byte, sync bool) error {
	if _, err := s.writer.Write(buf); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if sync {
		return s.file.Sync()
	}
	return nil
}

func (s *segment) closeForWriting() error {
	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return err
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
