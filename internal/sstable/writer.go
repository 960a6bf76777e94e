package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"

	"github.com/golang/snappy"

	"github.com/concordkv/concordkv/internal/bloom"
	"github.com/concordkv/concordkv/internal/errs"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// BlockSize is the uncompressed data-block body threshold that triggers
	// finalizing the current block and starting a new one.
	BlockSize int
	// Compress snappy-compresses every block's stored body.
	Compress bool
	// BloomFalsePositiveRate is the target false-positive rate for the
	// embedded bloom filter.
	BloomFalsePositiveRate float64
}

// DefaultWriterOptions mirrors spec §4.4's default block size.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{BlockSize: 4096, Compress: true, BloomFalsePositiveRate: 0.01}
}

// Meta summarizes a finalized SSTable (spec §3, "SSTable metadata").
type Meta struct {
	Path       string
	FileSize   int64
	EntryCount uint64
	MinKey     []byte
	MaxKey     []byte
	MinSeq     uint64
	MaxSeq     uint64
}

// Writer streams sorted records into an SSTable file one data block at a
// time (spec §4.4, "Writer"). Callers must Add records in strictly
// ascending key order; Finalize must be called exactly once.
type Writer struct {
	path    string
	file    *os.File
	out     *bufio.Writer
	opts    WriterOptions
	offset  uint64
	index   []indexEntry
	bloom   *bloom.Filter
	cur     bytes.Buffer
	curN    int
	curFirst []byte
	lastKey []byte
	minSeq  uint64
	maxSeq  uint64
	minKey  []byte
	maxKey  []byte
	count   uint64
	haveAny bool
	done    bool
}

// NewWriter creates an SSTable at path. expectedItems sizes the embedded
// bloom filter and should be the caller's best estimate of the entry count
// (e.g. a MemTable's EntryCount); it does not need to be exact.
func NewWriter(path string, expectedItems int, opts WriterOptions) (*Writer, error) {
	if opts.BlockSize <= 0 {
		opts = DefaultWriterOptions()
	}
	if expectedItems < 1 {
		expectedItems = 1
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "sstable.NewWriter", path, err)
	}
	return &Writer{
		path:  path,
		file:  f,
		out:   bufio.NewWriter(f),
		opts:  opts,
		bloom: bloom.New(expectedItems, opts.BloomFalsePositiveRate),
	}, nil
}

// Add appends one record. Keys must be strictly increasing across calls.
func (w *Writer) Add(r Record) error {
	if w.done {
		return errs.New(errs.NotSupported, "Writer.Add", "writer already finalized")
	}
	if w.haveAny && bytes.Compare(r.Key, w.lastKey) <= 0 {
		return errs.New(errs.InvalidParam, "Writer.Add", "keys must be strictly increasing")
	}

	if w.curN == 0 {
		w.curFirst = append([]byte(nil), r.Key...)
	}
	w.cur.Write(encodeDataEntry(r))
	w.curN++

	w.bloom.Add(r.Key)
	if !w.haveAny {
		w.minKey = append([]byte(nil), r.Key...)
		w.minSeq = r.Seq
		w.maxSeq = r.Seq
	}
	w.maxKey = append([]byte(nil), r.Key...)
	if r.Seq < w.minSeq {
		w.minSeq = r.Seq
	}
	if r.Seq > w.maxSeq {
		w.maxSeq = r.Seq
	}
	w.lastKey = append([]byte(nil), r.Key...)
	w.haveAny = true
	w.count++

	if w.cur.Len() >= w.opts.BlockSize {
		return w.flushDataBlock()
	}
	return nil
}

func (w *Writer) flushDataBlock() error {
	if w.curN == 0 {
		return nil
	}
	raw := append([]byte(nil), w.cur.Bytes()...)
	offset, total, err := w.writeBlock(BlockData, raw, uint32(w.curN))
	if err != nil {
		return err
	}
	w.index = append(w.index, indexEntry{firstKey: w.curFirst, offset: offset, blockSize: total, seq: w.minSeq})
	w.cur.Reset()
	w.curN = 0
	w.curFirst = nil
	return nil
}

// writeBlock compresses (if configured), frames with a 20-byte header, and
// appends rawBody to the output stream. entryCountField is stored verbatim
// in the header (repurposed as a bit count for bloom blocks).
func (w *Writer) writeBlock(kind BlockKind, rawBody []byte, entryCountField uint32) (offset uint64, total uint32, err error) {
	stored := rawBody
	if w.opts.Compress {
		stored = snappy.Encode(nil, rawBody)
	}
	h := blockHeader{
		kind:             kind,
		entryCount:       entryCountField,
		uncompressedSize: uint32(len(rawBody)),
		compressedSize:   uint32(len(stored)),
		crc32:            checksum(rawBody),
	}
	header := encodeBlockHeader(h)

	offset = w.offset
	if _, err = w.out.Write(header); err != nil {
		return 0, 0, errs.Wrap(errs.IOError, "Writer.writeBlock", "header", err)
	}
	if _, err = w.out.Write(stored); err != nil {
		return 0, 0, errs.Wrap(errs.IOError, "Writer.writeBlock", "body", err)
	}
	total = uint32(blockHeaderLen + len(stored))
	w.offset += uint64(total)
	return offset, total, nil
}

// Finalize flushes any pending data block, writes the index block, the
// bloom block, and the footer, then fsyncs and closes the file.
func (w *Writer) Finalize() (Meta, error) {
	if w.done {
		return Meta{}, errs.New(errs.NotSupported, "Writer.Finalize", "already finalized")
	}
	w.done = true

	if err := w.flushDataBlock(); err != nil {
		w.file.Close()
		return Meta{}, err
	}

	indexBody := make([]byte, 0)
	for _, e := range w.index {
		indexBody = append(indexBody, encodeIndexEntry(e)...)
	}
	indexOffset, indexTotal, err := w.writeBlock(BlockIndex, indexBody, uint32(len(w.index)))
	if err != nil {
		w.file.Close()
		return Meta{}, err
	}

	// The block header's reserved (entry-count) field carries the bloom's
	// bit count per spec §6; hash count and seed have no other home in the
	// fixed footer/header layout, so they're framed as a small fixed prefix
	// ahead of the raw bit array within the bloom block's own body.
	bits := w.bloom.MarshalBinary()
	bloomBody := make([]byte, 12+len(bits))
	binary.LittleEndian.PutUint32(bloomBody[0:4], uint32(w.bloom.HashCount()))
	binary.LittleEndian.PutUint64(bloomBody[4:12], w.bloom.Seed())
	copy(bloomBody[12:], bits)
	bloomOffset, bloomTotal, err := w.writeBlock(BlockBloom, bloomBody, uint32(w.bloom.BitCount()))
	if err != nil {
		w.file.Close()
		return Meta{}, err
	}

	flags := uint32(0)
	if w.opts.Compress {
		flags = flagCompressed
	}
	f := footer{
		version:     FormatVersion,
		flags:       flags,
		indexOffset: indexOffset,
		indexSize:   indexTotal,
		bloomOffset: bloomOffset,
		bloomSize:   bloomTotal,
		minSeq:      w.minSeq,
		maxSeq:      w.maxSeq,
		entryCount:  w.count,
	}
	if _, err := w.out.Write(encodeFooter(f)); err != nil {
		w.file.Close()
		return Meta{}, errs.Wrap(errs.IOError, "Writer.Finalize", "footer", err)
	}
	if err := w.out.Flush(); err != nil {
		w.file.Close()
		return Meta{}, errs.Wrap(errs.IOError, "Writer.Finalize", "flush", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return Meta{}, errs.Wrap(errs.IOError, "Writer.Finalize", "sync", err)
	}

	info, err := w.file.Stat()
	if err != nil {
		w.file.Close()
		return Meta{}, errs.Wrap(errs.IOError, "Writer.Finalize", "stat", err)
	}
	if err := w.file.Close(); err != nil {
		return Meta{}, errs.Wrap(errs.IOError, "Writer.Finalize", "close", err)
	}

	return Meta{
		Path:       w.path,
		FileSize:   info.Size(),
		EntryCount: w.count,
		MinKey:     w.minKey,
		MaxKey:     w.maxKey,
		MinSeq:     w.minSeq,
		MaxSeq:     w.maxSeq,
	}, nil
}

// Abort discards a partially-written SSTable, unlinking the file.
func (w *Writer) Abort() error {
	w.file.Close()
	return os.Remove(w.path)
}
