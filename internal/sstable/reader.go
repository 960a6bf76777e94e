package sstable

import (
	"encoding/binary"
	"os"
	"sort"
	"sync"

	"github.com/golang/snappy"

	"github.com/concordkv/concordkv/internal/bloom"
	"github.com/concordkv/concordkv/internal/errs"
)

// Reader opens a finalized SSTable for point lookups and iteration (spec
// §4.4, "Reader"). It exclusively owns its file handle and caches the
// decoded index and bloom filter for the life of the reader.
type Reader struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	footer   footer
	index    []indexEntry
	bloom    *bloom.Filter
	compress bool
}

// Open reads and validates an SSTable's footer, index block, and bloom
// block, returning a ready-to-use Reader.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "sstable.Open", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.IOError, "sstable.Open", "stat", err)
	}
	if info.Size() < footerLen {
		f.Close()
		return nil, errs.New(errs.Corrupted, "sstable.Open", "file too small for footer")
	}

	footerBuf := make([]byte, footerLen)
	if _, err := f.ReadAt(footerBuf, info.Size()-footerLen); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.IOError, "sstable.Open", "read footer", err)
	}
	ft, err := decodeFooter(footerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{path: path, file: f, footer: ft, compress: ft.flags&flagCompressed != 0}

	indexBody, _, err := r.readBlockAt(ft.indexOffset, ft.indexSize, BlockIndex)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.index = decodeIndexBlock(indexBody)

	bloomBody, bh, err := r.readBlockAt(ft.bloomOffset, ft.bloomSize, BlockBloom)
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(bloomBody) < 12 {
		f.Close()
		return nil, errs.New(errs.Corrupted, "sstable.Open", "bloom block too small")
	}
	hashCount := int(binary.LittleEndian.Uint32(bloomBody[0:4]))
	seed := binary.LittleEndian.Uint64(bloomBody[4:12])
	bf := bloom.FromBits(int(bh.entryCount), hashCount, seed)
	if err := bf.UnmarshalBinary(bloomBody[12:]); err != nil {
		f.Close()
		return nil, err
	}
	r.bloom = bf

	return r, nil
}

func decodeIndexBlock(body []byte) []indexEntry {
	var out []indexEntry
	for len(body) > 0 {
		e, n := decodeIndexEntry(body)
		out = append(out, e)
		body = body[n:]
	}
	return out
}

// readBlockAt reads size bytes at offset, verifies the block's kind and its
// CRC32 over the decompressed body, and returns the uncompressed body.
func (r *Reader) readBlockAt(offset uint64, size uint32, want BlockKind) ([]byte, blockHeader, error) {
	if size == 0 {
		return nil, blockHeader{kind: want}, nil
	}
	buf := make([]byte, size)
	if _, err := r.file.ReadAt(buf, int64(offset)); err != nil {
		return nil, blockHeader{}, errs.Wrap(errs.IOError, "sstable.readBlockAt", "read", err)
	}
	h, err := decodeBlockHeader(buf[:blockHeaderLen])
	if err != nil {
		return nil, blockHeader{}, err
	}
	if h.kind != want {
		return nil, blockHeader{}, errs.New(errs.Corrupted, "sstable.readBlockAt", "unexpected block kind")
	}

	stored := buf[blockHeaderLen:]
	var raw []byte
	if r.compress {
		raw, err = snappy.Decode(nil, stored)
		if err != nil {
			return nil, blockHeader{}, errs.Wrap(errs.Corrupted, "sstable.readBlockAt", "snappy decode", err)
		}
	} else {
		raw = stored
	}
	if checksum(raw) != h.crc32 {
		return nil, blockHeader{}, errs.New(errs.Corrupted, "sstable.readBlockAt", "block CRC mismatch")
	}
	return raw, h, nil
}

// Get looks up key, consulting the bloom filter before touching disk.
func (r *Reader) Get(key []byte) (Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.bloom.MayContain(key) {
		return Record{}, false, nil
	}

	i := sort.Search(len(r.index), func(i int) bool {
		return bytesCompare(r.index[i].firstKey, key) > 0
	}) - 1
	if i < 0 {
		return Record{}, false, nil
	}

	raw, _, err := r.readBlockAt(r.index[i].offset, r.index[i].blockSize, BlockData)
	if err != nil {
		return Record{}, false, err
	}
	for len(raw) > 0 {
		rec, n := decodeDataEntry(raw)
		c := bytesCompare(rec.Key, key)
		if c == 0 {
			return rec, true, nil
		}
		if c > 0 {
			break
		}
		raw = raw[n:]
	}
	return Record{}, false, nil
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

// EntryCount returns the total number of entries recorded in the footer.
func (r *Reader) EntryCount() uint64 { return r.footer.entryCount }

// MinSeq and MaxSeq report the sequence range covered by this file.
func (r *Reader) MinSeq() uint64 { return r.footer.minSeq }
func (r *Reader) MaxSeq() uint64 { return r.footer.maxSeq }

// Close releases the reader's file handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// Iterator returns a restartable forward iterator over every data block,
// reading blocks lazily as it advances. includeTombstones controls whether
// deleted entries are surfaced (compaction needs them; point reads don't).
func (r *Reader) Iterator(includeTombstones bool) *Iterator {
	return &Iterator{r: r, includeTombstones: includeTombstones, blockIdx: -1}
}

// Iterator walks an SSTable's data blocks in key order.
type Iterator struct {
	r                 *Reader
	includeTombstones bool
	blockIdx          int
	cur               []byte
	err               error
	rec               Record
	valid             bool
}

// Next advances to the next qualifying record. It returns false at EOF or
// on error; callers should check Err after a false return.
func (it *Iterator) Next() bool {
	for {
		if len(it.cur) == 0 {
			it.blockIdx++
			if it.blockIdx >= len(it.r.index) {
				it.valid = false
				return false
			}
			e := it.r.index[it.blockIdx]
			raw, _, err := it.r.readBlockAt(e.offset, e.blockSize, BlockData)
			if err != nil {
				it.err = err
				it.valid = false
				return false
			}
			it.cur = raw
			continue
		}
		rec, n := decodeDataEntry(it.cur)
		it.cur = it.cur[n:]
		if rec.Deleted && !it.includeTombstones {
			continue
		}
		it.rec = rec
		it.valid = true
		return true
	}
}

// Record returns the record at the iterator's current position. Valid only
// after a call to Next returned true.
func (it *Iterator) Record() Record { return it.rec }

// Err returns the first error encountered during iteration, if any.
func (it *Iterator) Err() error { return it.err }
