// Package sstable implements the block-structured, immutable on-disk table
// format described in spec §6: a sequence of data blocks, one index block,
// one bloom block, then a fixed-length footer. Every block shares a
// 20-byte header; every block's body is checksummed independently so a
// single corrupted block doesn't invalidate the rest of the file.
package sstable

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/concordkv/concordkv/internal/errs"
)

// BlockKind identifies what a block's body holds.
type BlockKind uint32

const (
	BlockData BlockKind = iota
	BlockIndex
	BlockBloom
)

// blockHeaderLen is the fixed 20-byte header every block carries: five
// little-endian uint32 fields (block-kind, entry-count, uncompressed size,
// compressed size, CRC32 over the uncompressed body).
const blockHeaderLen = 20

// blockHeader is the decoded form of a block's 20-byte header. For a bloom
// block, entryCount is repurposed to carry the bit count (spec §4.4: "its
// header's reserved field carries the bit count") rather than a literal
// entry count — bloom blocks have no discrete "entries" of their own.
type blockHeader struct {
	kind             BlockKind
	entryCount       uint32
	uncompressedSize uint32
	compressedSize   uint32
	crc32            uint32
}

func encodeBlockHeader(h blockHeader) []byte {
	buf := make([]byte, blockHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.kind))
	binary.LittleEndian.PutUint32(buf[4:8], h.entryCount)
	binary.LittleEndian.PutUint32(buf[8:12], h.uncompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.compressedSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.crc32)
	return buf
}

func decodeBlockHeader(buf []byte) (blockHeader, error) {
	if len(buf) != blockHeaderLen {
		return blockHeader{}, errs.New(errs.Corrupted, "sstable.decodeBlockHeader", "short block header")
	}
	return blockHeader{
		kind:             BlockKind(binary.LittleEndian.Uint32(buf[0:4])),
		entryCount:       binary.LittleEndian.Uint32(buf[4:8]),
		uncompressedSize: binary.LittleEndian.Uint32(buf[8:12]),
		compressedSize:   binary.LittleEndian.Uint32(buf[12:16]),
		crc32:            binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

func checksum(uncompressed []byte) uint32 {
	return crc32.ChecksumIEEE(uncompressed)
}

// footerMagic identifies a ConcordKV SSTable footer (spec §6: "magic
// 0x??SST??").
const footerMagic uint64 = 0x434B53535442FF

// FormatVersion is the on-disk format version this package reads and
// writes.
const FormatVersion uint32 = 1

// footerLen is the fixed footer size: magic(8) + version(4) + flags(4) +
// index offset(8) + index size(4) + bloom offset(8) + bloom size(4) +
// min_seq(8) + max_seq(8) + entry_count(8) + crc32(4).
const footerLen = 8 + 4 + 4 + 8 + 4 + 8 + 4 + 8 + 8 + 8 + 4

// flagCompressed marks every block in the file as snappy-compressed.
const flagCompressed uint32 = 1 << 0

type footer struct {
	version     uint32
	flags       uint32
	indexOffset uint64
	indexSize   uint32
	bloomOffset uint64
	bloomSize   uint32
	minSeq      uint64
	maxSeq      uint64
	entryCount  uint64
}

func encodeFooter(f footer) []byte {
	buf := make([]byte, footerLen)
	o := 0
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[o:o+8], v); o += 8 }
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:o+4], v); o += 4 }

	putU64(footerMagic)
	putU32(f.version)
	putU32(f.flags)
	putU64(f.indexOffset)
	putU32(f.indexSize)
	putU64(f.bloomOffset)
	putU32(f.bloomSize)
	putU64(f.minSeq)
	putU64(f.maxSeq)
	putU64(f.entryCount)

	crc := crc32.ChecksumIEEE(buf[:o])
	binary.LittleEndian.PutUint32(buf[o:o+4], crc)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerLen {
		return footer{}, errs.New(errs.Corrupted, "sstable.decodeFooter", "short footer")
	}
	o := 0
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[o : o+8]); o += 8; return v }
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[o : o+4]); o += 4; return v }

	magic := getU64()
	if magic != footerMagic {
		return footer{}, errs.New(errs.Corrupted, "sstable.decodeFooter", "bad magic")
	}
	f := footer{}
	f.version = getU32()
	f.flags = getU32()
	f.indexOffset = getU64()
	f.indexSize = getU32()
	f.bloomOffset = getU64()
	f.bloomSize = getU32()
	f.minSeq = getU64()
	f.maxSeq = getU64()
	f.entryCount = getU64()

	crcField := binary.LittleEndian.Uint32(buf[o : o+4])
	if gotCRC := crc32.ChecksumIEEE(buf[:o]); gotCRC != crcField {
		return footer{}, errs.New(errs.Corrupted, "sstable.decodeFooter", "footer CRC mismatch")
	}
	return f, nil
}
