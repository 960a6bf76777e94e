package sstable

import "encoding/binary"

// Record is one key/value/sequence/tombstone triple, the unit sstable reads
// and writes deal in.
type Record struct {
	Key     []byte
	Value   []byte
	Seq     uint64
	Deleted bool
}

// encodeDataEntry serializes one data-block entry:
// (key_len:u32, value_len:u32, seq:u64, deleted:u8, key, value).
func encodeDataEntry(r Record) []byte {
	const fixed = 4 + 4 + 8 + 1
	buf := make([]byte, fixed+len(r.Key)+len(r.Value))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(r.Value)))
	binary.LittleEndian.PutUint64(buf[8:16], r.Seq)
	if r.Deleted {
		buf[16] = 1
	}
	copy(buf[fixed:], r.Key)
	copy(buf[fixed+len(r.Key):], r.Value)
	return buf
}

// decodeDataEntry reads one data-block entry starting at buf[0], returning
// the record and the number of bytes consumed.
func decodeDataEntry(buf []byte) (Record, int) {
	keyLen := binary.LittleEndian.Uint32(buf[0:4])
	valLen := binary.LittleEndian.Uint32(buf[4:8])
	seq := binary.LittleEndian.Uint64(buf[8:16])
	deleted := buf[16] != 0
	const fixed = 4 + 4 + 8 + 1
	key := buf[fixed : fixed+int(keyLen)]
	val := buf[fixed+int(keyLen) : fixed+int(keyLen)+int(valLen)]
	total := fixed + int(keyLen) + int(valLen)
	return Record{Key: key, Value: val, Seq: seq, Deleted: deleted}, total
}

// indexEntry points an index block reader at one data block.
type indexEntry struct {
	firstKey  []byte
	offset    uint64
	blockSize uint32
	seq       uint64
}

// encodeIndexEntry serializes one index-block entry:
// (key_len:u32, offset:u64, block_size:u32, seq:u64, key).
func encodeIndexEntry(e indexEntry) []byte {
	const fixed = 4 + 8 + 4 + 8
	buf := make([]byte, fixed+len(e.firstKey))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.firstKey)))
	binary.LittleEndian.PutUint64(buf[4:12], e.offset)
	binary.LittleEndian.PutUint32(buf[12:16], e.blockSize)
	binary.LittleEndian.PutUint64(buf[16:24], e.seq)
	copy(buf[fixed:], e.firstKey)
	return buf
}

func decodeIndexEntry(buf []byte) (indexEntry, int) {
	keyLen := binary.LittleEndian.Uint32(buf[0:4])
	offset := binary.LittleEndian.Uint64(buf[4:12])
	blockSize := binary.LittleEndian.Uint32(buf[12:16])
	seq := binary.LittleEndian.Uint64(buf[16:24])
	const fixed = 4 + 8 + 4 + 8
	key := buf[fixed : fixed+int(keyLen)]
	return indexEntry{firstKey: key, offset: offset, blockSize: blockSize, seq: seq}, fixed + int(keyLen)
}
