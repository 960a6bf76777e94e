// Package bloom implements the double-hashing Bloom filter each SSTable
// embeds (spec §4.4). The sizing formulas and Add/MayContain/Merge/(Un)Marshal
// shape are adapted from the teacher's pkg/lsm/bloom.go; the two hash
// functions are swapped from FNV to the murmur3/xxhash pair spec.md calls
// for, since a real SSTable bloom needs two genuinely independent hashes.
package bloom

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/twmb/murmur3"

	"github.com/concordkv/concordkv/internal/errs"
)

// seedXor is XORed into the seed that is folded into the key before the
// second hash, per spec §4.4:
// "h2 = murmur3_64 or xxhash(key, seed0 ⊕ 0xAAAAAAAA)".
const seedXor = 0xAAAAAAAA

// Filter is a probabilistic set-membership structure: no false negatives,
// a bounded false-positive rate.
type Filter struct {
	bits      []byte
	bitCount  int
	hashCount int
	seed      uint64
}

// New creates a Filter sized for expectedItems entries at falsePositiveRate,
// per spec §4.4: m = -n*ln(p)/(ln2)^2, k = round((m/n)*ln2), k >= 1.
func New(expectedItems int, falsePositiveRate float64) *Filter {
	return NewSeeded(expectedItems, falsePositiveRate, 0)
}

// NewSeeded is New with an explicit seed, used when reconstructing a filter
// whose seed must match the one recorded at write time.
func NewSeeded(expectedItems int, falsePositiveRate float64, seed uint64) *Filter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m := int(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m < 8 {
		m = 8
	}
	k := int(math.Round((float64(m) / float64(expectedItems)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	return &Filter{
		bits:      make([]byte, (m+7)/8),
		bitCount:  m,
		hashCount: k,
		seed:      seed,
	}
}

// FromBits reconstructs a Filter with an exact bit count, hash count, and
// seed — used by a reader that already knows these three values from a
// persisted block (rather than recomputing them from an expected item
// count and false-positive rate, which only the writer ever had).
func FromBits(bitCount, hashCount int, seed uint64) *Filter {
	if bitCount < 8 {
		bitCount = 8
	}
	if hashCount < 1 {
		hashCount = 1
	}
	return &Filter{
		bits:      make([]byte, (bitCount+7)/8),
		bitCount:  bitCount,
		hashCount: hashCount,
		seed:      seed,
	}
}

// Add records key as a member.
func (f *Filter) Add(key []byte) {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.hashCount; i++ {
		f.setBit(f.bitIndex(h1, h2, i))
	}
}

// MayContain reports whether key might be in the set. false is a definitive
// answer; true may be a false positive.
func (f *Filter) MayContain(key []byte) bool {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.hashCount; i++ {
		if !f.getBit(f.bitIndex(h1, h2, i)) {
			return false
		}
	}
	return true
}

// hashes computes the two independent 64-bit hashes double-hashing combines.
func (f *Filter) hashes(key []byte) (uint64, uint64) {
	h1 := murmur3.SeedSum64(f.seed, key)
	h2 := xxhash.Sum64(xorSeeded(key, f.seed^seedXor))
	if h2%2 == 0 {
		h2++ // keep h2 coprime-ish with bitCount to avoid clustering
	}
	return h1, h2
}

// xorSeeded folds seed into the key bytes without mutating the caller's
// slice, so the second hash is a function of (key, seed) rather than key
// alone.
func xorSeeded(key []byte, seed uint64) []byte {
	out := make([]byte, len(key)+8)
	copy(out, key)
	for i := 0; i < 8; i++ {
		out[len(key)+i] = byte(seed >> (8 * i))
	}
	return out
}

func (f *Filter) bitIndex(h1, h2 uint64, i int) int {
	combined := h1 + uint64(i)*h2
	return int(combined % uint64(f.bitCount))
}

func (f *Filter) setBit(i int) { f.bits[i/8] |= 1 << uint(i%8) }
func (f *Filter) getBit(i int) bool {
	return f.bits[i/8]&(1<<uint(i%8)) != 0
}

// BitCount returns the number of bits in the filter.
func (f *Filter) BitCount() int { return f.bitCount }

// HashCount returns the number of hash rounds per Add/MayContain.
func (f *Filter) HashCount() int { return f.hashCount }

// Seed returns the seed this filter was constructed with.
func (f *Filter) Seed() uint64 { return f.seed }

// EstimateFalsePositiveRate estimates the current false-positive rate given
// the number of items actually inserted.
func (f *Filter) EstimateFalsePositiveRate(itemCount int) float64 {
	k := float64(f.hashCount)
	n := float64(itemCount)
	m := float64(f.bitCount)
	return math.Pow(1.0-math.Exp(-k*n/m), k)
}

// Merge ORs other into f. Both filters must share bit count, hash count and
// seed.
func (f *Filter) Merge(other *Filter) error {
	if f.bitCount != other.bitCount || f.hashCount != other.hashCount || f.seed != other.seed {
		return errs.New(errs.InvalidParam, "Filter.Merge", "incompatible bloom filters")
	}
	for i := range f.bits {
		f.bits[i] |= other.bits[i]
	}
	return nil
}

// MarshalBinary serializes the raw bit array only (not bitCount, hashCount
// or seed, which the SSTable bloom block records separately in its header
// and body prefix).
func (f *Filter) MarshalBinary() []byte {
	out := make([]byte, len(f.bits))
	copy(out, f.bits)
	return out
}

// UnmarshalBinary loads a raw bit array previously produced by
// MarshalBinary. The Filter must already have been constructed with the
// matching bitCount/hashCount/seed (e.g. via FromBits from the values the
// SSTable bloom block stores);
// a length mismatch is a corruption error.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) != len(f.bits) {
		return errs.New(errs.Corrupted, "Filter.UnmarshalBinary", "bit array length mismatch")
	}
	copy(f.bits, data)
	return nil
}
