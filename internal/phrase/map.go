package phrase

import (
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// ShardCount is the fixed number of sub-tables in a Map. A phrase's shard is
// the low bits of its hash.
const ShardCount = 64

const (
	shardBits = 6
	shardMask = ShardCount - 1
	minSlots  = 8
)

// separator terminates every word in the hash input. 0xFF never occurs in
// UTF-8, so ("ab","c") and ("a","bc") hash differently.
var separator = []byte{0xff}

// processSeed is drawn once per process. Maps built with New share it, which
// lets Merge reuse stored hashes instead of recomputing them.
var processSeed = rand.Uint64()

type slot struct {
	hash  uint64
	words []string // nil marks an empty slot
	count uint32
}

type shard struct {
	slots []slot
	used  int
}

// Map counts phrases of a fixed width across ShardCount open-addressing
// shards. Every lookup hashes the phrase exactly once; the hash selects the
// shard and drives the probe sequence, and is stored with the entry.
//
// Counts are uint32 and are not checked for overflow.
//
// A Map is not safe for concurrent use. Hand it between goroutines by
// transferring the pointer and dropping the old reference.
type Map struct {
	width  int
	seed   uint64
	len    int
	digest *xxhash.Digest
	shards [ShardCount]shard
}

// New returns an empty Map for phrases of the given width, hashed with the
// process seed.
func New(width int) *Map {
	return NewWithSeed(width, processSeed)
}

// NewWithSeed returns an empty Map using an explicit hash seed.
func NewWithSeed(width int, seed uint64) *Map {
	if width < 1 {
		panic(fmt.Sprintf("phrase: invalid width %d", width))
	}
	return &Map{
		width:  width,
		seed:   seed,
		digest: xxhash.NewWithSeed(seed),
	}
}

// Width returns the number of words per phrase.
func (m *Map) Width() int { return m.width }

// Len returns the number of distinct phrases.
func (m *Map) Len() int { return m.len }

// Capacity returns the total number of slots allocated across all shards.
func (m *Map) Capacity() int {
	total := 0
	for i := range m.shards {
		total += len(m.shards[i].slots)
	}
	return total
}

// Hash computes the seeded hash of p. It is the only hash computation an
// Add or AddOwned performs.
func (m *Map) Hash(p []string) uint64 {
	m.digest.ResetWithSeed(m.seed)
	for _, w := range p {
		m.digest.WriteString(w)
		m.digest.Write(separator)
	}
	return m.digest.Sum64()
}

// GetOrInsertWithHash returns the count slot for p, inserting p with count 0
// when absent. hash must be m.Hash(p). When owned is false the phrase is
// cloned before it is stored; otherwise p itself is adopted. The returned
// pointer is valid until the next insertion into m.
func (m *Map) GetOrInsertWithHash(hash uint64, p []string, owned bool) *uint32 {
	s := &m.shards[hash&shardMask]
	if (s.used+1)*4 > len(s.slots)*3 {
		s.resize(max(minSlots, len(s.slots)*2))
	}
	mask := uint64(len(s.slots) - 1)
	for i := (hash >> shardBits) & mask; ; i = (i + 1) & mask {
		sl := &s.slots[i]
		if sl.words == nil {
			if !owned {
				p = Clone(p)
			}
			sl.hash = hash
			sl.words = p
			s.used++
			m.len++
			return &sl.count
		}
		if sl.hash == hash && Equal(sl.words, p) {
			return &sl.count
		}
	}
}

// Add adds delta to the count of a borrowed phrase, copying it on first
// insertion.
func (m *Map) Add(p []string, delta uint32) {
	m.checkWidth(p)
	*m.GetOrInsertWithHash(m.Hash(p), p, false) += delta
}

// AddOwned adds delta to the count of a phrase whose storage the Map may
// keep. Used when merging entries decoded from spill files.
func (m *Map) AddOwned(p []string, delta uint32) {
	m.checkWidth(p)
	*m.GetOrInsertWithHash(m.Hash(p), p, true) += delta
}

// Merge moves every entry of donor into m and leaves donor empty. Stored
// hashes are reused when both maps share a seed.
func (m *Map) Merge(donor *Map) {
	if donor.width != m.width {
		panic(fmt.Sprintf("phrase: merging width %d into width %d", donor.width, m.width))
	}
	sameSeed := donor.seed == m.seed
	m.Reserve(donor.len)
	for i := range donor.shards {
		for _, sl := range donor.shards[i].slots {
			if sl.words == nil {
				continue
			}
			h := sl.hash
			if !sameSeed {
				h = m.Hash(sl.words)
			}
			*m.GetOrInsertWithHash(h, sl.words, true) += sl.count
		}
	}
	donor.Clear()
}

// Reserve grows the shards so that n more distinct phrases, spread evenly,
// fit without further resizing.
func (m *Map) Reserve(n int) {
	if n <= 0 {
		return
	}
	per := (n + ShardCount - 1) / ShardCount
	for i := range m.shards {
		s := &m.shards[i]
		need := s.used + per
		if need*4 <= len(s.slots)*3 {
			continue
		}
		size := max(minSlots, len(s.slots))
		for need*4 > size*3 {
			size *= 2
		}
		s.resize(size)
	}
}

// Clear removes every entry but keeps the allocated slots for reuse.
func (m *Map) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		clear(s.slots)
		s.used = 0
	}
	m.len = 0
}

// Reset removes every entry and releases the slot storage.
func (m *Map) Reset() {
	for i := range m.shards {
		m.shards[i] = shard{}
	}
	m.len = 0
}

// All yields every (phrase, count) pair exactly once, in shard order. The Map
// must not be modified during iteration.
func (m *Map) All() iter.Seq2[[]string, uint32] {
	return func(yield func([]string, uint32) bool) {
		for i := range m.shards {
			for _, sl := range m.shards[i].slots {
				if sl.words == nil {
					continue
				}
				if !yield(sl.words, sl.count) {
					return
				}
			}
		}
	}
}

// ShardLen returns the number of phrases stored in shard i.
func (m *Map) ShardLen(i int) int {
	return m.shards[i].used
}

func (m *Map) checkWidth(p []string) {
	if len(p) != m.width {
		panic(fmt.Sprintf("phrase: got %d words, map width is %d", len(p), m.width))
	}
}

// resize rehomes every entry into a table of the given power-of-two size
// using the stored hashes.
func (s *shard) resize(size int) {
	old := s.slots
	s.slots = make([]slot, size)
	mask := uint64(size - 1)
	for _, sl := range old {
		if sl.words == nil {
			continue
		}
		i := (sl.hash >> shardBits) & mask
		for s.slots[i].words != nil {
			i = (i + 1) & mask
		}
		s.slots[i] = sl
	}
}
