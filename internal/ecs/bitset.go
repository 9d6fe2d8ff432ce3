// Package ecs implements the columnar entity-component store (spec §4.7):
// Bitset, Column (sparse set), World, and EntityManager.
package ecs

import "math/bits"

const wordBits = 64

// Bitset is a packed 64-bit-word set of entity ids, grounded on
// original_source/elements/src/bitset.rs.
type Bitset struct {
	words []uint64
}

func NewBitset() *Bitset { return &Bitset{} }

func (b *Bitset) ensure(word int) {
	for len(b.words) <= word {
		b.words = append(b.words, 0)
	}
}

func (b *Bitset) Set(id uint32) {
	word, bit := int(id/wordBits), id%wordBits
	b.ensure(word)
	b.words[word] |= 1 << bit
}

func (b *Bitset) Unset(id uint32) {
	word, bit := int(id/wordBits), id%wordBits
	if word >= len(b.words) {
		return
	}
	b.words[word] &^= 1 << bit
}

func (b *Bitset) Contains(id uint32) bool {
	word, bit := int(id/wordBits), id%wordBits
	if word >= len(b.words) {
		return false
	}
	return b.words[word]&(1<<bit) != 0
}

func (b *Bitset) IsEmpty() bool {
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Intersect returns a new Bitset containing ids present in every set.
func Intersect(sets ...*Bitset) *Bitset {
	out := NewBitset()
	if len(sets) == 0 {
		return out
	}
	maxLen := 0
	for _, s := range sets {
		if len(s.words) > maxLen {
			maxLen = len(s.words)
		}
	}
	out.ensure(maxLen - 1)
	for i := 0; i < maxLen; i++ {
		w := ^uint64(0)
		for _, s := range sets {
			if i < len(s.words) {
				w &= s.words[i]
			} else {
				w = 0
			}
		}
		out.words[i] = w
	}
	return out
}

// Difference returns a new Bitset containing ids in a but not in b.
func Difference(a, b *Bitset) *Bitset {
	out := NewBitset()
	out.ensure(len(a.words) - 1)
	for i, w := range a.words {
		var bw uint64
		if i < len(b.words) {
			bw = b.words[i]
		}
		out.words[i] = w &^ bw
	}
	return out
}

// IterIDs calls fn for every set id in ascending order, via trailing_zeros
// bit-scan, stopping if fn returns false.
func (b *Bitset) IterIDs(fn func(id uint32) bool) {
	for wi, w := range b.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			id := uint32(wi)*wordBits + uint32(tz)
			if !fn(id) {
				return
			}
			w &= w - 1
		}
	}
}

// IDs materializes IterIDs into a slice, used by tests and by queries that
// need a stable snapshot before mutating the world.
func (b *Bitset) IDs() []uint32 {
	var out []uint32
	b.IterIDs(func(id uint32) bool {
		out = append(out, id)
		return true
	})
	return out
}
