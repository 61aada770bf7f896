// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bitset tracks one bit per global flag index while a container
// is being built.
package bitset

import "math/bits"

// Bitset is conceptually a []bool indexed by global flag index.
type Bitset struct {
	bits   []uint64
	length uint32
}

// New returns a bitset of length bits, all clear.
func New(length uint32) *Bitset {
	return &Bitset{
		bits:   make([]uint64, (uint64(length)+63)/64),
		length: length,
	}
}

func offsets(i uint32) (word uint32, mask uint64) {
	return i / 64, 1 << (i % 64)
}

// Len is the number of bits.
func (b *Bitset) Len() uint32 {
	return b.length
}

// Set sets bit i.  Out of range indices are ignored.
func (b *Bitset) Set(i uint32) {
	if i >= b.length {
		return
	}
	w, m := offsets(i)
	b.bits[w] |= m
}

// Clear clears bit i.  Out of range indices are ignored.
func (b *Bitset) Clear(i uint32) {
	if i >= b.length {
		return
	}
	w, m := offsets(i)
	b.bits[w] &^= m
}

// IsSet reports whether bit i is set; out of range bits never are.
func (b *Bitset) IsSet(i uint32) bool {
	if i >= b.length {
		return false
	}
	w, m := offsets(i)
	return b.bits[w]&m != 0
}

// Count is the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Bools expands the bitset, one entry per bit.
func (b *Bitset) Bools() []bool {
	out := make([]bool, b.length)
	for i := range out {
		out[i] = b.IsSet(uint32(i))
	}
	return out
}
