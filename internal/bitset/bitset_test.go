// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitset(t *testing.T) {
	b := New(128)

	require.Equal(t, 2, len(b.bits))
	require.Equal(t, uint32(128), b.Len())

	// should do nothing
	b.Set(132)

	zero := []uint64{0, 0}
	require.Equal(t, zero, b.bits)

	require.False(t, b.IsSet(7))
	b.Set(7)
	require.True(t, b.IsSet(7))
	b.Set(8)
	require.True(t, b.IsSet(8))
	require.Equal(t, 2, b.Count())
	b.Clear(7)
	require.False(t, b.IsSet(7))
	require.True(t, b.IsSet(8))
	b.Clear(8)
	require.Equal(t, zero, b.bits)

	for i := uint32(0); i < 128; i++ {
		b.Set(i)
	}

	full := []uint64{^uint64(0), ^uint64(0)}
	require.Equal(t, full, b.bits)
	require.Equal(t, 128, b.Count())

	// should do nothing
	b.Clear(137)
	require.Equal(t, full, b.bits)
	require.False(t, b.IsSet(137))
}

func TestBitset_Bools(t *testing.T) {
	b := New(5)
	b.Set(1)
	b.Set(4)
	require.Equal(t, []bool{false, true, false, false, true}, b.Bools())

	require.Empty(t, New(0).Bools())
}

func TestBitset_CountPartialWord(t *testing.T) {
	b := New(70)
	for i := uint32(0); i < 80; i++ {
		b.Set(i)
	}
	require.Equal(t, 70, b.Count())
	b.Clear(65)
	require.Equal(t, 69, b.Count())
}
