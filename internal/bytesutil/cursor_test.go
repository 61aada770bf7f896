// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bytesutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/flagstore/internal/storeerr"
)

func TestCursor_RoundTrip(t *testing.T) {
	var b []byte
	b = AppendU8(b, 7)
	b = AppendU16(b, 0xbeef)
	b = AppendU32(b, 0xdeadbeef)
	b = AppendU64(b, 1<<40+3)
	b = AppendString(b, "pkg.a")
	b = AppendString(b, "")

	c := NewCursor(b, 0)
	u8, err := c.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)
	u16, err := c.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), u16)
	u32, err := c.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	u64, err := c.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40+3), u64)
	s, err := c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "pkg.a", s)
	s, err = c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.Equal(t, len(b), c.Offset())

	_, err = c.ReadU8()
	assert.True(t, errors.Is(err, storeerr.BytesParseFail))
}

func TestCursor_Truncated(t *testing.T) {
	b := AppendString(nil, "hello")

	// every proper prefix must fail cleanly without moving the cursor
	for i := 0; i < len(b); i++ {
		c := NewCursor(b[:i], 0)
		_, err := c.ReadString()
		require.Error(t, err, "prefix %d", i)
		assert.True(t, errors.Is(err, storeerr.BytesParseFail))
		assert.Equal(t, 0, c.Offset())
	}

	c := NewCursor([]byte{1, 2, 3}, 0)
	_, err := c.ReadU32()
	assert.True(t, errors.Is(err, storeerr.BytesParseFail))
	_, err = c.ReadU64()
	assert.Error(t, err)
	v, err := c.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)
}

func TestPutU32At(t *testing.T) {
	b := AppendU32(nil, 0)
	b = AppendU32(b, 0)
	PutU32At(b, 4, 42)
	c := NewCursor(b, 4)
	v, err := c.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}
