// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flaginfo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/flagstore/internal/bytesutil"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/storeerr"
)

func TestBit(t *testing.T) {
	for _, tc := range []struct {
		version uint32
		attr    Attribute
		bit     uint8
	}{
		{1, IsSticky, 1 << 0},
		{1, IsReadWrite, 1 << 1},
		{1, HasServerOverride, 1 << 2},
		{2, IsReadWrite, 1 << 0},
		{2, HasServerOverride, 1 << 1},
		{2, HasLocalOverride, 1 << 2},
	} {
		bit, err := Bit(tc.version, tc.attr)
		require.NoError(t, err)
		assert.Equal(t, tc.bit, bit, "v%d %s", tc.version, tc.attr)
	}

	for _, tc := range []struct {
		version uint32
		attr    Attribute
	}{
		{1, HasLocalOverride},
		{2, IsSticky},
		{3, IsReadWrite},
	} {
		_, err := Bit(tc.version, tc.attr)
		assert.True(t, errors.Is(err, storeerr.InvalidFlagAttribute), "v%d %s", tc.version, tc.attr)
	}
}

func TestAttributes_RoundTrip(t *testing.T) {
	for raw := 0; raw < 8; raw++ {
		for _, version := range []uint32{1, 2} {
			a := DecodeAttributes(version, uint8(raw))
			got, err := EncodeAttributes(version, a)
			require.NoError(t, err)
			assert.Equal(t, uint8(raw), got, "v%d raw %#x", version, raw)
		}
	}

	_, err := EncodeAttributes(2, Attributes{IsSticky: true})
	assert.True(t, errors.Is(err, storeerr.InvalidFlagAttribute))
	_, err = EncodeAttributes(1, Attributes{HasLocalOverride: true})
	assert.True(t, errors.Is(err, storeerr.InvalidFlagAttribute))
}

func TestDecodeAttributes_VersionLayouts(t *testing.T) {
	// the same byte means different things in the two layouts
	assert.Equal(t, Attributes{IsSticky: true, HasServerOverride: true}, DecodeAttributes(1, 0b101))
	assert.Equal(t, Attributes{IsReadWrite: true, HasLocalOverride: true}, DecodeAttributes(2, 0b101))
}

func testAttributes() []Attributes {
	return []Attributes{
		{IsReadWrite: true},
		{},
		{IsReadWrite: true, HasServerOverride: true},
		{HasServerOverride: true},
		{IsReadWrite: true},
	}
}

func TestBuild_RoundTrip(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			l, err := Build(version, "product", testAttributes())
			require.NoError(t, err)
			buf := l.Bytes()
			assert.Equal(t, int(l.Header.FileSize), len(buf))

			decoded, err := Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, l, decoded)
		})
	}
}

func TestBuild_Unrepresentable(t *testing.T) {
	_, err := Build(1, "product", []Attributes{{HasLocalOverride: true}})
	assert.True(t, errors.Is(err, storeerr.InvalidFlagAttribute), "%v", err)
}

func TestGet(t *testing.T) {
	attrs := testAttributes()
	l, err := Build(2, "product", attrs)
	require.NoError(t, err)
	buf := l.Bytes()
	for i, want := range attrs {
		got, err := Get(buf, format.BooleanValue, uint32(i))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = Get(buf, format.BooleanValue, uint32(len(attrs)))
	assert.True(t, errors.Is(err, storeerr.InvalidStorageFileOffset), "%v", err)
	_, err = Get(buf, format.ValueType(9), 0)
	assert.True(t, errors.Is(err, storeerr.InvalidStorageFileOffset), "%v", err)
}

func TestSet(t *testing.T) {
	attrs := testAttributes()
	for _, version := range []uint32{1, 2} {
		l, err := Build(version, "product", attrs)
		require.NoError(t, err)
		buf := l.Bytes()
		before := append([]byte(nil), buf...)

		require.NoError(t, Set(buf, format.BooleanValue, 1, HasServerOverride, true))
		got, err := Get(buf, format.BooleanValue, 1)
		require.NoError(t, err)
		assert.Equal(t, Attributes{HasServerOverride: true}, got)

		// setting a bit that's already set changes nothing
		after := append([]byte(nil), buf...)
		require.NoError(t, Set(buf, format.BooleanValue, 1, HasServerOverride, true))
		assert.Equal(t, after, buf)

		require.NoError(t, Set(buf, format.BooleanValue, 1, HasServerOverride, false))
		assert.Equal(t, before, buf)

		// other bits of the same byte survive
		require.NoError(t, Set(buf, format.BooleanValue, 2, HasServerOverride, false))
		got, err = Get(buf, format.BooleanValue, 2)
		require.NoError(t, err)
		assert.Equal(t, Attributes{IsReadWrite: true}, got)
	}
}

func TestSet_AttributeNotInVersion(t *testing.T) {
	l, err := Build(1, "product", testAttributes())
	require.NoError(t, err)
	buf := l.Bytes()
	before := append([]byte(nil), buf...)
	err = Set(buf, format.BooleanValue, 0, HasLocalOverride, true)
	assert.True(t, errors.Is(err, storeerr.InvalidFlagAttribute), "%v", err)
	assert.Equal(t, before, buf)
}

func TestGetSet_BooleanOffsetInHeader(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			l, err := Build(version, "product", testAttributes())
			require.NoError(t, err)
			buf := l.Bytes()
			bytesutil.PutU32At(buf, l.Header.Len()-4, 0)
			before := append([]byte(nil), buf...)

			_, err = Get(buf, format.BooleanValue, 0)
			assert.True(t, errors.Is(err, storeerr.BytesParseFail), "%v", err)
			err = Set(buf, format.BooleanValue, 0, HasServerOverride, true)
			assert.True(t, errors.Is(err, storeerr.BytesParseFail), "%v", err)
			assert.Equal(t, before, buf)
		})
	}
}
