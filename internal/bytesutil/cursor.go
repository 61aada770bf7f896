// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bytesutil contains the little-endian primitives every storage
// file is built from.  Reads go through a Cursor, which never reads past
// the end of its buffer; writes append to a byte slice.
package bytesutil

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bpowers/flagstore/internal/storeerr"
)

// Cursor is a read position over a byte slice.  Every Read* method
// bounds-checks and returns an error wrapping storeerr.BytesParseFail
// on a short buffer, leaving the cursor where it was.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at off within buf.
func NewCursor(buf []byte, off int) *Cursor {
	return &Cursor{buf: buf, off: off}
}

// Offset is the current byte position.
func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.off < 0 || c.off > len(c.buf)-n {
		return nil, fmt.Errorf("read of %d bytes at offset %d overruns buffer of %d: %w", n, c.off, len(c.buf), storeerr.BytesParseFail)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadStringBytes reads a u32 length prefix followed by that many bytes.
// The returned slice aliases the underlying buffer.
func (c *Cursor) ReadStringBytes() ([]byte, error) {
	start := c.off
	n, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(math.MaxInt32) {
		c.off = start
		return nil, fmt.Errorf("string length %d too large: %w", n, storeerr.BytesParseFail)
	}
	b, err := c.take(int(n))
	if err != nil {
		c.off = start
		return nil, err
	}
	return b, nil
}

// ReadString is ReadStringBytes with a copy into a new string.
func (c *Cursor) ReadString() (string, error) {
	b, err := c.ReadStringBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func AppendU8(b []byte, v uint8) []byte {
	return append(b, v)
}

func AppendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func AppendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func AppendU64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

// AppendString writes a u32 length prefix followed by the bytes of s.
func AppendString(b []byte, s string) []byte {
	b = AppendU32(b, uint32(len(s)))
	return append(b, s...)
}

// StringLen is the encoded size of s.
func StringLen(s string) int {
	return 4 + len(s)
}

// PutU32At overwrites a u32 previously appended at off.
func PutU32At(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}
