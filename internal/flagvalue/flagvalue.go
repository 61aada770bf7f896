// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package flagvalue is the dense list of current boolean flag values, one
// byte per flag (1 = true), indexed by a package's boolean start index
// plus the flag's id.
package flagvalue

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/storeerr"
)

// List is the decoded form of a flag value file.
type List struct {
	Header        format.ListHeader `json:"header"`
	BooleanValues []bool            `json:"booleans"`
}

// Build returns a list holding values in global index order.
func Build(version uint32, container string, values []bool) *List {
	h := format.ListHeader{
		Prefix: format.Prefix{
			Version:   version,
			Container: container,
			FileType:  format.FlagVal,
		},
		NumFlags: uint32(len(values)),
	}
	h.BooleanOffset = uint32(h.Len())
	h.FileSize = h.BooleanOffset + uint32(len(values))
	return &List{
		Header:        h,
		BooleanValues: append([]bool(nil), values...),
	}
}

// Encode serializes the list.  It fails if the list is inconsistent with
// its header, which only happens for hand-edited lists.
func (l *List) Encode() ([]byte, error) {
	b := make([]byte, 0, l.Header.FileSize)
	b = l.Header.Append(b)
	for _, v := range l.BooleanValues {
		b = append(b, boolByte(v))
	}
	if len(b) != int(l.Header.FileSize) {
		return nil, fmt.Errorf("encoded %d bytes, header says %d: %w", len(b), l.Header.FileSize, storeerr.BytesParseFail)
	}
	return b, nil
}

// Bytes serializes a list produced by Build.
func (l *List) Bytes() []byte {
	b, err := l.Encode()
	if err != nil {
		panic(fmt.Errorf("invariant broken: %w", err))
	}
	return b
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Decode parses an entire flag value file.
func Decode(buf []byte) (*List, error) {
	h, err := format.ReadListHeader(buf, format.FlagVal)
	if err != nil {
		return nil, err
	}
	if uint64(h.BooleanOffset)+uint64(h.NumFlags) != uint64(h.FileSize) {
		return nil, fmt.Errorf("flag value file has %d trailing bytes: %w",
			uint64(h.FileSize)-uint64(h.BooleanOffset)-uint64(h.NumFlags), storeerr.BytesParseFail)
	}
	l := &List{Header: h, BooleanValues: make([]bool, h.NumFlags)}
	for i, b := range buf[h.BooleanOffset:h.FileSize] {
		l.BooleanValues[i] = b == 1
	}
	return l, nil
}

// Get returns the boolean value at a global flag index.
func Get(buf []byte, index uint32) (bool, error) {
	off, _, err := format.ListEntry(buf, format.FlagVal, index)
	if err != nil {
		return false, err
	}
	return buf[off] == 1, nil
}

// Set overwrites the boolean value at a global flag index in place.  The
// caller owns flushing buf to durable storage.
func Set(buf []byte, index uint32, value bool) error {
	off, _, err := format.ListEntry(buf, format.FlagVal, index)
	if err != nil {
		return err
	}
	buf[off] = boolByte(value)
	return nil
}
