// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package flaginfo is the dense list of per-flag attribute bytes, laid out
// exactly like the value list.
package flaginfo

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/storeerr"
)

// List is the decoded form of a flag info file.
type List struct {
	Header     format.ListHeader `json:"header"`
	Attributes []Attributes      `json:"attributes"`
}

// Build returns a list holding attrs in global index order.
func Build(version uint32, container string, attrs []Attributes) (*List, error) {
	h := format.ListHeader{
		Prefix: format.Prefix{
			Version:   version,
			Container: container,
			FileType:  format.FlagInfo,
		},
		NumFlags: uint32(len(attrs)),
	}
	h.BooleanOffset = uint32(h.Len())
	h.FileSize = h.BooleanOffset + uint32(len(attrs))
	for i, a := range attrs {
		if _, err := EncodeAttributes(version, a); err != nil {
			return nil, fmt.Errorf("flag %d: %w", i, err)
		}
	}
	return &List{
		Header:     h,
		Attributes: append([]Attributes(nil), attrs...),
	}, nil
}

// Encode serializes the list.  It fails if the list is inconsistent with
// its header, which only happens for hand-edited lists.
func (l *List) Encode() ([]byte, error) {
	b := make([]byte, 0, l.Header.FileSize)
	b = l.Header.Append(b)
	for i, a := range l.Attributes {
		raw, err := EncodeAttributes(l.Header.Version, a)
		if err != nil {
			return nil, fmt.Errorf("flag %d: %w", i, err)
		}
		b = append(b, raw)
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

// Decode parses an entire flag info file.
func Decode(buf []byte) (*List, error) {
	h, err := format.ReadListHeader(buf, format.FlagInfo)
	if err != nil {
		return nil, err
	}
	if uint64(h.BooleanOffset)+uint64(h.NumFlags) != uint64(h.FileSize) {
		return nil, fmt.Errorf("flag info file has %d trailing bytes: %w",
			uint64(h.FileSize)-uint64(h.BooleanOffset)-uint64(h.NumFlags), storeerr.BytesParseFail)
	}
	l := &List{Header: h, Attributes: make([]Attributes, h.NumFlags)}
	for i, raw := range buf[h.BooleanOffset:h.FileSize] {
		l.Attributes[i] = DecodeAttributes(h.Version, raw)
	}
	return l, nil
}

// GetRaw returns the undecoded info byte at a global flag index along
// with the file's version.
func GetRaw(buf []byte, valueType format.ValueType, index uint32) (raw uint8, version uint32, err error) {
	if valueType != format.BooleanValue {
		return 0, 0, fmt.Errorf("value type %d has no info region: %w", valueType, storeerr.InvalidStorageFileOffset)
	}
	off, version, err := format.ListEntry(buf, format.FlagInfo, index)
	if err != nil {
		return 0, 0, err
	}
	return buf[off], version, nil
}

// Get returns the attributes at a global flag index.
func Get(buf []byte, valueType format.ValueType, index uint32) (Attributes, error) {
	raw, version, err := GetRaw(buf, valueType, index)
	if err != nil {
		return Attributes{}, err
	}
	return DecodeAttributes(version, raw), nil
}

// Set changes one attribute of the flag at a global flag index in place.
// The byte is only written when the bit actually changes, so a no-op
// update never dirties the page.  The caller owns flushing buf.
func Set(buf []byte, valueType format.ValueType, index uint32, attr Attribute, value bool) error {
	if valueType != format.BooleanValue {
		return fmt.Errorf("value type %d has no info region: %w", valueType, storeerr.InvalidStorageFileOffset)
	}
	off, version, err := format.ListEntry(buf, format.FlagInfo, index)
	if err != nil {
		return err
	}
	bit, err := Bit(version, attr)
	if err != nil {
		return err
	}
	if (buf[off]&bit != 0) != value {
		buf[off] ^= bit
	}
	return nil
}
