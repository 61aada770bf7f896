// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package format

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/bytesutil"
	"github.com/bpowers/flagstore/internal/storeerr"
)

// ListHeader is the header of the two dense per-flag lists (values and
// info).  Entry i of the boolean region lives at BooleanOffset + i.
type ListHeader struct {
	Prefix
	NumFlags      uint32 `json:"num_flags"`
	BooleanOffset uint32 `json:"boolean_offset"`
}

func (h ListHeader) Len() int {
	return h.Prefix.Len() + 2*4
}

func (h ListHeader) Append(b []byte) []byte {
	b = h.Prefix.Append(b)
	b = bytesutil.AppendU32(b, h.NumFlags)
	return bytesutil.AppendU32(b, h.BooleanOffset)
}

// ReadListHeader decodes the header of a list file of kind want.
func ReadListHeader(buf []byte, want FileType) (ListHeader, error) {
	c := bytesutil.NewCursor(buf, 0)
	p, err := ReadPrefix(c, want)
	if err != nil {
		return ListHeader{}, err
	}
	h := ListHeader{Prefix: p}
	if h.NumFlags, err = c.ReadU32(); err != nil {
		return ListHeader{}, err
	}
	if h.BooleanOffset, err = c.ReadU32(); err != nil {
		return ListHeader{}, err
	}
	if err := h.check(uint32(c.Offset()), buf); err != nil {
		return ListHeader{}, err
	}
	return h, nil
}

func (h ListHeader) check(headerEnd uint32, buf []byte) error {
	end := uint64(h.BooleanOffset) + uint64(h.NumFlags)
	if h.BooleanOffset < headerEnd || end > uint64(h.FileSize) {
		return fmt.Errorf("boolean region [%d, %d) outside file of %d: %w", h.BooleanOffset, end, h.FileSize, storeerr.BytesParseFail)
	}
	return CheckFileSize(h.FileSize, buf)
}

// ListEntry resolves the byte offset of entry index in a list file
// without allocating.  It returns the file's version alongside, since the
// meaning of info bits depends on it.
func ListEntry(buf []byte, want FileType, index uint32) (off int, version uint32, err error) {
	c := bytesutil.NewCursor(buf, 0)
	version, fileSize, err := SkipPrefix(c, want)
	if err != nil {
		return 0, 0, err
	}
	numFlags, err := c.ReadU32()
	if err != nil {
		return 0, 0, err
	}
	booleanOffset, err := c.ReadU32()
	if err != nil {
		return 0, 0, err
	}
	if end := uint64(booleanOffset) + uint64(numFlags); booleanOffset < uint32(c.Offset()) || end > uint64(fileSize) {
		return 0, 0, fmt.Errorf("boolean region [%d, %d) outside file of %d: %w", booleanOffset, end, fileSize, storeerr.BytesParseFail)
	}
	if err := CheckFileSize(fileSize, buf); err != nil {
		return 0, 0, err
	}
	entry := uint64(booleanOffset) + uint64(index)
	if index >= numFlags || entry >= uint64(fileSize) {
		return 0, 0, fmt.Errorf("flag index %d (byte offset %d) out of range for %d flags in file of %d bytes: %w",
			index, entry, numFlags, fileSize, storeerr.InvalidStorageFileOffset)
	}
	return int(entry), version, nil
}
