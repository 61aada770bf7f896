// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package hashtable is the layout shared by the package and flag tables.
//
// A table is a header, an array of bucket heads, and the nodes:
//
//	┌──────────────────────────────┐
//	│ header prefix                │
//	│ num elements     u32         │
//	│ bucket offset    u32         │
//	│ node offset      u32         │
//	├──────────────────────────────┤
//	│ bucket heads     u32 * nb    │  0 = empty
//	├──────────────────────────────┤
//	│ nodes, grouped by bucket     │  each ends with a u32 next offset
//	└──────────────────────────────┘
//
// Offsets are relative to the start of the file, so the table can be
// mapped at any address.  The number of buckets is never stored: it is
// (node offset - bucket offset) / 4.
package hashtable

import (
	"fmt"
	"math"
	"slices"

	"github.com/bpowers/flagstore/internal/bytesutil"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/storeerr"
)

// Header is the full header of a hash table file.
type Header struct {
	format.Prefix
	NumElements  uint32 `json:"num_elements"`
	BucketOffset uint32 `json:"bucket_offset"`
	NodeOffset   uint32 `json:"node_offset"`
}

// Len is the encoded size of the header.
func (h Header) Len() int {
	return h.Prefix.Len() + 3*4
}

func (h Header) Append(b []byte) []byte {
	b = h.Prefix.Append(b)
	b = bytesutil.AppendU32(b, h.NumElements)
	b = bytesutil.AppendU32(b, h.BucketOffset)
	return bytesutil.AppendU32(b, h.NodeOffset)
}

// ReadHeader decodes and sanity checks the header at the start of buf.
func ReadHeader(buf []byte, want format.FileType) (Header, error) {
	c := bytesutil.NewCursor(buf, 0)
	p, err := format.ReadPrefix(c, want)
	if err != nil {
		return Header{}, err
	}
	h := Header{Prefix: p}
	if h.NumElements, err = c.ReadU32(); err != nil {
		return Header{}, err
	}
	if h.BucketOffset, err = c.ReadU32(); err != nil {
		return Header{}, err
	}
	if h.NodeOffset, err = c.ReadU32(); err != nil {
		return Header{}, err
	}
	if err := checkRegions(uint32(c.Offset()), h.BucketOffset, h.NodeOffset, h.FileSize); err != nil {
		return Header{}, err
	}
	if err := format.CheckFileSize(h.FileSize, buf); err != nil {
		return Header{}, err
	}
	return h, nil
}

// View is the subset of the header a lookup needs.  Building one does
// not allocate.
type View struct {
	Version      uint32
	FileSize     uint32
	NumElements  uint32
	BucketOffset uint32
	NodeOffset   uint32
}

// ReadView is ReadHeader for the lookup path.
func ReadView(buf []byte, want format.FileType) (View, error) {
	c := bytesutil.NewCursor(buf, 0)
	var v View
	var err error
	if v.Version, v.FileSize, err = format.SkipPrefix(c, want); err != nil {
		return View{}, err
	}
	if v.NumElements, err = c.ReadU32(); err != nil {
		return View{}, err
	}
	if v.BucketOffset, err = c.ReadU32(); err != nil {
		return View{}, err
	}
	if v.NodeOffset, err = c.ReadU32(); err != nil {
		return View{}, err
	}
	if err := checkRegions(uint32(c.Offset()), v.BucketOffset, v.NodeOffset, v.FileSize); err != nil {
		return View{}, err
	}
	if err := format.CheckFileSize(v.FileSize, buf); err != nil {
		return View{}, err
	}
	return v, nil
}

func checkRegions(headerEnd, bucketOffset, nodeOffset, fileSize uint32) error {
	if bucketOffset < headerEnd || nodeOffset < bucketOffset || nodeOffset > fileSize ||
		(nodeOffset-bucketOffset)%4 != 0 {
		return fmt.Errorf("inconsistent table regions (header end %d, buckets %d, nodes %d, size %d): %w",
			headerEnd, bucketOffset, nodeOffset, fileSize, storeerr.BytesParseFail)
	}
	return nil
}

// NumBuckets is recovered from the region offsets.
func (v View) NumBuckets() uint32 {
	return (v.NodeOffset - v.BucketOffset) / 4
}

// NumBuckets is recovered from the region offsets.
func (h Header) NumBuckets() uint32 {
	return (h.NodeOffset - h.BucketOffset) / 4
}

func (v View) inNodeRegion(off uint32) bool {
	return off >= v.NodeOffset && off < v.FileSize
}

// Head returns the offset of the first node in bucket, or ok=false when
// the bucket is empty or points outside the node region.
func (v View) Head(buf []byte, bucket uint32) (off uint32, ok bool, err error) {
	c := bytesutil.NewCursor(buf, int(v.BucketOffset)+4*int(bucket))
	off, err = c.ReadU32()
	if err != nil {
		return 0, false, err
	}
	if off == 0 || !v.inNodeRegion(off) {
		return 0, false, nil
	}
	return off, true, nil
}

// Next validates the next pointer of the node at cur.  Nodes in a chain
// are stored at increasing offsets, which also guarantees the walk ends.
func (v View) Next(cur, next uint32) (uint32, bool, error) {
	if next == 0 {
		return 0, false, nil
	}
	if next <= cur || !v.inNodeRegion(next) {
		return 0, false, fmt.Errorf("node at %d has bad next offset %d: %w", cur, next, storeerr.BytesParseFail)
	}
	return next, true, nil
}

// Node is implemented by the node types of both tables.
type Node interface {
	// Bucket is the node's bucket index, computed before Place.
	Bucket() uint32
	// EncodedLen is the serialized size of the node.
	EncodedLen() int
	SetOffset(off uint32)
	SetNext(off uint32)
}

// Place orders nodes by bucket so that colliding nodes are contiguous,
// assigns each a file offset starting at nodeStart, links each to its
// successor in the same bucket, and returns the bucket heads.
func Place[N Node](nodes []N, numBuckets uint32, nodeStart uint32) ([]uint32, error) {
	slices.SortStableFunc(nodes, func(a, b N) int {
		switch {
		case a.Bucket() < b.Bucket():
			return -1
		case a.Bucket() > b.Bucket():
			return 1
		default:
			return 0
		}
	})

	heads := make([]uint32, numBuckets)
	offsets := make([]uint32, len(nodes))
	off := uint64(nodeStart)
	for i, n := range nodes {
		if n.Bucket() >= numBuckets {
			panic(fmt.Errorf("invariant broken: bucket %d out of %d", n.Bucket(), numBuckets))
		}
		if off > math.MaxUint32 {
			return nil, fmt.Errorf("table too large for 32-bit offsets: %w", storeerr.HashTableSizeLimit)
		}
		offsets[i] = uint32(off)
		n.SetOffset(uint32(off))
		if heads[n.Bucket()] == 0 {
			heads[n.Bucket()] = uint32(off)
		}
		off += uint64(n.EncodedLen())
	}
	if off > math.MaxUint32 {
		return nil, fmt.Errorf("table too large for 32-bit offsets: %w", storeerr.HashTableSizeLimit)
	}
	for i, n := range nodes {
		if i+1 < len(nodes) && nodes[i+1].Bucket() == n.Bucket() {
			n.SetNext(offsets[i+1])
		} else {
			n.SetNext(0)
		}
	}
	return heads, nil
}

// AppendBuckets encodes the bucket head array.
func AppendBuckets(b []byte, heads []uint32) []byte {
	for _, h := range heads {
		b = bytesutil.AppendU32(b, h)
	}
	return b
}

// ReadBuckets decodes the bucket head array of a table.
func ReadBuckets(buf []byte, h Header) ([]uint32, error) {
	c := bytesutil.NewCursor(buf, int(h.BucketOffset))
	heads := make([]uint32, h.NumBuckets())
	for i := range heads {
		v, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		heads[i] = v
	}
	return heads, nil
}
