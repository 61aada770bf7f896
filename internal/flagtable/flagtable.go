// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package flagtable maps (package id, flag name) to a flag's type and its
// id within the package.
//
// A flag node is:
//
//	package id    u32
//	flag name     u32 + bytes
//	flag type     u16
//	flag id       u16
//	next offset   u32   (0 = end of chain)
package flagtable

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/bytesutil"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/hashing"
	"github.com/bpowers/flagstore/internal/hashtable"
	"github.com/bpowers/flagstore/internal/storeerr"
	"github.com/bpowers/flagstore/internal/unsafestring"
)

// Node is one flag entry.
type Node struct {
	PackageID  uint32          `json:"package_id"`
	FlagName   string          `json:"flag_name"`
	FlagType   format.FlagType `json:"flag_type"`
	FlagID     uint16          `json:"flag_id"`
	NextOffset uint32          `json:"next_offset"`
}

func nodeLen(name string) int {
	return 4 + bytesutil.StringLen(name) + 2 + 2 + 4
}

func (n *Node) append(b []byte) []byte {
	b = bytesutil.AppendU32(b, n.PackageID)
	b = bytesutil.AppendString(b, n.FlagName)
	b = bytesutil.AppendU16(b, uint16(n.FlagType))
	b = bytesutil.AppendU16(b, n.FlagID)
	return bytesutil.AppendU32(b, n.NextOffset)
}

type rawNode struct {
	packageID uint32
	name      []byte
	flagType  format.FlagType
	flagID    uint16
	next      uint32
}

func readNode(c *bytesutil.Cursor) (rawNode, error) {
	var n rawNode
	var err error
	if n.packageID, err = c.ReadU32(); err != nil {
		return rawNode{}, err
	}
	if n.name, err = c.ReadStringBytes(); err != nil {
		return rawNode{}, err
	}
	rawType, err := c.ReadU16()
	if err != nil {
		return rawNode{}, err
	}
	if n.flagType, err = format.ParseFlagType(rawType); err != nil {
		return rawNode{}, err
	}
	if n.flagID, err = c.ReadU16(); err != nil {
		return rawNode{}, err
	}
	if n.next, err = c.ReadU32(); err != nil {
		return rawNode{}, err
	}
	return n, nil
}

// Table is the decoded form of a flag map file.
type Table struct {
	Header  hashtable.Header `json:"header"`
	Buckets []uint32         `json:"buckets"`
	Nodes   []Node           `json:"nodes"`
}

// Entry is the builder's description of one flag.
type Entry struct {
	PackageID uint32
	Name      string
	Type      format.FlagType
	FlagID    uint16
}

type flagKey struct {
	packageID uint32
	name      string
}

type placed struct {
	node   Node
	bucket uint32
	size   int
}

func (p *placed) Bucket() uint32       { return p.bucket }
func (p *placed) EncodedLen() int      { return p.size }
func (p *placed) SetOffset(off uint32) {}
func (p *placed) SetNext(off uint32)   { p.node.NextOffset = off }

// Build lays out a flag table for the given entries.
func Build(version uint32, container string, entries []Entry) (*Table, error) {
	numBuckets, err := hashing.TableSize(uint32(len(entries)))
	if err != nil {
		return nil, err
	}

	h := hashtable.Header{
		Prefix: format.Prefix{
			Version:   version,
			Container: container,
			FileType:  format.FlagMap,
		},
		NumElements: uint32(len(entries)),
	}
	h.BucketOffset = uint32(h.Len())
	h.NodeOffset = h.BucketOffset + 4*numBuckets

	nodes := make([]*placed, 0, len(entries))
	seen := make(map[flagKey]struct{}, len(entries))
	for _, e := range entries {
		k := flagKey{e.PackageID, e.Name}
		if _, ok := seen[k]; ok {
			return nil, fmt.Errorf("duplicate flag %q in package %d: %w", e.Name, e.PackageID, storeerr.FileCreationFail)
		}
		seen[k] = struct{}{}
		nodes = append(nodes, &placed{
			node: Node{
				PackageID: e.PackageID,
				FlagName:  e.Name,
				FlagType:  e.Type,
				FlagID:    e.FlagID,
			},
			bucket: hashing.FlagBucket(e.PackageID, e.Name, numBuckets),
			size:   nodeLen(e.Name),
		})
	}

	heads, err := hashtable.Place(nodes, numBuckets, h.NodeOffset)
	if err != nil {
		return nil, err
	}

	t := &Table{Header: h, Buckets: heads, Nodes: make([]Node, len(nodes))}
	size := uint64(h.NodeOffset)
	for i, n := range nodes {
		t.Nodes[i] = n.node
		size += uint64(n.size)
	}
	t.Header.FileSize = uint32(size)
	return t, nil
}

// Encode serializes the table.  It fails if the table is inconsistent with
// its header, which only happens for hand-edited tables.
func (t *Table) Encode() ([]byte, error) {
	b := make([]byte, 0, t.Header.FileSize)
	b = t.Header.Append(b)
	b = hashtable.AppendBuckets(b, t.Buckets)
	for i := range t.Nodes {
		b = t.Nodes[i].append(b)
	}
	if len(b) != int(t.Header.FileSize) {
		return nil, fmt.Errorf("encoded %d bytes, header says %d: %w", len(b), t.Header.FileSize, storeerr.BytesParseFail)
	}
	return b, nil
}

// Bytes serializes a table produced by Build.
func (t *Table) Bytes() []byte {
	b, err := t.Encode()
	if err != nil {
		panic(fmt.Errorf("invariant broken: %w", err))
	}
	return b
}

// Decode parses an entire flag map file.
func Decode(buf []byte) (*Table, error) {
	h, err := hashtable.ReadHeader(buf, format.FlagMap)
	if err != nil {
		return nil, err
	}
	buckets, err := hashtable.ReadBuckets(buf, h)
	if err != nil {
		return nil, err
	}
	t := &Table{Header: h, Buckets: buckets}
	c := bytesutil.NewCursor(buf[:h.FileSize], int(h.NodeOffset))
	for c.Offset() < int(h.FileSize) {
		n, err := readNode(c)
		if err != nil {
			return nil, err
		}
		t.Nodes = append(t.Nodes, Node{
			PackageID:  n.packageID,
			FlagName:   string(n.name),
			FlagType:   n.flagType,
			FlagID:     n.flagID,
			NextOffset: n.next,
		})
	}
	if len(t.Nodes) != int(h.NumElements) {
		return nil, fmt.Errorf("header claims %d flags, found %d: %w", h.NumElements, len(t.Nodes), storeerr.BytesParseFail)
	}
	return t, nil
}

// Context is what a flag lookup resolves to.
type Context struct {
	FlagType format.FlagType
	FlagID   uint16
}

// Find looks up a flag by package id and name.  ok is false if there is
// no such flag, including when another key shares its bucket.
func Find(buf []byte, packageID uint32, name string) (ctx Context, ok bool, err error) {
	v, err := hashtable.ReadView(buf, format.FlagMap)
	if err != nil {
		return Context{}, false, err
	}
	if v.NumBuckets() == 0 {
		return Context{}, false, nil
	}

	bucket := hashing.FlagBucket(packageID, name, v.NumBuckets())
	off, ok, err := v.Head(buf, bucket)
	for ok && err == nil {
		var n rawNode
		n, err = readNode(bytesutil.NewCursor(buf[:v.FileSize], int(off)))
		if err != nil {
			break
		}
		if n.packageID == packageID && unsafestring.FromBytes(n.name) == name {
			return Context{FlagType: n.flagType, FlagID: n.flagID}, true, nil
		}
		off, ok, err = v.Next(off, n.next)
	}
	return Context{}, false, err
}

// List returns every node in file order.
func List(buf []byte) ([]Node, error) {
	t, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	return t.Nodes, nil
}
