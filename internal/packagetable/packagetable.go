// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package packagetable maps package names to their dense id and the
// index of their first flag in the value and info lists.
//
// A package node is:
//
//	name                 u32 + bytes
//	package id           u32
//	boolean start index  u32
//	fingerprint          u64   (version 2+)
//	next offset          u32   (0 = end of chain)
package packagetable

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/bytesutil"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/hashing"
	"github.com/bpowers/flagstore/internal/hashtable"
	"github.com/bpowers/flagstore/internal/storeerr"
	"github.com/bpowers/flagstore/internal/unsafestring"
)

// Node is one package entry.
type Node struct {
	PackageName       string `json:"package_name"`
	PackageID         uint32 `json:"package_id"`
	BooleanStartIndex uint32 `json:"boolean_start_index"`
	Fingerprint       uint64 `json:"fingerprint"`
	NextOffset        uint32 `json:"next_offset"`
}

func nodeLen(version uint32, name string) int {
	n := bytesutil.StringLen(name) + 4 + 4 + 4
	if hasFingerprint(version) {
		n += 8
	}
	return n
}

func hasFingerprint(version uint32) bool {
	return version >= 2
}

func (n *Node) append(b []byte, version uint32) []byte {
	b = bytesutil.AppendString(b, n.PackageName)
	b = bytesutil.AppendU32(b, n.PackageID)
	b = bytesutil.AppendU32(b, n.BooleanStartIndex)
	if hasFingerprint(version) {
		b = bytesutil.AppendU64(b, n.Fingerprint)
	}
	return bytesutil.AppendU32(b, n.NextOffset)
}

// rawNode is a node decoded without copying its name out of the buffer.
type rawNode struct {
	name              []byte
	packageID         uint32
	booleanStartIndex uint32
	fingerprint       uint64
	next              uint32
}

func readNode(c *bytesutil.Cursor, version uint32) (rawNode, error) {
	var n rawNode
	var err error
	if n.name, err = c.ReadStringBytes(); err != nil {
		return rawNode{}, err
	}
	if n.packageID, err = c.ReadU32(); err != nil {
		return rawNode{}, err
	}
	if n.booleanStartIndex, err = c.ReadU32(); err != nil {
		return rawNode{}, err
	}
	if hasFingerprint(version) {
		if n.fingerprint, err = c.ReadU64(); err != nil {
			return rawNode{}, err
		}
	}
	if n.next, err = c.ReadU32(); err != nil {
		return rawNode{}, err
	}
	return n, nil
}

// Table is the decoded form of a package map file.
type Table struct {
	Header  hashtable.Header `json:"header"`
	Buckets []uint32         `json:"buckets"`
	Nodes   []Node           `json:"nodes"`
}

// Entry is the builder's description of one package.
type Entry struct {
	Name              string
	PackageID         uint32
	BooleanStartIndex uint32
	Fingerprint       uint64
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

// Build lays out a package table for the given entries.
func Build(version uint32, container string, entries []Entry) (*Table, error) {
	numBuckets, err := hashing.TableSize(uint32(len(entries)))
	if err != nil {
		return nil, err
	}

	h := hashtable.Header{
		Prefix: format.Prefix{
			Version:   version,
			Container: container,
			FileType:  format.PackageMap,
		},
		NumElements: uint32(len(entries)),
	}
	h.BucketOffset = uint32(h.Len())
	h.NodeOffset = h.BucketOffset + 4*numBuckets

	nodes := make([]*placed, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Name]; ok {
			return nil, fmt.Errorf("duplicate package %q: %w", e.Name, storeerr.FileCreationFail)
		}
		seen[e.Name] = struct{}{}
		nodes = append(nodes, &placed{
			node: Node{
				PackageName:       e.Name,
				PackageID:         e.PackageID,
				BooleanStartIndex: e.BooleanStartIndex,
			},
			bucket: hashing.PackageBucket(e.Name, numBuckets),
			size:   nodeLen(version, e.Name),
		})
		if hasFingerprint(version) {
			nodes[len(nodes)-1].node.Fingerprint = e.Fingerprint
		}
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
		b = t.Nodes[i].append(b, t.Header.Version)
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

// Decode parses an entire package map file.
func Decode(buf []byte) (*Table, error) {
	h, err := hashtable.ReadHeader(buf, format.PackageMap)
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
		n, err := readNode(c, h.Version)
		if err != nil {
			return nil, err
		}
		t.Nodes = append(t.Nodes, Node{
			PackageName:       string(n.name),
			PackageID:         n.packageID,
			BooleanStartIndex: n.booleanStartIndex,
			Fingerprint:       n.fingerprint,
			NextOffset:        n.next,
		})
	}
	if len(t.Nodes) != int(h.NumElements) {
		return nil, fmt.Errorf("header claims %d packages, found %d: %w", h.NumElements, len(t.Nodes), storeerr.BytesParseFail)
	}
	return t, nil
}

// Context is what a package lookup resolves to.
type Context struct {
	PackageID         uint32
	BooleanStartIndex uint32
	Fingerprint       uint64
}

// Find looks up a package by name.  ok is false if the package is not in
// the table.
func Find(buf []byte, name string) (ctx Context, ok bool, err error) {
	v, err := hashtable.ReadView(buf, format.PackageMap)
	if err != nil {
		return Context{}, false, err
	}
	if v.NumBuckets() == 0 {
		return Context{}, false, nil
	}

	bucket := hashing.PackageBucket(name, v.NumBuckets())
	off, ok, err := v.Head(buf, bucket)
	for ok && err == nil {
		var n rawNode
		n, err = readNode(bytesutil.NewCursor(buf[:v.FileSize], int(off)), v.Version)
		if err != nil {
			break
		}
		if unsafestring.FromBytes(n.name) == name {
			return Context{
				PackageID:         n.packageID,
				BooleanStartIndex: n.booleanStartIndex,
				Fingerprint:       n.fingerprint,
			}, true, nil
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
