// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package hashing is shared by the package and flag tables: it decides
// how many buckets a table gets and which bucket a key lands in.  Writer
// and reader must agree on both, so nothing here may change without a
// format version bump.
package hashing

import (
	"fmt"
	"strconv"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/flagstore/internal/storeerr"
	"github.com/bpowers/flagstore/internal/unsafestring"
)

// seed keys the hash; it is part of the on-disk contract.
const seed = 0x61636f6e66696721

// HashTableSizes are the permitted bucket counts, ascending.
var HashTableSizes = [...]uint32{
	7, 17, 29, 53, 97, 193, 389, 769, 1543, 3079, 6151, 12289, 24593, 49157,
	98317, 196613, 393241, 786433, 1572869, 3145739, 6291469, 12582917,
	25165843, 50331653, 100663319, 201326611, 402653189, 805306457,
	1610612741,
}

// TableSize returns the smallest permitted bucket count that keeps the
// load factor at or below 0.5 for n entries.
func TableSize(n uint32) (uint32, error) {
	want := 2 * uint64(n)
	for _, size := range HashTableSizes {
		if uint64(size) >= want {
			return size, nil
		}
	}
	return 0, fmt.Errorf("number of items %d exceeds the largest table: %w", n, storeerr.HashTableSizeLimit)
}

// Hash is the keyed 64-bit hash of key.
func Hash(key []byte) uint64 {
	return farm.Hash64WithSeed(key, seed)
}

// BucketIndex maps key into [0, numBuckets).
func BucketIndex(key []byte, numBuckets uint32) uint32 {
	return uint32(Hash(key) % uint64(numBuckets))
}

// PackageBucket is the bucket for a package node, keyed by its name.
func PackageBucket(name string, numBuckets uint32) uint32 {
	return BucketIndex(unsafestring.ToBytes(name), numBuckets)
}

// maxStackKey covers nearly every real flag name, keeping FlagBucket
// allocation free in the common case.
const maxStackKey = 128

// FlagBucket is the bucket for a flag node, keyed by "<packageID>/<name>".
func FlagBucket(packageID uint32, name string, numBuckets uint32) uint32 {
	var buf [maxStackKey]byte
	return BucketIndex(FlagKey(buf[:0], packageID, name), numBuckets)
}

// FlagKey appends the composite flag key to dst.
func FlagKey(dst []byte, packageID uint32, name string) []byte {
	dst = strconv.AppendUint(dst, uint64(packageID), 10)
	dst = append(dst, '/')
	return append(dst, name...)
}

// Fingerprint summarizes a package's flag names so that a mismatched
// package and flag table pair can be detected.  names must be sorted.
func Fingerprint(names []string) uint64 {
	var key []byte
	for _, name := range names {
		key = append(key, name...)
		key = append(key, 0)
	}
	return Hash(key)
}
