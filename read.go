// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"fmt"
	"io"
	"os"

	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/flagtable"
	"github.com/bpowers/flagstore/internal/flagvalue"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/packagetable"
)

// The lookups in this file are pure functions over the bytes of one
// storage file, usually a read-only mapping.  They never allocate on the
// success path and never panic on malformed input.

// PackageReadContext is what a package name resolves to.
type PackageReadContext struct {
	PackageID         uint32
	BooleanStartIndex uint32
	Fingerprint       uint64
}

// FindPackage looks up a package in the bytes of a package map file.
// ok is false if the package is not present.
func FindPackage(packageMap []byte, name string) (ctx PackageReadContext, ok bool, err error) {
	c, ok, err := packagetable.Find(packageMap, name)
	if err != nil || !ok {
		return PackageReadContext{}, false, err
	}
	return PackageReadContext(c), true, nil
}

// FlagReadContext is what a (package id, flag name) pair resolves to.
type FlagReadContext struct {
	FlagType  FlagType
	FlagIndex uint16
}

// FindFlag looks up a flag in the bytes of a flag map file.  ok is false
// if the flag is not present.
func FindFlag(flagMap []byte, packageID uint32, name string) (ctx FlagReadContext, ok bool, err error) {
	c, ok, err := flagtable.Find(flagMap, packageID, name)
	if err != nil || !ok {
		return FlagReadContext{}, false, err
	}
	return FlagReadContext{FlagType: c.FlagType, FlagIndex: c.FlagID}, true, nil
}

// GlobalIndex is a flag's position in the container's value and info
// lists.
func GlobalIndex(pkg PackageReadContext, flag FlagReadContext) uint32 {
	return pkg.BooleanStartIndex + uint32(flag.FlagIndex)
}

// GetBooleanFlagValue reads the value at a global flag index from the
// bytes of a flag value file.
func GetBooleanFlagValue(flagVal []byte, index uint32) (bool, error) {
	return flagvalue.Get(flagVal, index)
}

// GetFlagAttributes reads the attributes at a global flag index from the
// bytes of a flag info file.
func GetFlagAttributes(flagInfo []byte, valueType ValueType, index uint32) (FlagAttributes, error) {
	return flaginfo.Get(flagInfo, valueType, index)
}

// StorageFileVersion reads only the format version of the storage file at
// path.  Versions newer than MaxSupportedVersion are returned as-is so
// tooling can report them.
func StorageFileVersion(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("os.Open(%s): %v: %w", path, err, ErrFileReadFail)
	}
	defer func() {
		_ = f.Close()
	}()
	var buf [4]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, fmt.Errorf("read version of %s: %v: %w", path, err, ErrBytesParseFail)
	}
	return format.ReadVersion(buf[:])
}
