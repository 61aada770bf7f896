// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"fmt"
	"os"

	"github.com/bpowers/flagstore/internal/atomicfile"
	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/flagtable"
	"github.com/bpowers/flagstore/internal/packagetable"
)

// BuildFlagInfo derives a fresh flag info file from a container's package
// and flag maps.  Each flag's read-write bit comes from its type; every
// override bit starts cleared.
func BuildFlagInfo(packageMap, flagMap []byte) ([]byte, error) {
	packages, err := packagetable.Decode(packageMap)
	if err != nil {
		return nil, fmt.Errorf("package map: %w", err)
	}
	flags, err := flagtable.Decode(flagMap)
	if err != nil {
		return nil, fmt.Errorf("flag map: %w", err)
	}
	if packages.Header.Container != flags.Header.Container {
		return nil, fmt.Errorf("package map is for container %q, flag map for %q: %w",
			packages.Header.Container, flags.Header.Container, ErrBytesParseFail)
	}

	starts := make(map[uint32]uint32, len(packages.Nodes))
	for _, p := range packages.Nodes {
		starts[p.PackageID] = p.BooleanStartIndex
	}
	// the flag map holds exactly one node per global index
	attrs := make([]flaginfo.Attributes, len(flags.Nodes))
	for _, f := range flags.Nodes {
		start, ok := starts[f.PackageID]
		if !ok {
			return nil, fmt.Errorf("flag %q refers to unknown package id %d: %w", f.FlagName, f.PackageID, ErrBytesParseFail)
		}
		index := uint64(start) + uint64(f.FlagID)
		if index >= uint64(len(attrs)) {
			return nil, fmt.Errorf("flag %q has index %d past %d flags: %w", f.FlagName, index, len(attrs), ErrInvalidStorageFileOffset)
		}
		attrs[index].IsReadWrite = f.FlagType.IsReadWrite()
	}

	l, err := flaginfo.Build(packages.Header.Version, packages.Header.Container, attrs)
	if err != nil {
		return nil, err
	}
	return l.Bytes(), nil
}

// CreateFlagInfo writes the flag info file derived by BuildFlagInfo to
// outPath.  The new file is writable so a FlagWriter can open it.
func CreateFlagInfo(packageMapPath, flagMapPath, outPath string) error {
	packageMap, err := os.ReadFile(packageMapPath)
	if err != nil {
		return fmt.Errorf("os.ReadFile(%s): %v: %w", packageMapPath, err, ErrFileReadFail)
	}
	flagMap, err := os.ReadFile(flagMapPath)
	if err != nil {
		return fmt.Errorf("os.ReadFile(%s): %v: %w", flagMapPath, err, ErrFileReadFail)
	}
	info, err := BuildFlagInfo(packageMap, flagMap)
	if err != nil {
		return err
	}
	return atomicfile.Write(outPath, info, 0644)
}
