// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/bpowers/flagstore/internal/bitset"
	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/flagtable"
	"github.com/bpowers/flagstore/internal/flagvalue"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/hashing"
	"github.com/bpowers/flagstore/internal/packagetable"
)

const maxFlagsPerPackage = math.MaxUint16 + 1

var (
	errEmptyName     = errors.New("package and flag names must be non-empty")
	errDuplicateFlag = errors.New("duplicate flag")
)

// Flag is one flag as declared and valued at build time.
type Flag struct {
	Package string
	Name    string
	Type    FlagType
	Enabled bool
}

// Storage holds the serialized contents of a container's four files.
type Storage struct {
	PackageMap []byte
	FlagMap    []byte
	FlagVal    []byte
	FlagInfo   []byte
}

// Bytes returns the file of kind t.
func (s *Storage) Bytes(t FileType) []byte {
	switch t {
	case PackageMap:
		return s.PackageMap
	case FlagMap:
		return s.FlagMap
	case FlagVal:
		return s.FlagVal
	case FlagInfo:
		return s.FlagInfo
	}
	return nil
}

type packageFlags struct {
	name  string
	flags []Flag
}

// BuildStorage serializes flags into the four storage files of a
// container.
//
// Package ids are assigned in the order packages are first seen in flags.
// Within a package, flag ids are assigned by sorting flag names.  Each
// package's boolean start index is the number of flags in all packages
// with a smaller id.
func BuildStorage(container string, version uint32, flags []Flag) (*Storage, error) {
	if err := format.CheckVersion(version); err != nil {
		return nil, err
	}

	var packages []*packageFlags
	byName := make(map[string]*packageFlags)
	for _, f := range flags {
		if f.Package == "" || f.Name == "" {
			return nil, fmt.Errorf("flag %q in package %q: %w: %w", f.Name, f.Package, errEmptyName, ErrFileCreationFail)
		}
		if _, err := format.ParseFlagType(uint16(f.Type)); err != nil {
			return nil, fmt.Errorf("flag %s.%s: %w", f.Package, f.Name, err)
		}
		p, ok := byName[f.Package]
		if !ok {
			p = &packageFlags{name: f.Package}
			byName[f.Package] = p
			packages = append(packages, p)
		}
		p.flags = append(p.flags, f)
	}

	total := uint64(0)
	for _, p := range packages {
		sort.Slice(p.flags, func(i, j int) bool {
			return p.flags[i].Name < p.flags[j].Name
		})
		for i := 1; i < len(p.flags); i++ {
			if p.flags[i].Name == p.flags[i-1].Name {
				return nil, fmt.Errorf("%s.%s: %w: %w", p.name, p.flags[i].Name, errDuplicateFlag, ErrFileCreationFail)
			}
		}
		if len(p.flags) > maxFlagsPerPackage {
			return nil, fmt.Errorf("package %s has %d flags (max %d): %w", p.name, len(p.flags), maxFlagsPerPackage, ErrHashTableSizeLimit)
		}
		total += uint64(len(p.flags))
	}
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("%d flags do not fit 32-bit indices: %w", total, ErrHashTableSizeLimit)
	}

	var (
		packageEntries = make([]packagetable.Entry, 0, len(packages))
		flagEntries    = make([]flagtable.Entry, 0, total)
		values         = bitset.New(uint32(total))
		assigned       = bitset.New(uint32(total))
		attrs          = make([]flaginfo.Attributes, total)
		start          = uint32(0)
	)
	for pid, p := range packages {
		names := make([]string, len(p.flags))
		for fid, f := range p.flags {
			names[fid] = f.Name
			index := start + uint32(fid)
			if assigned.IsSet(index) {
				panic(fmt.Errorf("invariant broken: global index %d assigned twice", index))
			}
			assigned.Set(index)
			if f.Enabled {
				values.Set(index)
			}
			attrs[index] = flaginfo.Attributes{IsReadWrite: f.Type.IsReadWrite()}
			flagEntries = append(flagEntries, flagtable.Entry{
				PackageID: uint32(pid),
				Name:      f.Name,
				Type:      f.Type,
				FlagID:    uint16(fid),
			})
		}
		packageEntries = append(packageEntries, packagetable.Entry{
			Name:              p.name,
			PackageID:         uint32(pid),
			BooleanStartIndex: start,
			Fingerprint:       hashing.Fingerprint(names),
		})
		start += uint32(len(p.flags))
	}
	if assigned.Count() != int(total) {
		panic(fmt.Errorf("invariant broken: %d of %d global indices assigned", assigned.Count(), total))
	}

	packageTable, err := packagetable.Build(version, container, packageEntries)
	if err != nil {
		return nil, fmt.Errorf("packagetable.Build: %w", err)
	}
	flagTable, err := flagtable.Build(version, container, flagEntries)
	if err != nil {
		return nil, fmt.Errorf("flagtable.Build: %w", err)
	}
	infoList, err := flaginfo.Build(version, container, attrs)
	if err != nil {
		return nil, fmt.Errorf("flaginfo.Build: %w", err)
	}

	return &Storage{
		PackageMap: packageTable.Bytes(),
		FlagMap:    flagTable.Bytes(),
		FlagVal:    flagvalue.Build(version, container, values.Bools()).Bytes(),
		FlagInfo:   infoList.Bytes(),
	}, nil
}
