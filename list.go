// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"fmt"
	"sort"

	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/flagtable"
	"github.com/bpowers/flagstore/internal/flagvalue"
	"github.com/bpowers/flagstore/internal/packagetable"
)

// FlagRow is one flag of a container with its current state.
type FlagRow struct {
	Package string   `json:"package"`
	Flag    string   `json:"flag"`
	Type    FlagType `json:"type"`
	Value   bool     `json:"value"`
	// Attributes is nil when no flag info file was given.
	Attributes *FlagAttributes `json:"attributes,omitempty"`
}

// ListFlags joins a container's files into one row per flag, sorted by
// package then flag name.  flagInfo may be nil.
func ListFlags(packageMap, flagMap, flagVal, flagInfo []byte) ([]FlagRow, error) {
	packages, err := packagetable.List(packageMap)
	if err != nil {
		return nil, fmt.Errorf("package map: %w", err)
	}
	flags, err := flagtable.List(flagMap)
	if err != nil {
		return nil, fmt.Errorf("flag map: %w", err)
	}
	values, err := flagvalue.Decode(flagVal)
	if err != nil {
		return nil, fmt.Errorf("flag val: %w", err)
	}
	var infos *flaginfo.List
	if flagInfo != nil {
		if infos, err = flaginfo.Decode(flagInfo); err != nil {
			return nil, fmt.Errorf("flag info: %w", err)
		}
	}

	byID := make(map[uint32]packagetable.Node, len(packages))
	for _, p := range packages {
		byID[p.PackageID] = p
	}

	rows := make([]FlagRow, 0, len(flags))
	for _, f := range flags {
		p, ok := byID[f.PackageID]
		if !ok {
			return nil, fmt.Errorf("flag %q refers to unknown package id %d: %w", f.FlagName, f.PackageID, ErrBytesParseFail)
		}
		index := uint64(p.BooleanStartIndex) + uint64(f.FlagID)
		if index >= uint64(len(values.BooleanValues)) {
			return nil, fmt.Errorf("%s.%s at index %d past %d values: %w", p.PackageName, f.FlagName, index, len(values.BooleanValues), ErrInvalidStorageFileOffset)
		}
		row := FlagRow{
			Package: p.PackageName,
			Flag:    f.FlagName,
			Type:    f.FlagType,
			Value:   values.BooleanValues[index],
		}
		if infos != nil {
			if index >= uint64(len(infos.Attributes)) {
				return nil, fmt.Errorf("%s.%s at index %d past %d attributes: %w", p.PackageName, f.FlagName, index, len(infos.Attributes), ErrInvalidStorageFileOffset)
			}
			attrs := infos.Attributes[index]
			row.Attributes = &attrs
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Package != rows[j].Package {
			return rows[i].Package < rows[j].Package
		}
		return rows[i].Flag < rows[j].Flag
	})
	return rows, nil
}
