// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flaginfo

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/storeerr"
)

// Attribute names one bit of a flag's info byte.  Which bit it occupies
// depends on the file's format version.
type Attribute uint8

const (
	IsReadWrite Attribute = iota
	HasServerOverride
	HasLocalOverride
	IsSticky
)

func (a Attribute) String() string {
	switch a {
	case IsReadWrite:
		return "is_read_write"
	case HasServerOverride:
		return "has_server_override"
	case HasLocalOverride:
		return "has_local_override"
	case IsSticky:
		return "is_sticky"
	default:
		return fmt.Sprintf("Attribute(%d)", uint8(a))
	}
}

// Version 1 layout.  HasOverride did not distinguish the override source;
// it is surfaced as HasServerOverride.
const (
	v1IsSticky    = 1 << 0
	v1IsReadWrite = 1 << 1
	v1HasOverride = 1 << 2
)

// Version 2 layout.
const (
	v2IsReadWrite       = 1 << 0
	v2HasServerOverride = 1 << 1
	v2HasLocalOverride  = 1 << 2
)

// Bit returns the mask of attr in files of the given version.
func Bit(version uint32, attr Attribute) (uint8, error) {
	switch version {
	case 1:
		switch attr {
		case IsSticky:
			return v1IsSticky, nil
		case IsReadWrite:
			return v1IsReadWrite, nil
		case HasServerOverride:
			return v1HasOverride, nil
		}
	case 2:
		switch attr {
		case IsReadWrite:
			return v2IsReadWrite, nil
		case HasServerOverride:
			return v2HasServerOverride, nil
		case HasLocalOverride:
			return v2HasLocalOverride, nil
		}
	}
	return 0, fmt.Errorf("%s has no bit in version %d flag info files: %w", attr, version, storeerr.InvalidFlagAttribute)
}

// Attributes is the decoded info byte.  Attributes a version cannot
// represent are always false.
type Attributes struct {
	IsReadWrite       bool `json:"is_read_write"`
	HasServerOverride bool `json:"has_server_override"`
	HasLocalOverride  bool `json:"has_local_override"`
	IsSticky          bool `json:"is_sticky,omitempty"`
}

var allAttributes = [...]Attribute{IsReadWrite, HasServerOverride, HasLocalOverride, IsSticky}

func (a *Attributes) field(attr Attribute) *bool {
	switch attr {
	case IsReadWrite:
		return &a.IsReadWrite
	case HasServerOverride:
		return &a.HasServerOverride
	case HasLocalOverride:
		return &a.HasLocalOverride
	case IsSticky:
		return &a.IsSticky
	}
	panic(fmt.Errorf("invariant broken: unknown attribute %d", attr))
}

// DecodeAttributes interprets raw according to version.
func DecodeAttributes(version uint32, raw uint8) Attributes {
	var a Attributes
	for _, attr := range allAttributes {
		if bit, err := Bit(version, attr); err == nil {
			*a.field(attr) = raw&bit != 0
		}
	}
	return a
}

// EncodeAttributes packs a for the given version, failing if a sets an
// attribute the version has no bit for.
func EncodeAttributes(version uint32, a Attributes) (uint8, error) {
	var raw uint8
	for _, attr := range allAttributes {
		if !*a.field(attr) {
			continue
		}
		bit, err := Bit(version, attr)
		if err != nil {
			return 0, err
		}
		raw |= bit
	}
	return raw, nil
}
