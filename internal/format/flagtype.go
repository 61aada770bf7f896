// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package format

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/storeerr"
)

// FlagType is stored per flag node.  Every current type holds a boolean;
// new value kinds get new constants rather than reinterpreting these.
type FlagType uint16

const (
	ReadWriteBoolean     FlagType = 0
	ReadOnlyBoolean      FlagType = 1
	FixedReadOnlyBoolean FlagType = 2
)

// ValueType is the kind of value a flag holds.
type ValueType uint16

const (
	BooleanValue ValueType = 0
)

// ParseFlagType validates a raw on-disk value.
func ParseFlagType(v uint16) (FlagType, error) {
	switch t := FlagType(v); t {
	case ReadWriteBoolean, ReadOnlyBoolean, FixedReadOnlyBoolean:
		return t, nil
	default:
		return 0, fmt.Errorf("invalid flag type %d: %w", v, storeerr.BytesParseFail)
	}
}

// ValueType reports which value list the flag lives in.
func (t FlagType) ValueType() ValueType {
	return BooleanValue
}

// IsReadWrite reports whether the flag may be changed after build.
func (t FlagType) IsReadWrite() bool {
	return t == ReadWriteBoolean
}

func (t FlagType) String() string {
	switch t {
	case ReadWriteBoolean:
		return "ReadWriteBoolean"
	case ReadOnlyBoolean:
		return "ReadOnlyBoolean"
	case FixedReadOnlyBoolean:
		return "FixedReadOnlyBoolean"
	default:
		return fmt.Sprintf("FlagType(%d)", uint16(t))
	}
}

// MarshalText lets the JSON projections use names instead of numbers.
func (t FlagType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FlagType) UnmarshalText(b []byte) error {
	for _, c := range []FlagType{ReadWriteBoolean, ReadOnlyBoolean, FixedReadOnlyBoolean} {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown flag type %q: %w", string(b), storeerr.BytesParseFail)
}
