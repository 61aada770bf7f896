// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package format holds what the four storage file kinds have in common:
// the version contract, the file-type tag and the header prefix.
//
// Every storage file starts with:
//
//	┌──────────────────────────────┐
//	│ version          u32         │
//	│ container        u32 + bytes │
//	│ file type        u8  (v2+)   │
//	│ file size        u32         │
//	├──────────────────────────────┤
//	│ kind specific counts/offsets │
//	├──────────────────────────────┤
//	│ body                         │
//	└──────────────────────────────┘
//
// All integers are little-endian.
package format

import (
	"fmt"

	"github.com/bpowers/flagstore/internal/bytesutil"
	"github.com/bpowers/flagstore/internal/storeerr"
)

const (
	// MinSupportedVersion is the oldest layout this library decodes.
	MinSupportedVersion = 1
	// MaxSupportedVersion is the newest layout this library decodes.
	// Anything newer fails closed with storeerr.HigherStorageFileVersion.
	MaxSupportedVersion = 2
	// DefaultVersion is what builders write unless told otherwise.
	DefaultVersion = 2
)

// FileType tags each file with its kind, starting with version 2.
type FileType uint8

const (
	PackageMap FileType = 0
	FlagMap    FileType = 1
	FlagVal    FileType = 2
	FlagInfo   FileType = 3
)

func (t FileType) String() string {
	switch t {
	case PackageMap:
		return "package_map"
	case FlagMap:
		return "flag_map"
	case FlagVal:
		return "flag_val"
	case FlagInfo:
		return "flag_info"
	default:
		return fmt.Sprintf("FileType(%d)", uint8(t))
	}
}

func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FileType) UnmarshalText(b []byte) error {
	ft, err := ParseFileType(string(b))
	if err != nil {
		return err
	}
	*t = ft
	return nil
}

// ParseFileType is the inverse of FileType.String.
func ParseFileType(s string) (FileType, error) {
	for _, t := range []FileType{PackageMap, FlagMap, FlagVal, FlagInfo} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown storage file type %q", s)
}

// HasFileType reports whether headers of the given version carry a tag.
func HasFileType(version uint32) bool {
	return version >= 2
}

// CheckVersion validates a version read from a header.
func CheckVersion(version uint32) error {
	if version > MaxSupportedVersion {
		return fmt.Errorf("cannot read storage file with a higher version of %d with lib version %d: %w",
			version, MaxSupportedVersion, storeerr.HigherStorageFileVersion)
	}
	if version < MinSupportedVersion {
		return fmt.Errorf("storage file version %d is not valid: %w", version, storeerr.BytesParseFail)
	}
	return nil
}

// ReadVersion returns the version of any storage file without looking
// at anything past the first four bytes.
func ReadVersion(buf []byte) (uint32, error) {
	return bytesutil.NewCursor(buf, 0).ReadU32()
}

// Prefix is the leading part of every header.
type Prefix struct {
	Version   uint32   `json:"version"`
	Container string   `json:"container"`
	FileType  FileType `json:"file_type"`
	FileSize  uint32   `json:"file_size"`
}

// ReadPrefix decodes the header prefix and checks it against the kind
// the caller expects.  The version is checked before anything else is
// read.
func ReadPrefix(c *bytesutil.Cursor, want FileType) (Prefix, error) {
	var p Prefix
	var err error
	if p.Version, err = c.ReadU32(); err != nil {
		return Prefix{}, err
	}
	if err := CheckVersion(p.Version); err != nil {
		return Prefix{}, err
	}
	if p.Container, err = c.ReadString(); err != nil {
		return Prefix{}, err
	}
	p.FileType = want
	if HasFileType(p.Version) {
		tag, err := c.ReadU8()
		if err != nil {
			return Prefix{}, err
		}
		if FileType(tag) != want {
			return Prefix{}, fmt.Errorf("expected %s file, found %s: %w", want, FileType(tag), storeerr.BytesParseFail)
		}
	}
	if p.FileSize, err = c.ReadU32(); err != nil {
		return Prefix{}, err
	}
	return p, nil
}

// SkipPrefix is ReadPrefix for the lookup path: it validates the same
// things but does not copy the container name.
func SkipPrefix(c *bytesutil.Cursor, want FileType) (version, fileSize uint32, err error) {
	if version, err = c.ReadU32(); err != nil {
		return 0, 0, err
	}
	if err = CheckVersion(version); err != nil {
		return 0, 0, err
	}
	if _, err = c.ReadStringBytes(); err != nil {
		return 0, 0, err
	}
	if HasFileType(version) {
		tag, err := c.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		if FileType(tag) != want {
			return 0, 0, fmt.Errorf("expected %s file, found %s: %w", want, FileType(tag), storeerr.BytesParseFail)
		}
	}
	if fileSize, err = c.ReadU32(); err != nil {
		return 0, 0, err
	}
	return version, fileSize, nil
}

// Append encodes the prefix.
func (p Prefix) Append(b []byte) []byte {
	b = bytesutil.AppendU32(b, p.Version)
	b = bytesutil.AppendString(b, p.Container)
	if HasFileType(p.Version) {
		b = bytesutil.AppendU8(b, uint8(p.FileType))
	}
	return bytesutil.AppendU32(b, p.FileSize)
}

// Len is the encoded size of the prefix.
func (p Prefix) Len() int {
	n := 4 + bytesutil.StringLen(p.Container) + 4
	if HasFileType(p.Version) {
		n++
	}
	return n
}

// CheckFileSize ensures the header's claimed size fits within buf.
func CheckFileSize(fileSize uint32, buf []byte) error {
	if uint64(fileSize) > uint64(len(buf)) {
		return fmt.Errorf("header file size %d exceeds buffer of %d: %w", fileSize, len(buf), storeerr.BytesParseFail)
	}
	return nil
}
