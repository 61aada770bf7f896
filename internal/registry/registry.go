// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package registry is the storage location registry: a small protobuf
// record list telling readers and writers where each container's four
// storage files live.
//
// The wire schema is:
//
//	message StorageFileInfo {
//	  optional uint32 version    = 1;
//	  optional string container  = 2;
//	  optional string package_map = 3;
//	  optional string flag_map   = 4;
//	  optional string flag_val   = 5;
//	  optional string flag_info  = 6;
//	  optional int64  timestamp  = 7;
//	}
//	message StorageFiles {
//	  repeated StorageFileInfo files = 1;
//	}
package registry

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bpowers/flagstore/internal/atomicfile"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/storeerr"
)

const (
	fieldFiles = 1

	fieldVersion    = 1
	fieldContainer  = 2
	fieldPackageMap = 3
	fieldFlagMap    = 4
	fieldFlagVal    = 5
	fieldFlagInfo   = 6
	fieldTimestamp  = 7
)

// Record locates the storage files of one container.
type Record struct {
	Version    uint32 `json:"version"`
	Container  string `json:"container"`
	PackageMap string `json:"package_map"`
	FlagMap    string `json:"flag_map"`
	FlagVal    string `json:"flag_val"`
	FlagInfo   string `json:"flag_info"`
	// Timestamp is the build time in seconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// Path returns the location of the file of kind t.
func (r *Record) Path(t format.FileType) string {
	switch t {
	case format.PackageMap:
		return r.PackageMap
	case format.FlagMap:
		return r.FlagMap
	case format.FlagVal:
		return r.FlagVal
	case format.FlagInfo:
		return r.FlagInfo
	}
	return ""
}

func (r *Record) appendTo(b []byte) []byte {
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Version))
	for _, f := range []struct {
		num protowire.Number
		s   string
	}{
		{fieldContainer, r.Container},
		{fieldPackageMap, r.PackageMap},
		{fieldFlagMap, r.FlagMap},
		{fieldFlagVal, r.FlagVal},
		{fieldFlagInfo, r.FlagInfo},
	} {
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendString(b, f.s)
	}
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(r.Timestamp))
}

func parseErr(n int) error {
	return fmt.Errorf("%v: %w", protowire.ParseError(n), storeerr.ProtobufParseFail)
}

func (r *Record) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]

		var str *string
		switch num {
		case fieldContainer:
			str = &r.Container
		case fieldPackageMap:
			str = &r.PackageMap
		case fieldFlagMap:
			str = &r.FlagMap
		case fieldFlagVal:
			str = &r.FlagVal
		case fieldFlagInfo:
			str = &r.FlagInfo
		}

		switch {
		case str != nil && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return parseErr(n)
			}
			*str = s
			b = b[n:]
		case (num == fieldVersion || num == fieldTimestamp) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return parseErr(n)
			}
			if num == fieldVersion {
				r.Version = uint32(v)
			} else {
				r.Timestamp = int64(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return parseErr(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Marshal encodes the record list.
func Marshal(records []Record) []byte {
	var b []byte
	for i := range records {
		b = protowire.AppendTag(b, fieldFiles, protowire.BytesType)
		b = protowire.AppendBytes(b, records[i].appendTo(nil))
	}
	return b
}

// Unmarshal decodes a record list.  Malformed input wraps
// storeerr.ProtobufParseFail.
func Unmarshal(b []byte) ([]Record, error) {
	var records []Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseErr(n)
		}
		b = b[n:]
		if num != fieldFiles || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, parseErr(n)
			}
			b = b[n:]
			continue
		}
		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, parseErr(n)
		}
		b = b[n:]
		var r Record
		if err := r.unmarshal(msg); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Find returns the record for container.
func Find(records []Record, container string) (Record, error) {
	for _, r := range records {
		if r.Container == container {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("container %q not in storage location registry: %w", container, storeerr.StorageFileNotFound)
}

// ReadFile loads a record list from disk.
func ReadFile(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s): %v: %w", path, err, storeerr.FileReadFail)
	}
	return Unmarshal(b)
}

// Lookup is ReadFile followed by Find.
func Lookup(path, container string) (Record, error) {
	records, err := ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	return Find(records, container)
}

// Upsert replaces the record for r.Container, or appends it.
func Upsert(records []Record, r Record) []Record {
	for i := range records {
		if records[i].Container == r.Container {
			records[i] = r
			return records
		}
	}
	return append(records, r)
}

// WriteFile atomically replaces the registry at path.
func WriteFile(path string, records []Record) error {
	return atomicfile.Write(path, Marshal(records), 0644)
}
