// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/registry"
)

const (
	// MaxSupportedVersion is the newest storage file version this
	// library reads.  Newer files are always rejected.
	MaxSupportedVersion = format.MaxSupportedVersion
	// DefaultVersion is the version a Builder writes by default.
	DefaultVersion = format.DefaultVersion
)

// FlagType is a flag's permission and value kind.
type FlagType = format.FlagType

const (
	ReadWriteBoolean     = format.ReadWriteBoolean
	ReadOnlyBoolean      = format.ReadOnlyBoolean
	FixedReadOnlyBoolean = format.FixedReadOnlyBoolean
)

// ValueType selects which value region a flag lives in.
type ValueType = format.ValueType

const BooleanValue = format.BooleanValue

// FileType identifies one of the four storage file kinds.
type FileType = format.FileType

const (
	PackageMap = format.PackageMap
	FlagMap    = format.FlagMap
	FlagVal    = format.FlagVal
	FlagInfo   = format.FlagInfo
)

// FlagAttributes is a decoded flag info byte.
type FlagAttributes = flaginfo.Attributes

// Attribute names one bit of the flag info byte.
type Attribute = flaginfo.Attribute

const (
	IsReadWrite       = flaginfo.IsReadWrite
	HasServerOverride = flaginfo.HasServerOverride
	HasLocalOverride  = flaginfo.HasLocalOverride
	IsSticky          = flaginfo.IsSticky
)

// StorageFiles locates one container's storage files.  It is the entry
// type of the storage location registry.
type StorageFiles struct {
	Version    uint32
	Container  string
	PackageMap string
	FlagMap    string
	FlagVal    string
	FlagInfo   string
	// Timestamp is the build time in seconds since the Unix epoch.
	Timestamp int64
}

func storageFilesFromRecord(r registry.Record) StorageFiles {
	return StorageFiles{
		Version:    r.Version,
		Container:  r.Container,
		PackageMap: r.PackageMap,
		FlagMap:    r.FlagMap,
		FlagVal:    r.FlagVal,
		FlagInfo:   r.FlagInfo,
		Timestamp:  r.Timestamp,
	}
}

func (s StorageFiles) record() registry.Record {
	return registry.Record{
		Version:    s.Version,
		Container:  s.Container,
		PackageMap: s.PackageMap,
		FlagMap:    s.FlagMap,
		FlagVal:    s.FlagVal,
		FlagInfo:   s.FlagInfo,
		Timestamp:  s.Timestamp,
	}
}

// ReadRegistry returns every container in the storage location registry
// at path.
func ReadRegistry(path string) ([]StorageFiles, error) {
	records, err := registry.ReadFile(path)
	if err != nil {
		return nil, err
	}
	files := make([]StorageFiles, len(records))
	for i, r := range records {
		files[i] = storageFilesFromRecord(r)
	}
	return files, nil
}

// LookupStorageFiles finds container in the registry at path.
func LookupStorageFiles(path, container string) (StorageFiles, error) {
	r, err := registry.Lookup(path, container)
	if err != nil {
		return StorageFiles{}, err
	}
	return storageFilesFromRecord(r), nil
}
