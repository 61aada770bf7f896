// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bridge adapts the flagstore API for callers on the other side
// of a process or language boundary.  Nothing here returns an error or
// panics: every result carries a success flag, an error message, and a
// payload that is only meaningful on success.
package bridge

import (
	"errors"
	"fmt"

	"github.com/bpowers/flagstore"
)

var kinds = []struct {
	err  error
	name string
}{
	{flagstore.ErrFileReadFail, "FileReadFail"},
	{flagstore.ErrFileCreationFail, "FileCreationFail"},
	{flagstore.ErrMapFileFail, "MapFileFail"},
	{flagstore.ErrObtainMappedFileFail, "ObtainMappedFileFail"},
	{flagstore.ErrMapFlushFail, "MapFlushFail"},
	{flagstore.ErrStorageFileNotFound, "StorageFileNotFound"},
	{flagstore.ErrProtobufParseFail, "ProtobufParseFail"},
	{flagstore.ErrBytesParseFail, "BytesParseFail"},
	{flagstore.ErrHigherStorageFileVersion, "HigherStorageFileVersion"},
	{flagstore.ErrInvalidStorageFileOffset, "InvalidStorageFileOffset"},
	{flagstore.ErrHashTableSizeLimit, "HashTableSizeLimit"},
	{flagstore.ErrInvalidFlagAttribute, "InvalidFlagAttribute"},
}

// ErrorKind names the error class of err, or "" for nil and errors from
// outside the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// Status is the part shared by every result.
type Status struct {
	Success      bool   `json:"success"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func status(err error) Status {
	if err != nil {
		return Status{ErrorKind: ErrorKind(err), ErrorMessage: err.Error()}
	}
	return Status{Success: true}
}

// PackageReadContextResult is the result of a package lookup.
type PackageReadContextResult struct {
	Status
	PackageExists     bool   `json:"package_exists"`
	PackageID         uint32 `json:"package_id"`
	BooleanStartIndex uint32 `json:"boolean_start_index"`
	Fingerprint       uint64 `json:"fingerprint"`
}

// GetPackageReadContext looks up a package in a package map file.
func GetPackageReadContext(packageMap []byte, pkg string) PackageReadContextResult {
	ctx, ok, err := flagstore.FindPackage(packageMap, pkg)
	if err != nil || !ok {
		return PackageReadContextResult{Status: status(err)}
	}
	return PackageReadContextResult{
		Status:            status(nil),
		PackageExists:     true,
		PackageID:         ctx.PackageID,
		BooleanStartIndex: ctx.BooleanStartIndex,
		Fingerprint:       ctx.Fingerprint,
	}
}

// FlagReadContextResult is the result of a flag lookup.
type FlagReadContextResult struct {
	Status
	FlagExists bool   `json:"flag_exists"`
	FlagType   uint16 `json:"flag_type"`
	FlagIndex  uint16 `json:"flag_index"`
}

// GetFlagReadContext looks up a flag in a flag map file.
func GetFlagReadContext(flagMap []byte, packageID uint32, flag string) FlagReadContextResult {
	ctx, ok, err := flagstore.FindFlag(flagMap, packageID, flag)
	if err != nil || !ok {
		return FlagReadContextResult{Status: status(err)}
	}
	return FlagReadContextResult{
		Status:     status(nil),
		FlagExists: true,
		FlagType:   uint16(ctx.FlagType),
		FlagIndex:  ctx.FlagIndex,
	}
}

// BooleanFlagValueResult is the result of a value read.
type BooleanFlagValueResult struct {
	Status
	FlagValue bool `json:"flag_value"`
}

// GetBooleanFlagValue reads the value at a global flag index.
func GetBooleanFlagValue(flagVal []byte, index uint32) BooleanFlagValueResult {
	v, err := flagstore.GetBooleanFlagValue(flagVal, index)
	if err != nil {
		return BooleanFlagValueResult{Status: status(err)}
	}
	return BooleanFlagValueResult{Status: status(nil), FlagValue: v}
}

// FlagAttributesResult is the result of an attribute read.
type FlagAttributesResult struct {
	Status
	Attributes flagstore.FlagAttributes `json:"attributes"`
}

// GetFlagAttributes reads the attributes at a global flag index.
func GetFlagAttributes(flagInfo []byte, valueType uint16, index uint32) FlagAttributesResult {
	a, err := flagstore.GetFlagAttributes(flagInfo, flagstore.ValueType(valueType), index)
	if err != nil {
		return FlagAttributesResult{Status: status(err)}
	}
	return FlagAttributesResult{Status: status(nil), Attributes: a}
}

// StorageFileVersionResult is the result of a version probe.
type StorageFileVersionResult struct {
	Status
	Version uint32 `json:"version"`
}

// GetStorageFileVersion reads the format version of the file at path.
func GetStorageFileVersion(path string) StorageFileVersionResult {
	v, err := flagstore.StorageFileVersion(path)
	if err != nil {
		return StorageFileVersionResult{Status: status(err)}
	}
	return StorageFileVersionResult{Status: status(nil), Version: v}
}

// WriteResult is the result of an update through a FlagWriter.  Flushed
// is false when the update failed, and also when the mapping was changed
// but could not be synced to the file.
type WriteResult struct {
	Status
	Flushed bool `json:"flushed"`
}

func writeResult(err error) WriteResult {
	return WriteResult{Status: status(err), Flushed: err == nil}
}

var errNilWriter = fmt.Errorf("nil flag writer: %w", flagstore.ErrObtainMappedFileFail)

// SetBooleanFlagValue updates and flushes one flag value.
func SetBooleanFlagValue(w *flagstore.FlagWriter, index uint32, value bool) WriteResult {
	if w == nil {
		return writeResult(errNilWriter)
	}
	return writeResult(w.SetBooleanFlagValue(index, value))
}

// SetFlagHasServerOverride updates and flushes one server override bit.
func SetFlagHasServerOverride(w *flagstore.FlagWriter, valueType uint16, index uint32, value bool) WriteResult {
	if w == nil {
		return writeResult(errNilWriter)
	}
	return writeResult(w.SetFlagHasServerOverride(flagstore.ValueType(valueType), index, value))
}

// SetFlagHasLocalOverride updates and flushes one local override bit.
func SetFlagHasLocalOverride(w *flagstore.FlagWriter, valueType uint16, index uint32, value bool) WriteResult {
	if w == nil {
		return writeResult(errNilWriter)
	}
	return writeResult(w.SetFlagHasLocalOverride(flagstore.ValueType(valueType), index, value))
}
