// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package storeerr holds the error kinds shared by every storage file
// codec.  Errors are wrapped with fmt.Errorf("...: %w", Kind) so callers
// can classify them with errors.Is.
package storeerr

import "errors"

var (
	FileReadFail         = errors.New("file read fail")
	FileCreationFail     = errors.New("file creation fail")
	MapFileFail          = errors.New("map file fail")
	ObtainMappedFileFail = errors.New("obtain mapped file fail")
	MapFlushFail         = errors.New("map flush fail")
	StorageFileNotFound  = errors.New("storage file not found")
	ProtobufParseFail    = errors.New("protobuf parse fail")
	BytesParseFail       = errors.New("bytes parse fail")

	// HigherStorageFileVersion is returned before anything past the version
	// field is interpreted.
	HigherStorageFileVersion = errors.New("higher storage file version")
	InvalidStorageFileOffset = errors.New("invalid storage file offset")
	HashTableSizeLimit       = errors.New("hash table size limit")
	InvalidFlagAttribute     = errors.New("invalid flag attribute")
)
