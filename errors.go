// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import "github.com/bpowers/flagstore/internal/storeerr"

// Every error returned by this package wraps exactly one of these; test
// for them with errors.Is.
var (
	ErrFileReadFail             = storeerr.FileReadFail
	ErrFileCreationFail         = storeerr.FileCreationFail
	ErrMapFileFail              = storeerr.MapFileFail
	ErrObtainMappedFileFail     = storeerr.ObtainMappedFileFail
	ErrMapFlushFail             = storeerr.MapFlushFail
	ErrStorageFileNotFound      = storeerr.StorageFileNotFound
	ErrProtobufParseFail        = storeerr.ProtobufParseFail
	ErrBytesParseFail           = storeerr.BytesParseFail
	ErrHigherStorageFileVersion = storeerr.HigherStorageFileVersion
	ErrInvalidStorageFileOffset = storeerr.InvalidStorageFileOffset
	ErrHashTableSizeLimit       = storeerr.HashTableSizeLimit
	ErrInvalidFlagAttribute     = storeerr.InvalidFlagAttribute
)
