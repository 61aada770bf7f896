// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/storeerr"
)

func testRecords() []Record {
	return []Record{
		{
			Version:    2,
			Container:  "system",
			PackageMap: "/system/etc/aconfig/package.map",
			FlagMap:    "/system/etc/aconfig/flag.map",
			FlagVal:    "/metadata/aconfig/boot/system.val",
			FlagInfo:   "/metadata/aconfig/boot/system.info",
			Timestamp:  1700000000,
		},
		{
			Version:    1,
			Container:  "product",
			PackageMap: "/product/etc/aconfig/package.map",
			FlagMap:    "/product/etc/aconfig/flag.map",
			FlagVal:    "/metadata/aconfig/boot/product.val",
			FlagInfo:   "/metadata/aconfig/boot/product.info",
		},
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	records := testRecords()
	got, err := Unmarshal(Marshal(records))
	require.NoError(t, err)
	assert.Equal(t, records, got)

	got, err = Unmarshal(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := Marshal(testRecords()[:1])
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 77)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "system", got[0].Container)
}

func TestUnmarshal_Malformed(t *testing.T) {
	b := Marshal(testRecords())
	_, err := Unmarshal(b[:len(b)-3])
	assert.True(t, errors.Is(err, storeerr.ProtobufParseFail))

	_, err = Unmarshal([]byte{0xff, 0xff, 0xff})
	assert.True(t, errors.Is(err, storeerr.ProtobufParseFail))
}

func TestFind(t *testing.T) {
	r, err := Find(testRecords(), "product")
	require.NoError(t, err)
	assert.Equal(t, "/product/etc/aconfig/flag.map", r.Path(format.FlagMap))
	assert.Equal(t, "/metadata/aconfig/boot/product.info", r.Path(format.FlagInfo))

	_, err = Find(testRecords(), "vendor")
	assert.True(t, errors.Is(err, storeerr.StorageFileNotFound))
}

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage_records.pb")
	_, err := ReadFile(path)
	assert.True(t, errors.Is(err, storeerr.FileReadFail))

	records := testRecords()
	require.NoError(t, WriteFile(path, records))

	updated := records[0]
	updated.Timestamp = 1800000000
	require.NoError(t, WriteFile(path, Upsert(records, updated)))

	r, err := Lookup(path, "system")
	require.NoError(t, err)
	assert.Equal(t, int64(1800000000), r.Timestamp)

	all, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
