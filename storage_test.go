// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/flagstore/internal/bytesutil"
)

func lookup(t *testing.T, s *Storage, pkg, flag string) (PackageReadContext, FlagReadContext, uint32) {
	t.Helper()
	p, ok, err := FindPackage(s.PackageMap, pkg)
	require.NoError(t, err)
	require.True(t, ok, pkg)
	f, ok, err := FindFlag(s.FlagMap, p.PackageID, flag)
	require.NoError(t, err)
	require.True(t, ok, "%s.%s", pkg, flag)
	return p, f, GlobalIndex(p, f)
}

func TestBuildStorage_SinglePackage(t *testing.T) {
	s, err := BuildStorage("system", DefaultVersion, []Flag{
		{Package: "pkg.a", Name: "x", Type: ReadWriteBoolean, Enabled: false},
		{Package: "pkg.a", Name: "y", Type: ReadWriteBoolean, Enabled: true},
	})
	require.NoError(t, err)

	p, f, index := lookup(t, s, "pkg.a", "y")
	assert.Equal(t, uint16(1), f.FlagIndex)
	assert.Equal(t, uint32(0), p.BooleanStartIndex)
	assert.Equal(t, uint32(1), index)

	v, err := GetBooleanFlagValue(s.FlagVal, index)
	require.NoError(t, err)
	assert.True(t, v)

	_, _, index = lookup(t, s, "pkg.a", "x")
	v, err = GetBooleanFlagValue(s.FlagVal, index)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestBuildStorage_BooleanIndexing(t *testing.T) {
	// P1's flags are declared out of order; ids come from sorting names
	flags := []Flag{
		{Package: "P0", Name: "b", Type: ReadOnlyBoolean, Enabled: true},
		{Package: "P0", Name: "a", Type: ReadWriteBoolean},
		{Package: "P1", Name: "e", Type: ReadWriteBoolean, Enabled: true},
		{Package: "P1", Name: "c", Type: FixedReadOnlyBoolean},
		{Package: "P1", Name: "d", Type: ReadWriteBoolean, Enabled: true},
	}
	s, err := BuildStorage("system", DefaultVersion, flags)
	require.NoError(t, err)

	p0, ok, err := FindPackage(s.PackageMap, "P0")
	require.NoError(t, err)
	require.True(t, ok)
	p1, ok, err := FindPackage(s.PackageMap, "P1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0), p0.PackageID)
	assert.Equal(t, uint32(1), p1.PackageID)
	assert.Equal(t, uint32(0), p0.BooleanStartIndex)
	assert.Equal(t, uint32(2), p1.BooleanStartIndex)

	wantIndex := map[string]uint32{"P0.a": 0, "P0.b": 1, "P1.c": 2, "P1.d": 3, "P1.e": 4}
	for _, fl := range flags {
		_, f, index := lookup(t, s, fl.Package, fl.Name)
		assert.Equal(t, wantIndex[fl.Package+"."+fl.Name], index)
		assert.Equal(t, fl.Type, f.FlagType)

		v, err := GetBooleanFlagValue(s.FlagVal, index)
		require.NoError(t, err)
		assert.Equal(t, fl.Enabled, v, "%s.%s", fl.Package, fl.Name)

		attrs, err := GetFlagAttributes(s.FlagInfo, f.FlagType.ValueType(), index)
		require.NoError(t, err)
		assert.Equal(t, fl.Type == ReadWriteBoolean, attrs.IsReadWrite)
		assert.False(t, attrs.HasServerOverride)
		assert.False(t, attrs.HasLocalOverride)
	}

	_, ok, err = FindFlag(s.FlagMap, p0.PackageID, "c")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = FindPackage(s.PackageMap, "P2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildStorage_Version1(t *testing.T) {
	s, err := BuildStorage("system", 1, []Flag{
		{Package: "pkg.a", Name: "x", Type: ReadWriteBoolean, Enabled: true},
	})
	require.NoError(t, err)
	for _, ft := range []FileType{PackageMap, FlagMap, FlagVal, FlagInfo} {
		v, err := bytesutil.NewCursor(s.Bytes(ft), 0).ReadU32()
		require.NoError(t, err)
		assert.Equal(t, uint32(1), v, ft.String())
	}
	p, _, index := lookup(t, s, "pkg.a", "x")
	assert.Zero(t, p.Fingerprint)
	attrs, err := GetFlagAttributes(s.FlagInfo, BooleanValue, index)
	require.NoError(t, err)
	assert.True(t, attrs.IsReadWrite)
}

func TestBuildStorage_Errors(t *testing.T) {
	for name, tc := range map[string]struct {
		version uint32
		flags   []Flag
		is      error
	}{
		"duplicate": {
			version: DefaultVersion,
			flags: []Flag{
				{Package: "pkg.a", Name: "x"},
				{Package: "pkg.a", Name: "x"},
			},
			is: errDuplicateFlag,
		},
		"empty package": {
			version: DefaultVersion,
			flags:   []Flag{{Name: "x"}},
			is:      errEmptyName,
		},
		"bad type": {
			version: DefaultVersion,
			flags:   []Flag{{Package: "pkg.a", Name: "x", Type: 5}},
			is:      ErrBytesParseFail,
		},
		"future version": {
			version: MaxSupportedVersion + 1,
			is:      ErrHigherStorageFileVersion,
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildStorage("system", tc.version, tc.flags)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.is), "%v", err)
			assert.NotNil(t, kindOf(err), "%v", err)
		})
	}
}

func TestBuildStorage_Fingerprint(t *testing.T) {
	s1, err := BuildStorage("system", 2, []Flag{{Package: "p", Name: "a"}, {Package: "p", Name: "b"}})
	require.NoError(t, err)
	s2, err := BuildStorage("system", 2, []Flag{{Package: "p", Name: "b"}, {Package: "p", Name: "a", Enabled: true}})
	require.NoError(t, err)
	s3, err := BuildStorage("system", 2, []Flag{{Package: "p", Name: "a"}, {Package: "p", Name: "c"}})
	require.NoError(t, err)

	fp := func(s *Storage) uint64 {
		p, ok, err := FindPackage(s.PackageMap, "p")
		require.NoError(t, err)
		require.True(t, ok)
		return p.Fingerprint
	}
	// depends on the set of names only
	assert.Equal(t, fp(s1), fp(s2))
	assert.NotEqual(t, fp(s1), fp(s3))
}

func TestVersionGate(t *testing.T) {
	s, err := BuildStorage("system", DefaultVersion, []Flag{
		{Package: "pkg.a", Name: "x", Type: ReadWriteBoolean, Enabled: true},
	})
	require.NoError(t, err)
	for _, ft := range []FileType{PackageMap, FlagMap, FlagVal, FlagInfo} {
		bytesutil.PutU32At(s.Bytes(ft), 0, MaxSupportedVersion+1)
	}

	_, _, err = FindPackage(s.PackageMap, "pkg.a")
	assert.True(t, errors.Is(err, ErrHigherStorageFileVersion), "%v", err)
	_, _, err = FindFlag(s.FlagMap, 0, "x")
	assert.True(t, errors.Is(err, ErrHigherStorageFileVersion), "%v", err)
	_, err = GetBooleanFlagValue(s.FlagVal, 0)
	assert.True(t, errors.Is(err, ErrHigherStorageFileVersion), "%v", err)
	_, err = GetFlagAttributes(s.FlagInfo, BooleanValue, 0)
	assert.True(t, errors.Is(err, ErrHigherStorageFileVersion), "%v", err)
	err = SetBooleanFlagValue(s.FlagVal, 0, false)
	assert.True(t, errors.Is(err, ErrHigherStorageFileVersion), "%v", err)
	err = SetFlagHasServerOverride(s.FlagInfo, BooleanValue, 0, true)
	assert.True(t, errors.Is(err, ErrHigherStorageFileVersion), "%v", err)
}

func TestLookup_ManyFlags(t *testing.T) {
	var flags []Flag
	for p := 0; p < 50; p++ {
		for f := 0; f < 1+p%13; f++ {
			flags = append(flags, Flag{
				Package: fmt.Sprintf("com.example.p%d", p),
				Name:    fmt.Sprintf("flag_%d", f),
				Type:    FlagType(f % 3),
				Enabled: (p+f)%2 == 0,
			})
		}
	}
	s, err := BuildStorage("system", DefaultVersion, flags)
	require.NoError(t, err)

	seen := make(map[uint32]bool)
	for _, fl := range flags {
		_, _, index := lookup(t, s, fl.Package, fl.Name)
		assert.False(t, seen[index], "index %d assigned twice", index)
		seen[index] = true
		v, err := GetBooleanFlagValue(s.FlagVal, index)
		require.NoError(t, err)
		assert.Equal(t, fl.Enabled, v)
	}
	assert.Len(t, seen, len(flags))
}

func TestLookup_NoAllocs(t *testing.T) {
	s, err := BuildStorage("system", DefaultVersion, []Flag{
		{Package: "com.example.pkg", Name: "enable_thing", Type: ReadWriteBoolean, Enabled: true},
	})
	require.NoError(t, err)
	allocs := testing.AllocsPerRun(100, func() {
		p, _, _ := FindPackage(s.PackageMap, "com.example.pkg")
		f, _, _ := FindFlag(s.FlagMap, p.PackageID, "enable_thing")
		_, _ = GetBooleanFlagValue(s.FlagVal, GlobalIndex(p, f))
	})
	assert.Zero(t, allocs)
}

// kindOf reports which exported error class err belongs to.
func kindOf(err error) error {
	for _, k := range []error{
		ErrFileReadFail, ErrFileCreationFail, ErrMapFileFail, ErrObtainMappedFileFail,
		ErrMapFlushFail, ErrStorageFileNotFound, ErrProtobufParseFail, ErrBytesParseFail,
		ErrHigherStorageFileVersion, ErrInvalidStorageFileOffset, ErrHashTableSizeLimit,
		ErrInvalidFlagAttribute,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
