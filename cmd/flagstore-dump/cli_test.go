// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/flagstore"
)

func buildFixture(t *testing.T, version uint32) flagstore.StorageFiles {
	t.Helper()
	b, err := flagstore.NewBuilder(t.TempDir(), "mockup", flagstore.WithFileVersion(version))
	require.NoError(t, err)
	for _, f := range []flagstore.Flag{
		{Package: "com.example.one", Name: "enabled_rw", Type: flagstore.ReadWriteBoolean, Enabled: true},
		{Package: "com.example.one", Name: "disabled_ro", Type: flagstore.ReadOnlyBoolean},
		{Package: "com.example.two", Name: "enabled_fixed_ro", Type: flagstore.FixedReadOnlyBoolean, Enabled: true},
	} {
		require.NoError(t, b.Add(f))
	}
	files, err := b.Finalize()
	require.NoError(t, err)
	return files
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newDumpCli(&out, &errOut).run(append([]string{"flagstore-dump"}, args...))
	return out.String(), err
}

func TestPrintWriteBytes_RoundTrip(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		files := buildFixture(t, version)
		dir := t.TempDir()
		for _, tc := range []struct {
			path string
			kind string
		}{
			{files.PackageMap, "package_map"},
			{files.FlagMap, "flag_map"},
			{files.FlagVal, "flag_val"},
			{files.FlagInfo, "flag_info"},
		} {
			out, err := run(t, "print", "--file", tc.path, "--type", tc.kind, "--format", "json")
			require.NoError(t, err)
			require.True(t, json.Valid([]byte(out)), out)

			in := filepath.Join(dir, tc.kind+".json")
			require.NoError(t, os.WriteFile(in, []byte(out), 0644))
			rebuilt := filepath.Join(dir, tc.kind+".bin")
			_, err = run(t, "write-bytes", "--input-file", in, "--output-file", rebuilt, "--type", tc.kind)
			require.NoError(t, err)

			want, err := os.ReadFile(tc.path)
			require.NoError(t, err)
			got, err := os.ReadFile(rebuilt)
			require.NoError(t, err)
			assert.Equal(t, want, got, "v%d %s", version, tc.kind)
		}
	}
}

func TestPrint_Text(t *testing.T) {
	files := buildFixture(t, 2)
	out, err := run(t, "print", "--file", files.PackageMap, "--type", "package_map")
	require.NoError(t, err)
	assert.Contains(t, out, "container:")
	assert.Contains(t, out, "mockup")
	assert.Contains(t, out, "com.example.two")

	out, err = run(t, "print", "--file", files.FlagMap, "--type", "flag_map")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled_fixed_ro")
}

func TestPrint_Errors(t *testing.T) {
	files := buildFixture(t, 2)
	_, err := run(t, "print", "--file", files.PackageMap)
	assert.True(t, errors.Is(err, errMissingFlag), "%v", err)

	_, err = run(t, "print", "--file", files.PackageMap, "--type", "flag_map")
	assert.True(t, errors.Is(err, flagstore.ErrBytesParseFail), "%v", err)

	_, err = run(t, "print", "--file", files.PackageMap, "--type", "bogus")
	assert.Error(t, err)
}

func TestWriteBytes_Inconsistent(t *testing.T) {
	files := buildFixture(t, 2)
	out, err := run(t, "print", "--file", files.FlagVal, "--type", "flag_val", "--format", "json")
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	v["booleans"] = []bool{true}
	edited, err := json.Marshal(v)
	require.NoError(t, err)

	dir := t.TempDir()
	in := filepath.Join(dir, "val.json")
	require.NoError(t, os.WriteFile(in, edited, 0644))
	_, err = run(t, "write-bytes", "--input-file", in, "--output-file", filepath.Join(dir, "out.val"), "--type", "flag_val")
	assert.True(t, errors.Is(err, flagstore.ErrBytesParseFail), "%v", err)
	_, statErr := os.Stat(filepath.Join(dir, "out.val"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestList(t *testing.T) {
	files := buildFixture(t, 2)
	out, err := run(t, "list",
		"--package-map", files.PackageMap,
		"--flag-map", files.FlagMap,
		"--flag-val", files.FlagVal,
		"--flag-info", files.FlagInfo)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "com.example.one.disabled_ro"), lines[0])
	assert.Contains(t, lines[1], "rw")
	assert.True(t, strings.HasPrefix(lines[2], "com.example.two.enabled_fixed_ro"), lines[2])

	out, err = run(t, "list",
		"--package-map", files.PackageMap,
		"--flag-map", files.FlagMap,
		"--flag-val", files.FlagVal,
		"--format", "json")
	require.NoError(t, err)
	var rows []flagstore.FlagRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.True(t, rows[1].Value)
	assert.Nil(t, rows[1].Attributes)
}

func TestVersionAndCreateInfo(t *testing.T) {
	files := buildFixture(t, 1)
	out, err := run(t, "version", "--file", files.FlagVal)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	info := filepath.Join(t.TempDir(), "derived.info")
	_, err = run(t, "create-info", "--package-map", files.PackageMap, "--flag-map", files.FlagMap, "--output-file", info)
	require.NoError(t, err)
	want, err := os.ReadFile(files.FlagInfo)
	require.NoError(t, err)
	got, err := os.ReadFile(info)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
