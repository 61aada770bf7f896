// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package unsafestring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBytes(t *testing.T) {
	for _, input := range []string{
		"",
		"com.android.aconfig.test",
		"😀",
	} {
		allocs := testing.AllocsPerRun(1, func() {
			b := ToBytes(input)
			if input != string(b) {
				t.Fatal("expected contents equal")
			}
			if len(input) != len(b) || len(input) != cap(b) {
				t.Fatal("expected len and cap equal to string len")
			}
		})
		require.Zero(t, allocs)
	}
}

func TestFromBytes(t *testing.T) {
	for _, input := range [][]byte{
		nil,
		[]byte("enabled_rw"),
	} {
		var s string
		allocs := testing.AllocsPerRun(1, func() {
			s = FromBytes(input)
		})
		require.Zero(t, allocs)
		require.Equal(t, string(input), s)
	}
}
