// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package atomicfile replaces files so readers only ever observe the old
// or the new contents.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bpowers/flagstore/internal/storeerr"
)

// Write writes contents to a temp file next to path and renames it onto
// path once it is synced and has its final permissions.  On failure the
// temp file is removed and path is untouched.
func Write(path string, contents []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %v: %w", dir, err, storeerr.FileCreationFail)
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if n, err := f.Write(contents); err != nil {
		return fmt.Errorf("write %s: %v: %w", path, err, storeerr.FileCreationFail)
	} else if n != len(contents) {
		return fmt.Errorf("write %s: short write of %d (wanted %d): %w", path, n, len(contents), storeerr.FileCreationFail)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("f.Sync: %v: %w", err, storeerr.FileCreationFail)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("f.Close: %v: %w", err, storeerr.FileCreationFail)
	}
	if err := os.Chmod(f.Name(), mode); err != nil {
		return fmt.Errorf("os.Chmod(%o): %v: %w", mode, err, storeerr.FileCreationFail)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("os.Rename: %v: %w", err, storeerr.FileCreationFail)
	}
	ok = true
	return nil
}
