// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap maps storage files into memory.  The only protection
// readers have against a file changing underneath them is the
// filesystem's permission bits, so the read path refuses any file that
// is writable, and the write path refuses any file that is not.
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bpowers/flagstore/internal/storeerr"
)

// Mapping is a memory-mapped storage file.
type Mapping struct {
	path     string
	data     []byte
	writable bool
}

// IsReadOnly reports whether mode grants write permission to nobody.
func IsReadOnly(mode os.FileMode) bool {
	return mode.Perm()&0222 == 0
}

// OpenReadOnly maps path for reading.
//
// PRECONDITION: nothing may modify the file while it is mapped; doing so
// is undefined behavior for every reader.  The check here only catches
// files deployed with write permission.
func OpenReadOnly(path string) (*Mapping, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("os.Stat(%s): %v: %w", path, err, storeerr.MapFileFail)
	}
	if !IsReadOnly(fi.Mode()) {
		return nil, fmt.Errorf("cannot map %s read-only: file is writable (mode %s): %w", path, fi.Mode().Perm(), storeerr.MapFileFail)
	}
	return mapFile(path, os.O_RDONLY, unix.PROT_READ, false)
}

// OpenWritable maps path for in-place updates.  Callers must be the only
// writer of the file.
func OpenWritable(path string) (*Mapping, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("os.Stat(%s): %v: %w", path, err, storeerr.MapFileFail)
	}
	if IsReadOnly(fi.Mode()) {
		return nil, fmt.Errorf("cannot map %s writable: file is read only: %w", path, storeerr.MapFileFail)
	}
	return mapFile(path, os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE, true)
}

func mapFile(path string, flag int, prot int, writable bool) (*Mapping, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %v: %w", path, err, storeerr.MapFileFail)
	}
	// the mapping outlives the descriptor
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %v: %w", err, storeerr.MapFileFail)
	}
	size := fi.Size()
	if size == 0 {
		return &Mapping{path: path, writable: writable}, nil
	}
	if size < 0 || int64(int(size)) != size {
		return nil, fmt.Errorf("%s has unmappable size %d: %w", path, size, storeerr.MapFileFail)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap(%s): %v: %w", path, err, storeerr.MapFileFail)
	}
	// lookups jump around the tables; readahead is wasted work.
	// madvise is a hint, so failure is not fatal.
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return &Mapping{path: path, data: data, writable: writable}, nil
}

// Path is the file the mapping was created from.
func (m *Mapping) Path() string {
	return m.path
}

// Data is the mapped file.  For read-only mappings it must not be written.
func (m *Mapping) Data() []byte {
	return m.data
}

// Writable reports whether the mapping was created by OpenWritable.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Flush synchronously writes dirty pages back to the file.
func (m *Mapping) Flush() error {
	if !m.writable {
		return fmt.Errorf("flush of read-only mapping %s: %w", m.path, storeerr.MapFlushFail)
	}
	if len(m.data) == 0 {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync(%s): %v: %w", m.path, err, storeerr.MapFlushFail)
	}
	return nil
}

// Close unmaps the file.  Data must not be used afterwards.
func (m *Mapping) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return unix.Munmap(data)
}
