// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/flagvalue"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/mmap"
	"github.com/bpowers/flagstore/internal/registry"
)

// SetBooleanFlagValue changes the value at a global flag index in the
// bytes of a flag value file.  The caller is responsible for flushing.
func SetBooleanFlagValue(flagVal []byte, index uint32, value bool) error {
	return flagvalue.Set(flagVal, index, value)
}

// SetFlagHasServerOverride changes the server override bit at a global
// flag index in the bytes of a flag info file.  The caller is responsible
// for flushing.
func SetFlagHasServerOverride(flagInfo []byte, valueType ValueType, index uint32, value bool) error {
	return flaginfo.Set(flagInfo, valueType, index, HasServerOverride, value)
}

// SetFlagHasLocalOverride changes the local override bit at a global flag
// index in the bytes of a flag info file.  The caller is responsible for
// flushing.  Version 1 files have no local override bit and fail with
// ErrInvalidFlagAttribute.
func SetFlagHasLocalOverride(flagInfo []byte, valueType ValueType, index uint32, value bool) error {
	return flaginfo.Set(flagInfo, valueType, index, HasLocalOverride, value)
}

// WriterOption configures a FlagWriter.
type WriterOption func(*writerOptions)

type writerOptions struct {
	logger *slog.Logger
}

// WithWriterLogger sets a logger that records every update.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(opts *writerOptions) {
		opts.logger = logger
	}
}

// FlagWriter updates a flag value or flag info file in place.  Every
// update is flushed to the file before the call returns.
//
// The engine doesn't lock files: the process holding a FlagWriter must be
// the only writer of that file.
type FlagWriter struct {
	mu     sync.Mutex
	m      *mmap.Mapping
	kind   FileType
	logger *slog.Logger
}

// OpenFlagWriter maps the flag value or flag info file at path for
// writing.  The file must be writable and its header must be a valid
// header of kind.
func OpenFlagWriter(path string, kind FileType, opts ...WriterOption) (*FlagWriter, error) {
	if kind != FlagVal && kind != FlagInfo {
		return nil, fmt.Errorf("%s files are immutable: %w", kind, ErrMapFileFail)
	}
	options := writerOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}
	m, err := mmap.OpenWritable(path)
	if err != nil {
		return nil, err
	}
	if _, err := format.ReadListHeader(m.Data(), kind); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	options.logger.Debug("opened flag writer", "path", path, "kind", kind)
	return &FlagWriter{
		m:      m,
		kind:   kind,
		logger: options.logger,
	}, nil
}

// OpenContainerWriter opens a FlagWriter on the file of kind belonging to
// container, as recorded in the storage location registry.
func OpenContainerWriter(registryPath, container string, kind FileType, opts ...WriterOption) (*FlagWriter, error) {
	r, err := registry.Lookup(registryPath, container)
	if err != nil {
		return nil, err
	}
	return OpenFlagWriter(r.Path(kind), kind, opts...)
}

// Path is the file being written.
func (w *FlagWriter) Path() string {
	return w.m.Path()
}

func (w *FlagWriter) update(kind FileType, op string, index uint32, value bool, set func([]byte) error) error {
	if w.kind != kind {
		return fmt.Errorf("%s on %s file %s: %w", op, w.kind, w.m.Path(), ErrMapFileFail)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.m.Data() == nil {
		return fmt.Errorf("%s on closed writer: %w", op, ErrObtainMappedFileFail)
	}
	if err := set(w.m.Data()); err != nil {
		return err
	}
	// the mapping is already changed at this point; report flush failures
	// separately from failed updates
	if err := w.m.Flush(); err != nil {
		w.logger.Error("flush failed after update", "path", w.m.Path(), "op", op, "index", index, "error", err)
		return err
	}
	w.logger.Debug("updated flag", "path", w.m.Path(), "op", op, "index", index, "value", value)
	return nil
}

// SetBooleanFlagValue sets the value at a global flag index.
func (w *FlagWriter) SetBooleanFlagValue(index uint32, value bool) error {
	return w.update(FlagVal, "SetBooleanFlagValue", index, value, func(buf []byte) error {
		return SetBooleanFlagValue(buf, index, value)
	})
}

// SetFlagHasServerOverride sets the server override bit at a global flag
// index.
func (w *FlagWriter) SetFlagHasServerOverride(valueType ValueType, index uint32, value bool) error {
	return w.update(FlagInfo, "SetFlagHasServerOverride", index, value, func(buf []byte) error {
		return SetFlagHasServerOverride(buf, valueType, index, value)
	})
}

// SetFlagHasLocalOverride sets the local override bit at a global flag
// index.
func (w *FlagWriter) SetFlagHasLocalOverride(valueType ValueType, index uint32, value bool) error {
	return w.update(FlagInfo, "SetFlagHasLocalOverride", index, value, func(buf []byte) error {
		return SetFlagHasLocalOverride(buf, valueType, index, value)
	})
}

// Close unmaps the file.
func (w *FlagWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.Close()
}
