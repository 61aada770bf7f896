// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bpowers/flagstore/internal/atomicfile"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/registry"
)

var errFinalized = fmt.Errorf("builder already finalized: %w", ErrFileCreationFail)

// BuilderOption configures the Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger         *slog.Logger
	version        uint32
	writableValues bool
	registryPath   string
}

// WithBuilderLogger sets an optional logger for the builder to use for progress updates.
// If not provided, no logging output will be produced.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(opts *builderOptions) {
		opts.logger = logger
	}
}

// WithFileVersion selects the storage file format version to write.
func WithFileVersion(version uint32) BuilderOption {
	return func(opts *builderOptions) {
		opts.version = version
	}
}

// WithWritableValueFiles leaves the flag value and flag info files
// writable (0644) so a FlagWriter can open them.  By default all four
// files are made read-only.
func WithWritableValueFiles() BuilderOption {
	return func(opts *builderOptions) {
		opts.writableValues = true
	}
}

// WithRegistry records the finished container in the storage location
// registry at path, creating the registry if it doesn't exist.
func WithRegistry(path string) BuilderOption {
	return func(opts *builderOptions) {
		opts.registryPath = path
	}
}

// Builder collects the flags of one container and writes its four
// storage files.
type Builder struct {
	dir       string
	container string
	flags     []Flag
	options   builderOptions
	finalized bool
}

// NewBuilder creates a Builder that writes container's storage files
// into dir.  A Builder is used once.
func NewBuilder(dir, container string, opts ...BuilderOption) (*Builder, error) {
	options := builderOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		version: DefaultVersion,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if err := format.CheckVersion(options.version); err != nil {
		return nil, err
	}
	if container == "" {
		return nil, fmt.Errorf("empty container name: %w", ErrFileCreationFail)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %v: %w", err, ErrFileCreationFail)
	}
	if options.registryPath != "" {
		if options.registryPath, err = filepath.Abs(options.registryPath); err != nil {
			return nil, fmt.Errorf("filepath.Abs: %v: %w", err, ErrFileCreationFail)
		}
	}
	return &Builder{
		dir:       dir,
		container: container,
		options:   options,
	}, nil
}

// Add adds a flag to the container.  Duplicate flags result in an error
// at Finalize time.
func (b *Builder) Add(f Flag) error {
	if b.finalized {
		return errFinalized
	}
	b.flags = append(b.flags, f)
	return nil
}

// StoragePaths returns where the container's files are written.
func (b *Builder) StoragePaths() StorageFiles {
	base := filepath.Join(b.dir, b.container)
	return StorageFiles{
		Version:    b.options.version,
		Container:  b.container,
		PackageMap: base + ".package.map",
		FlagMap:    base + ".flag.map",
		FlagVal:    base + ".val",
		FlagInfo:   base + ".info",
	}
}

// Finalize serializes the container, writes its files to disk and, if
// configured, records them in the registry.
func (b *Builder) Finalize() (StorageFiles, error) {
	if b.finalized {
		return StorageFiles{}, errFinalized
	}
	b.finalized = true

	start := time.Now()
	storage, err := BuildStorage(b.container, b.options.version, b.flags)
	if err != nil {
		return StorageFiles{}, err
	}
	b.options.logger.Info("serialized container",
		"container", b.container,
		"version", b.options.version,
		"flags", len(b.flags),
		"duration", time.Since(start))

	files := b.StoragePaths()
	files.Timestamp = start.Unix()
	record := files.record()

	var g errgroup.Group
	for _, t := range []FileType{PackageMap, FlagMap, FlagVal, FlagInfo} {
		mode := os.FileMode(0444)
		if b.options.writableValues && (t == FlagVal || t == FlagInfo) {
			mode = 0644
		}
		path, contents := record.Path(t), storage.Bytes(t)
		g.Go(func() error {
			return atomicfile.Write(path, contents, mode)
		})
	}
	if err := g.Wait(); err != nil {
		return StorageFiles{}, err
	}

	if b.options.registryPath != "" {
		if err := upsertRegistry(b.options.registryPath, record); err != nil {
			return StorageFiles{}, err
		}
		b.options.logger.Info("updated storage location registry",
			"registry", b.options.registryPath,
			"container", b.container)
	}

	return files, nil
}

func upsertRegistry(path string, r registry.Record) error {
	records, err := registry.ReadFile(path)
	if err != nil {
		if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
			return err
		}
		records = nil
	}
	return registry.WriteFile(path, registry.Upsert(records, r))
}
