// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package flagstore

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bpowers/flagstore/internal/mapcache"
)

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithCacheLogger sets a logger for mapping events.  Lookups never log.
func WithCacheLogger(logger *slog.Logger) ReaderOption {
	return func(opts *readerOptions) {
		opts.logger = logger
	}
}

// WithMetricsRegisterer exports mapped-file cache metrics to reg.
func WithMetricsRegisterer(reg prometheus.Registerer) ReaderOption {
	return func(opts *readerOptions) {
		opts.registerer = reg
	}
}

// Reader resolves flags by container, package and name.  It maps each
// container's files read-only on first use and keeps the mappings until
// Close.  A Reader is safe for concurrent use.
//
// PRECONDITION: storage files must not be modified while mapped by a
// Reader.  Only files without write permission are mapped.
type Reader struct {
	cache *mapcache.Cache
}

// NewReader returns a Reader that finds containers through the storage
// location registry at registryPath.
func NewReader(registryPath string, opts ...ReaderOption) *Reader {
	options := readerOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Reader{
		cache: mapcache.New(mapcache.RegistryResolver(registryPath),
			mapcache.WithLogger(options.logger),
			mapcache.WithRegisterer(options.registerer)),
	}
}

// PackageContext looks up a package in container.
func (r *Reader) PackageContext(container, pkg string) (PackageReadContext, bool, error) {
	buf, err := r.cache.Mapped(container, PackageMap)
	if err != nil {
		return PackageReadContext{}, false, err
	}
	return FindPackage(buf, pkg)
}

// FlagContext looks up a flag of an already resolved package.
func (r *Reader) FlagContext(container string, pkg PackageReadContext, flag string) (FlagReadContext, bool, error) {
	buf, err := r.cache.Mapped(container, FlagMap)
	if err != nil {
		return FlagReadContext{}, false, err
	}
	return FindFlag(buf, pkg.PackageID, flag)
}

// flagIndex resolves pkg and flag to a global index.
func (r *Reader) flagIndex(container, pkg, flag string) (uint32, FlagType, bool, error) {
	p, ok, err := r.PackageContext(container, pkg)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	f, ok, err := r.FlagContext(container, p, flag)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	return GlobalIndex(p, f), f.FlagType, true, nil
}

// BooleanFlagValue returns the current value of pkg.flag in container.
// ok is false if the package or flag doesn't exist.
func (r *Reader) BooleanFlagValue(container, pkg, flag string) (value bool, ok bool, err error) {
	index, _, ok, err := r.flagIndex(container, pkg, flag)
	if err != nil || !ok {
		return false, false, err
	}
	buf, err := r.cache.Mapped(container, FlagVal)
	if err != nil {
		return false, false, err
	}
	value, err = GetBooleanFlagValue(buf, index)
	if err != nil {
		return false, false, err
	}
	return value, true, nil
}

// FlagAttributes returns the attributes of pkg.flag in container.
func (r *Reader) FlagAttributes(container, pkg, flag string) (FlagAttributes, bool, error) {
	index, flagType, ok, err := r.flagIndex(container, pkg, flag)
	if err != nil || !ok {
		return FlagAttributes{}, false, err
	}
	buf, err := r.cache.Mapped(container, FlagInfo)
	if err != nil {
		return FlagAttributes{}, false, err
	}
	attrs, err := GetFlagAttributes(buf, flagType.ValueType(), index)
	if err != nil {
		return FlagAttributes{}, false, err
	}
	return attrs, true, nil
}

// Containers is the number of containers currently mapped.
func (r *Reader) Containers() int {
	return r.cache.Len()
}

// Close unmaps every container.  Nothing returned by the Reader may be
// used afterwards.
func (r *Reader) Close() error {
	return r.cache.Close()
}
