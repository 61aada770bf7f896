// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mapcache keeps the read-only mappings of each container's
// storage files for the life of the process.
//
// Lifecycle: a container's files are mapped the first time they are asked
// for, and the same mappings are handed to every later caller.  Entries
// are never evicted; storage files are small and do not change while the
// device is up.  Close exists for tests and orderly teardown only.
package mapcache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/mmap"
	"github.com/bpowers/flagstore/internal/registry"
	"github.com/bpowers/flagstore/internal/storeerr"
)

// Files are the mapped storage files of one container.
type Files struct {
	Container  string
	PackageMap *mmap.Mapping
	FlagMap    *mmap.Mapping
	FlagVal    *mmap.Mapping
	FlagInfo   *mmap.Mapping
}

// Get returns the mapping of kind t.
func (f *Files) Get(t format.FileType) *mmap.Mapping {
	switch t {
	case format.PackageMap:
		return f.PackageMap
	case format.FlagMap:
		return f.FlagMap
	case format.FlagVal:
		return f.FlagVal
	case format.FlagInfo:
		return f.FlagInfo
	}
	return nil
}

func (f *Files) all() []*mmap.Mapping {
	return []*mmap.Mapping{f.PackageMap, f.FlagMap, f.FlagVal, f.FlagInfo}
}

func (f *Files) size() int {
	n := 0
	for _, m := range f.all() {
		n += len(m.Data())
	}
	return n
}

func (f *Files) close() error {
	var errs []error
	for _, m := range f.all() {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resolver finds where a container's files live.
type Resolver func(container string) (registry.Record, error)

// RegistryResolver resolves containers through the registry file at path,
// re-reading it on every call.  Only cache misses call the resolver.
func RegistryResolver(path string) Resolver {
	return func(container string) (registry.Record, error) {
		return registry.Lookup(path, container)
	}
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithLogger sets a logger for cache population events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers the cache's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

type metrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	mappedBytes prometheus.Gauge
}

func register[C prometheus.Collector](reg prometheus.Registerer, logger *slog.Logger, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.Warn("registering mapped file cache metric failed", "error", err)
	}
	return c
}

func newMetrics(reg prometheus.Registerer, logger *slog.Logger) *metrics {
	return &metrics{
		hits: register(reg, logger, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flagstore_mapped_file_cache_hits_total",
			Help: "Container lookups served by an existing mapping.",
		})),
		misses: register(reg, logger, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flagstore_mapped_file_cache_misses_total",
			Help: "Container lookups that mapped storage files.",
		})),
		mappedBytes: register(reg, logger, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flagstore_mapped_file_bytes",
			Help: "Bytes of storage files currently mapped.",
		})),
	}
}

// Cache is the process-scoped container -> mapped files registry.
// Lookups of already-mapped containers take no lock.
type Cache struct {
	resolve Resolver
	logger  *slog.Logger
	metrics *metrics

	// entries is copy-on-write: readers load it atomically, and
	// populating a miss swaps in a new map while holding mu.
	entries atomic.Pointer[map[string]*Files]
	mu      sync.Mutex
	closed  bool
}

// New returns an empty cache that resolves containers with resolve.
func New(resolve Resolver, opts ...Option) *Cache {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache{
		resolve: resolve,
		logger:  o.logger,
		metrics: newMetrics(o.registerer, o.logger),
	}
	empty := make(map[string]*Files)
	c.entries.Store(&empty)
	return c
}

// Files returns the mapped storage files of container, mapping them on
// first use.
func (c *Cache) Files(container string) (*Files, error) {
	if f, ok := (*c.entries.Load())[container]; ok {
		c.metrics.hits.Inc()
		return f, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("mapped file cache is closed: %w", storeerr.ObtainMappedFileFail)
	}
	current := *c.entries.Load()
	// another goroutine may have populated it while we waited
	if f, ok := current[container]; ok {
		c.metrics.hits.Inc()
		return f, nil
	}

	c.metrics.misses.Inc()
	f, err := c.mapContainer(container)
	if err != nil {
		c.logger.Warn("mapping storage files failed", "container", container, "error", err)
		return nil, err
	}

	next := make(map[string]*Files, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[container] = f
	c.entries.Store(&next)
	c.metrics.mappedBytes.Add(float64(f.size()))
	c.logger.Debug("mapped storage files", "container", container, "bytes", f.size())
	return f, nil
}

// Mapped returns the bytes of one storage file of container.
func (c *Cache) Mapped(container string, t format.FileType) ([]byte, error) {
	f, err := c.Files(container)
	if err != nil {
		return nil, err
	}
	m := f.Get(t)
	if m == nil {
		return nil, fmt.Errorf("no %s file for container %q: %w", t, container, storeerr.ObtainMappedFileFail)
	}
	return m.Data(), nil
}

func (c *Cache) mapContainer(container string) (*Files, error) {
	record, err := c.resolve(container)
	if err != nil {
		return nil, err
	}
	f := &Files{Container: container}
	for _, t := range []format.FileType{format.PackageMap, format.FlagMap, format.FlagVal, format.FlagInfo} {
		m, err := mmap.OpenReadOnly(record.Path(t))
		if err != nil {
			_ = f.close()
			return nil, fmt.Errorf("container %q %s: %w", container, t, err)
		}
		switch t {
		case format.PackageMap:
			f.PackageMap = m
		case format.FlagMap:
			f.FlagMap = m
		case format.FlagVal:
			f.FlagVal = m
		case format.FlagInfo:
			f.FlagInfo = m
		}
	}
	return f, nil
}

// Len is the number of containers mapped.
func (c *Cache) Len() int {
	return len(*c.entries.Load())
}

// Close unmaps everything.  No slice previously returned by the cache may
// be used afterwards, so this is only safe at teardown.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for _, f := range *c.entries.Load() {
		if err := f.close(); err != nil {
			errs = append(errs, err)
		}
	}
	empty := make(map[string]*Files)
	c.entries.Store(&empty)
	c.metrics.mappedBytes.Set(0)
	return errors.Join(errs...)
}
