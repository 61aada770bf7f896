// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata builds a container of randomly named flags, for
// benchmarking lookups against realistically sized tables.
package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/bpowers/flagstore"
)

var (
	outDir      = flag.String("dir", ".", "directory to write storage files to")
	container   = flag.String("container", "system", "container name")
	registry    = flag.String("registry", "", "storage location registry to update (optional)")
	nPackages   = flag.Int("packages", 200, "number of packages")
	flagsPerPkg = flag.Int("flags", 50, "maximum flags per package")
	version     = flag.Uint("version", flagstore.DefaultVersion, "storage file format version")
)

const suffixLen = 16

func newRand() *rand.Rand {
	var seedBytes [8]byte
	_, _ = crand.Read(seedBytes[:])
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return rand.New(rand.NewSource(seed))
}

func randomName(rng *rand.Rand, prefix string) string {
	var buf [suffixLen / 2]byte
	if _, err := rng.Read(buf[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s%x", prefix, buf)
}

var flagTypes = []flagstore.FlagType{
	flagstore.ReadWriteBoolean,
	flagstore.ReadOnlyBoolean,
	flagstore.FixedReadOnlyBoolean,
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := []flagstore.BuilderOption{
		flagstore.WithBuilderLogger(logger),
		flagstore.WithFileVersion(uint32(*version)),
		flagstore.WithWritableValueFiles(),
	}
	if *registry != "" {
		opts = append(opts, flagstore.WithRegistry(*registry))
	}
	b, err := flagstore.NewBuilder(*outDir, *container, opts...)
	if err != nil {
		logger.Error("NewBuilder failed", "error", err)
		os.Exit(1)
	}

	rng := newRand()
	for i := 0; i < *nPackages; i++ {
		pkg := randomName(rng, "com.example.pkg_")
		n := 1 + rng.Intn(*flagsPerPkg)
		for j := 0; j < n; j++ {
			err := b.Add(flagstore.Flag{
				Package: pkg,
				Name:    randomName(rng, "flag_"),
				Type:    flagTypes[rng.Intn(len(flagTypes))],
				Enabled: rng.Intn(2) == 1,
			})
			if err != nil {
				logger.Error("Add failed", "error", err)
				os.Exit(1)
			}
		}
	}

	files, err := b.Finalize()
	if err != nil {
		logger.Error("Finalize failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n%s\n%s\n%s\n", files.PackageMap, files.FlagMap, files.FlagVal, files.FlagInfo)
}
