// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// flagstore-dump inspects and produces storage files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newDumpCli(os.Stdout, os.Stderr).run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "flagstore-dump: %s\n", err)
		os.Exit(1)
	}
}
