// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package flagstore is the storage engine for device-wide boolean feature
// flags.
//
// At build time a Builder compiles a container's flags into four small
// binary files:
//
//   - a package map: package name -> package id and boolean start index
//   - a flag map: (package id, flag name) -> flag type and flag id
//   - a flag value list: one byte per flag holding its current value
//   - a flag info list: one attribute byte per flag
//
// At run time any number of processes map those files read-only and
// resolve a flag with two hash lookups and one byte read, without
// allocating.  A flag's global index into the two lists is its package's
// boolean start index plus its flag id.
//
// One privileged process may open the value and info lists writable with
// a FlagWriter and flip individual flags in place.  The engine does no
// locking: single-writer discipline, and never writing a file that some
// process has mapped read-only through anything but the value and info
// lists, are preconditions callers must uphold.
package flagstore
