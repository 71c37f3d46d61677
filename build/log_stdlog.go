// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build stdlog

package build

// LoggingType is a log type that only writes to stdout.
const LoggingType = LogTypeStdOut
