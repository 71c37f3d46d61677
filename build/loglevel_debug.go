// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !nolog && debug

package build

// LogLevel specifies a debug log level.
var LogLevel = "debug"
