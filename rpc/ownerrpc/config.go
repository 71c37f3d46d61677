// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ownerrpc

// Options contains the required options for running the owner and foreign
// API server.
type Options struct {
	Username string
	Password string

	// ForeignAuth requires basic auth on the foreign endpoint too. The
	// owner endpoint always requires it.
	ForeignAuth bool

	MaxPOSTClients      int64
	MaxWebsocketClients int64
}
