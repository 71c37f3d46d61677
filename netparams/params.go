// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	// Params supplies the network name and the extended key version
	// bytes the keychain serializes with.
	*chaincfg.Params

	// RPCClientPort is the default port of the ledger node's API.
	RPCClientPort string

	// RPCServerPort is the default port of the owner and foreign API.
	RPCServerPort string

	// CoinbaseMaturity is the number of blocks a coinbase output waits
	// before it can be spent.
	CoinbaseMaturity uint64

	// BlockReward is the value a coinbase creates, before fees.
	BlockReward uint64
}

// MainNetParams contains parameters specific to running forestwallet on the
// main network.
var MainNetParams = Params{
	Params:           &chaincfg.MainNetParams,
	RPCClientPort:    "3413",
	RPCServerPort:    "3415",
	CoinbaseMaturity: 1440,
	BlockReward:      60_000_000_000,
}

// TestNetParams contains parameters specific to running forestwallet on the
// test network.
var TestNetParams = Params{
	Params:           &chaincfg.TestNet3Params,
	RPCClientPort:    "13413",
	RPCServerPort:    "13415",
	CoinbaseMaturity: 1440,
	BlockReward:      60_000_000_000,
}

// SimNetParams contains parameters specific to the simulation test network.
// Coinbase outputs mature quickly so tests can spend them.
var SimNetParams = Params{
	Params:           &chaincfg.SimNetParams,
	RPCClientPort:    "23413",
	RPCServerPort:    "23415",
	CoinbaseMaturity: 3,
	BlockReward:      60_000_000_000,
}

// ByName returns the parameters of the named network.
func ByName(name string) (*Params, error) {
	for _, p := range []*Params{&MainNetParams, &TestNetParams, &SimNetParams} {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown network %q", name)
}
