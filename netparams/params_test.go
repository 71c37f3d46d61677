// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want *Params
	}{
		{name: "mainnet", want: &MainNetParams},
		{name: "testnet3", want: &TestNetParams},
		{name: "simnet", want: &SimNetParams},
	}
	for _, test := range tests {
		got, err := ByName(test.name)
		require.NoError(t, err, test.name)
		require.Same(t, test.want, got)
	}

	_, err := ByName("regtest")
	require.Error(t, err)
}

func TestPortsDistinct(t *testing.T) {
	t.Parallel()

	seen := make(map[string]string)
	for _, p := range []*Params{&MainNetParams, &TestNetParams, &SimNetParams} {
		for _, port := range []string{p.RPCClientPort, p.RPCServerPort} {
			prev, dup := seen[port]
			require.False(t, dup, "%s port %s reused from %s", p.Name,
				port, prev)
			seen[port] = p.Name
		}
	}
}
