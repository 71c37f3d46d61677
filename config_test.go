// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/forestblock/forest-wallet/internal/cfgutil"
	"github.com/forestblock/forest-wallet/netparams"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/stretchr/testify/require"
)

func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		valid bool
	}{
		{name: "all", level: "debug", valid: true},
		{name: "pairs", level: "WLLT=trace,RPCS=warn", valid: true},
		{name: "bad level", level: "loud", valid: false},
		{name: "bad subsystem", level: "BTCD=info", valid: false},
		{name: "bad pair level", level: "WLLT=loud", valid: false},
		{name: "missing pair", level: "WLLT=info,debug", valid: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := parseAndSetDebugLevels(test.level)
			if test.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
	require.NoError(t, parseAndSetDebugLevels(defaultLogLevel))
}

func TestSelectNetwork(t *testing.T) {
	t.Parallel()

	p, err := selectNetwork(false, false)
	require.NoError(t, err)
	require.Equal(t, &netparams.MainNetParams, p)

	p, err = selectNetwork(true, false)
	require.NoError(t, err)
	require.Equal(t, &netparams.TestNetParams, p)

	p, err = selectNetwork(false, true)
	require.NoError(t, err)
	require.Equal(t, &netparams.SimNetParams, p)

	_, err = selectNetwork(true, true)
	require.Error(t, err)
}

func TestNetworkDir(t *testing.T) {
	t.Parallel()

	require.Equal(t, filepath.Join("data", "testnet"),
		networkDir("data", &netparams.TestNetParams))
	require.Equal(t, filepath.Join("data", "simnet"),
		networkDir("data", &netparams.SimNetParams))
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("FORESTWALLET_TEST_DIR", "/tmp/forest")

	require.Equal(t, "/tmp/forest/wallet",
		cleanAndExpandPath("$FORESTWALLET_TEST_DIR/./wallet"))
	require.Equal(t, filepath.Join(filepath.Dir(forestwalletHomeDir), "w"),
		cleanAndExpandPath("~/w"))
}

func TestCreateAndOpenWallet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
	}{
		{name: "bdb", backend: backendBolt},
		{name: "sqlite", backend: backendSQLite},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			netDir := t.TempDir()
			c := &config{
				DBBackend: test.backend,
				DBDSN: cfgutil.NewExplicitString(
					filepath.Join(netDir, sqliteDbName)),
				DBTimeout: wtxmgr.DefaultDBTimeout,
			}
			require.NoError(t, createWallet(c, netDir))

			info, err := os.Stat(filepath.Join(netDir, seedFilename))
			require.NoError(t, err)
			require.Equal(t, os.FileMode(0600), info.Mode().Perm())

			seed, err := loadSeed(netDir)
			require.NoError(t, err)
			require.Len(t, seed, 32)

			_, err = openKeychain(netDir)
			require.NoError(t, err)

			db, err := openStore(context.Background(), c, netDir, false)
			require.NoError(t, err)
			require.NoError(t, db.Close())
		})
	}
}

func TestLoadSeedMalformed(t *testing.T) {
	t.Parallel()

	netDir := t.TempDir()
	err := os.WriteFile(filepath.Join(netDir, seedFilename),
		[]byte("not hex"), 0600)
	require.NoError(t, err)

	_, err = loadSeed(netDir)
	require.ErrorContains(t, err, "malformed seed file")
}

func TestMakeListeners(t *testing.T) {
	t.Parallel()

	listeners := makeListeners([]string{
		"127.0.0.1:0", "not-an-ip:3415", "bogus",
	}, net.Listen)
	require.Len(t, listeners, 1)
	for _, l := range listeners {
		require.NoError(t, l.Close())
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.3.0-beta", version())
	require.Equal(t, "abc-1", normalizeVerString("a b+c-1!"))
}
