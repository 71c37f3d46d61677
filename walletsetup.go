// Copyright (c) 2014-2015 The btcsuite developers
// Copyright (c) 2015 The Decred developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/forestblock/forest-wallet/internal/zero"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/netparams"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/forestblock/forest-wallet/wtxmgr/sqldb"
)

// networkDir returns the directory name of a network directory to hold wallet
// files.
func networkDir(dataDir string, params *netparams.Params) string {
	netname := params.Name

	// The test network directory is named "testnet" regardless of the
	// version of the chain parameters.
	if params.Net == wire.TestNet3 {
		netname = "testnet"
	}

	return filepath.Join(dataDir, netname)
}

// createWallet writes a new seed to the network directory and creates the
// wallet database.
func createWallet(cfg *config, netDir string) error {
	seed, err := keychain.GenerateSeed()
	if err != nil {
		return err
	}
	defer zero.Bytes(seed)

	seedPath := filepath.Join(netDir, seedFilename)
	seedHex := hex.EncodeToString(seed)
	if err := os.WriteFile(seedPath, []byte(seedHex), 0600); err != nil {
		return err
	}

	db, err := openStore(context.Background(), cfg, netDir, true)
	if err != nil {
		if rmErr := os.Remove(seedPath); rmErr != nil {
			log.Warnf("Cannot remove written seed: %v", rmErr)
		}
		return err
	}

	fmt.Println("The wallet has been created successfully.")
	return db.Close()
}

// loadSeed reads the hex encoded seed from the network directory.
func loadSeed(netDir string) ([]byte, error) {
	seedHex, err := os.ReadFile(filepath.Join(netDir, seedFilename))
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(seedHex)

	seed, err := hex.DecodeString(strings.TrimSpace(string(seedHex)))
	if err != nil {
		return nil, fmt.Errorf("malformed seed file: %w", err)
	}
	return seed, nil
}

// openKeychain loads the seed and derives the wallet's keychain from it.
func openKeychain(netDir string) (*keychain.ExtKeychain, error) {
	seed, err := loadSeed(netDir)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(seed)

	return keychain.NewExtKeychain(seed, activeNet.Params)
}

// openStore opens the wallet database of the configured backend.  The bdb
// file is only created when create is set; the SQL backends create their
// schema on first use.
func openStore(ctx context.Context, cfg *config, netDir string,
	create bool) (wtxmgr.DB, error) {

	switch cfg.DBBackend {
	case backendBolt:
		dbPath := filepath.Join(netDir, walletDbName)
		open := wtxmgr.Open
		if create {
			open = wtxmgr.Create
		}
		s, err := open(dbPath, cfg.DBTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil

	case backendSQLite, backendPostgres:
		driver := sqldb.DriverSQLite
		if cfg.DBBackend == backendPostgres {
			driver = sqldb.DriverPostgres
		}
		s, err := sqldb.Open(ctx, driver, cfg.DBDSN.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, errors.New("unknown database backend " + cfg.DBBackend)
}

// checkCreateDir checks that the path exists and is a directory.
// If path does not exist, it is created.
func checkCreateDir(path string) error {
	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			// Attempt data directory creation
			if err = os.MkdirAll(path, 0700); err != nil {
				return fmt.Errorf("cannot create directory: %s", err)
			}
		} else {
			return fmt.Errorf("error checking directory: %s", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("path '%s' is not a directory", path)
		}
	}

	return nil
}
