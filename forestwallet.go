// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/forestblock/forest-wallet/chain"
	"github.com/forestblock/forest-wallet/wallet"
	"github.com/lightningnetwork/lnd/ticker"
)

var cfg *config

func main() {
	// Work around defer not working after os.Exit.
	if err := walletMain(); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func walletMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s on %s", version(), activeNet.Name)

	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			log.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			log.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	netDir := networkDir(cfg.DataDir, activeNet)
	kc, err := openKeychain(netDir)
	if err != nil {
		log.Errorf("Cannot load wallet seed: %v", err)
		return err
	}

	db, err := openStore(context.Background(), cfg, netDir, false)
	if err != nil {
		log.Errorf("Cannot open wallet database: %v", err)
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("Cannot close wallet database: %v", err)
		}
	}()

	// Read CA certs and create the ledger client.  A missing CA file
	// leaves the client without certificates; every ledger call then
	// fails, which makes the connection problem obvious to API clients.
	var certs []byte
	if !cfg.DisableClientTLS {
		certs, err = os.ReadFile(cfg.CAFile)
		if err != nil {
			log.Warnf("Cannot open CA file: %v", err)
			certs = nil
		}
	} else {
		log.Info("Client TLS is disabled")
	}
	ledger, err := chain.NewRPCClient(&chain.RPCConfig{
		Host:         cfg.RPCConnect,
		User:         cfg.NodeUsername,
		Pass:         cfg.NodePassword,
		DisableTLS:   cfg.DisableClientTLS,
		Certificates: certs,
	})
	if err != nil {
		log.Errorf("Cannot create ledger RPC client: %v", err)
		return err
	}
	defer ledger.Stop()

	var refresh ticker.Ticker
	if cfg.RefreshInterval > 0 {
		refresh = ticker.New(cfg.RefreshInterval)
	}
	w, err := wallet.New(&wallet.Config{
		DB:                   db,
		Keychain:             kc,
		Chain:                ledger,
		Params:               activeNet,
		Account:              cfg.Account,
		BaseFee:              cfg.BaseFee.Amount,
		MinimumConfirmations: cfg.MinConf,
		RefreshTicker:        refresh,
	})
	if err != nil {
		log.Errorf("Cannot create wallet: %v", err)
		return err
	}
	w.Start()

	server, err := startRPCServer(w)
	if err != nil {
		log.Errorf("Unable to create RPC server: %v", err)
		w.Stop()
		w.WaitForShutdown()
		return err
	}

	// Stop the server first so no request reaches a stopped wallet.
	addInterruptHandler(func() {
		server.Stop()
		w.Stop()
		w.WaitForShutdown()
	})

	// A stop request from an owner client shuts down like an interrupt.
	go func() {
		<-server.RequestProcessShutdown()
		simulateInterrupt()
	}()

	<-interruptHandlersDone
	log.Info("Shutdown complete")
	return nil
}
