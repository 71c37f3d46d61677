// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015 The Decred developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/forestblock/forest-wallet/internal/cfgutil"
	"github.com/forestblock/forest-wallet/netparams"
	"github.com/forestblock/forest-wallet/wallet"
	"github.com/forestblock/forest-wallet/wtxmgr"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultCAFilename       = "ledger.cert"
	defaultConfigFilename   = "forestwallet.conf"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "forestwallet.log"
	defaultRPCMaxClients    = 10
	defaultRPCMaxWebsockets = 25
	defaultDBBackend        = "bdb"

	walletDbName = "wallet.db"
	sqliteDbName = "wallet.sqlite"
	seedFilename = "wallet.seed"
)

// Store backends selectable with --dbbackend.
const (
	backendBolt     = "bdb"
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
)

var (
	forestwalletHomeDir = btcutil.AppDataDir("forestwallet", false)
	defaultConfigFile   = filepath.Join(forestwalletHomeDir, defaultConfigFilename)
	defaultDataDir      = forestwalletHomeDir
	defaultRPCKeyFile   = filepath.Join(forestwalletHomeDir, "rpc.key")
	defaultRPCCertFile  = filepath.Join(forestwalletHomeDir, "rpc.cert")
	defaultLogDir       = filepath.Join(forestwalletHomeDir, defaultLogDirname)
)

// activeNet is the network the wallet runs on, selected by loadConfig.
var activeNet = &netparams.MainNetParams

type config struct {
	// General application behavior
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Create      bool   `long:"create" description:"Create the wallet seed and database if they do not exist, then exit"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the wallet seed and database"`
	TestNet     bool   `long:"testnet" description:"Use the test network (default mainnet)"`
	SimNet      bool   `long:"simnet" description:"Use the simulation test network (default mainnet)"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string `long:"logdir" description:"Directory to log output."`
	Profile     string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`

	// Wallet options
	BaseFee         *cfgutil.AmountFlag `long:"basefee" description:"Fee per unit of transaction weight, in coins"`
	MinConf         uint64              `long:"minconf" description:"Confirmations an output needs before it is spent"`
	Account         uint32              `long:"account" description:"Key derivation account new outputs are created under"`
	RefreshInterval time.Duration       `long:"refreshinterval" description:"How often output confirmations are checked against the ledger"`

	// Store options
	DBBackend string                 `long:"dbbackend" choice:"bdb" choice:"sqlite" choice:"postgres" description:"Wallet database backend"`
	DBDSN     *cfgutil.ExplicitString `long:"dbdsn" description:"Data source name of the sqlite or postgres database (default: wallet.sqlite in the network directory)"`
	DBTimeout time.Duration          `long:"dbtimeout" description:"Timeout to obtain the bdb database lock"`

	// Ledger client options
	RPCConnect       string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the ledger node API (default localhost:3413, testnet: localhost:13413, simnet: localhost:23413)"`
	CAFile           string `long:"cafile" description:"File containing root certificates to authenticate a TLS connection with the ledger node"`
	DisableClientTLS bool   `long:"noclienttls" description:"Disable TLS for the ledger client -- NOTE: This is only allowed if the client is connecting to localhost"`
	NodeUsername     string `long:"nodeusername" description:"Username for ledger node authentication"`
	NodePassword     string `long:"nodepassword" default-mask:"-" description:"Password for ledger node authentication"`

	// RPC server options
	RPCCert          string   `long:"rpccert" description:"File containing the certificate file"`
	RPCKey           string   `long:"rpckey" description:"File containing the certificate key"`
	OneTimeTLSKey    bool     `long:"onetimetlskey" description:"Generate a new TLS certpair at startup, but only write the certificate to disk"`
	DisableServerTLS bool     `long:"noservertls" description:"Disable TLS for the RPC server -- NOTE: This is only allowed if the RPC server is bound to localhost"`
	RPCListeners     []string `long:"rpclisten" description:"Listen for owner and foreign API connections on this interface/port (default port: 3415, testnet: 13415, simnet: 23415)"`
	RPCMaxClients    int64    `long:"rpcmaxclients" description:"Max number of RPC clients for standard connections"`
	RPCMaxWebsockets int64    `long:"rpcmaxwebsockets" description:"Max number of RPC websocket connections"`
	Username         string   `short:"u" long:"username" description:"Username for owner API authentication"`
	Password         string   `short:"P" long:"password" default-mask:"-" description:"Password for owner API authentication"`
	ForeignAuth      bool     `long:"foreignauth" description:"Require owner credentials on the foreign API as well"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(forestwalletHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		subsysID, logLevel, ok := strings.Cut(logLevelPair, "=")
		if !ok {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// selectNetwork returns the parameters of the one network selected by the
// flags, mainnet when neither is set.
func selectNetwork(testNet, simNet bool) (*netparams.Params, error) {
	switch {
	case testNet && simNet:
		return nil, fmt.Errorf("the testnet and simnet params can't be " +
			"used together -- choose one")
	case testNet:
		return &netparams.TestNetParams, nil
	case simNet:
		return &netparams.SimNetParams, nil
	}
	return &netparams.MainNetParams, nil
}

// localhostListeners are the hosts TLS may be disabled for.
var localhostListeners = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in forestwallet functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		DebugLevel:       defaultLogLevel,
		ConfigFile:       defaultConfigFile,
		DataDir:          defaultDataDir,
		LogDir:           defaultLogDir,
		BaseFee:          cfgutil.NewAmountFlag(wallet.DefaultBaseFee),
		MinConf:          wallet.DefaultMinimumConfirmations,
		RefreshInterval:  wallet.DefaultRefreshInterval,
		DBBackend:        defaultDBBackend,
		DBDSN:            cfgutil.NewExplicitString(""),
		DBTimeout:        wtxmgr.DefaultDBTimeout,
		RPCKey:           defaultRPCKeyFile,
		RPCCert:          defaultRPCCertFile,
		RPCMaxClients:    defaultRPCMaxClients,
		RPCMaxWebsockets: defaultRPCMaxWebsockets,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFilePath := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// If an alternate data directory was specified, and paths with defaults
	// relative to the data dir are unchanged, modify each path to be
	// relative to the new data dir.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	if cfg.DataDir != defaultDataDir {
		if cfg.RPCKey == defaultRPCKeyFile {
			cfg.RPCKey = filepath.Join(cfg.DataDir, "rpc.key")
		}
		if cfg.RPCCert == defaultRPCCertFile {
			cfg.RPCCert = filepath.Join(cfg.DataDir, "rpc.cert")
		}
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	activeNet, err = selectNetwork(cfg.TestNet, cfg.SimNet)
	if err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	// The sqlite database lives next to the seed unless a DSN is given.
	// Postgres has no sensible default.
	netDir := networkDir(cfg.DataDir, activeNet)
	switch cfg.DBBackend {
	case backendSQLite:
		if !cfg.DBDSN.ExplicitlySet() {
			cfg.DBDSN.Value = filepath.Join(netDir, sqliteDbName)
		}
	case backendPostgres:
		if cfg.DBDSN.Value == "" {
			err := fmt.Errorf("%s: the postgres backend requires "+
				"--dbdsn", funcName)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Ensure the wallet exists or create it when the create flag is set.
	seedPath := filepath.Join(netDir, seedFilename)
	seedExists, err := cfgutil.FileExists(seedPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if cfg.Create {
		// Error if the create flag is set and the wallet already
		// exists.
		if seedExists {
			err := fmt.Errorf("The wallet seed file `%v` already "+
				"exists.", seedPath)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}

		// Ensure the data directory for the network exists.
		if err := checkCreateDir(netDir); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}

		if err := createWallet(&cfg, netDir); err != nil {
			fmt.Fprintln(os.Stderr, "Unable to create wallet:", err)
			return nil, nil, err
		}

		// Created successfully, so exit now with success.
		os.Exit(0)
	} else if !seedExists {
		err := fmt.Errorf("The wallet does not exist.  Run with the " +
			"--create option to initialize and create it.")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.RPCConnect == "" {
		cfg.RPCConnect = net.JoinHostPort("localhost", activeNet.RPCClientPort)
	}

	// Add default port to connect flag if missing.
	cfg.RPCConnect, err = cfgutil.NormalizeAddress(cfg.RPCConnect,
		activeNet.RPCClientPort)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Invalid rpcconnect network address: %v\n", err)
		return nil, nil, err
	}

	RPCHost, _, err := net.SplitHostPort(cfg.RPCConnect)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DisableClientTLS {
		if _, ok := localhostListeners[RPCHost]; !ok {
			str := "%s: the --noclienttls option may not be used " +
				"when connecting to a non localhost ledger node: %s"
			err := fmt.Errorf(str, funcName, cfg.RPCConnect)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	} else if cfg.CAFile == "" {
		cfg.CAFile = filepath.Join(cfg.DataDir, defaultCAFilename)
	}

	if len(cfg.RPCListeners) == 0 {
		addrs, err := net.LookupHost("localhost")
		if err != nil {
			return nil, nil, err
		}
		cfg.RPCListeners = make([]string, 0, len(addrs))
		for _, addr := range addrs {
			addr = net.JoinHostPort(addr, activeNet.RPCServerPort)
			cfg.RPCListeners = append(cfg.RPCListeners, addr)
		}
	}

	// Add default port to all rpc listener addresses if needed and remove
	// duplicate addresses.
	cfg.RPCListeners, err = cfgutil.NormalizeAddresses(
		cfg.RPCListeners, activeNet.RPCServerPort)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Invalid network address in RPC listeners: %v\n", err)
		return nil, nil, err
	}

	// Only allow server TLS to be disabled if the RPC server is bound to
	// localhost addresses.
	if cfg.DisableServerTLS {
		for _, addr := range cfg.RPCListeners {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				str := "%s: RPC listen interface '%s' is " +
					"invalid: %v"
				err := fmt.Errorf(str, funcName, addr, err)
				fmt.Fprintln(os.Stderr, err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, nil, err
			}
			if _, ok := localhostListeners[host]; !ok {
				str := "%s: the --noservertls option may not be used " +
					"when binding RPC to non localhost " +
					"addresses: %s"
				err := fmt.Errorf(str, funcName, addr)
				fmt.Fprintln(os.Stderr, err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, nil, err
			}
		}
	}

	// The owner API is never served without credentials.
	if cfg.Username == "" || cfg.Password == "" {
		err := fmt.Errorf("%s: --username and --password must be set "+
			"to serve the owner API", funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Expand environment variable and leading ~ for filepaths.
	cfg.CAFile = cleanAndExpandPath(cfg.CAFile)
	cfg.RPCCert = cleanAndExpandPath(cfg.RPCCert)
	cfg.RPCKey = cleanAndExpandPath(cfg.RPCKey)

	return &cfg, remainingArgs, nil
}
