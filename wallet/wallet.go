// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet drives slate negotiations on behalf of one participant. It
// selects and locks the wallet's outputs, keeps each negotiation's secret
// context between rounds, logs every negotiation, and hands finalized
// transactions to the ledger.
package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forestblock/forest-wallet/chain"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/netparams"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultBaseFee is the fee per unit of transaction weight.
	DefaultBaseFee = 1_000_000

	// DefaultMinimumConfirmations is the depth an output must reach
	// before it is selected as an input.
	DefaultMinimumConfirmations = 10

	// DefaultMaxOutputs caps the number of inputs a single selection may
	// use.
	DefaultMaxOutputs = 500

	// DefaultRefreshInterval is how often the confirmation watcher polls
	// the ledger.
	DefaultRefreshInterval = time.Minute

	// ForeignAPIVersion is the version of the foreign API this wallet
	// speaks.
	ForeignAPIVersion = 2
)

// ErrMissingConfig is returned by New when a required collaborator is nil.
var ErrMissingConfig = errors.New("wallet config missing a required field")

// Config holds the collaborators and policy of a Wallet.
type Config struct {
	// DB stores outputs, the transaction log and negotiation contexts.
	DB wtxmgr.DB

	// Keychain derives output blinding factors and nonces.
	Keychain keychain.Keychain

	// Chain is the ledger client.
	Chain chain.Interface

	// Params are the network parameters.
	Params *netparams.Params

	// Account is the key derivation account outputs are created under.
	Account uint32

	// BaseFee is the fee per unit of weight. Zero means DefaultBaseFee.
	BaseFee uint64

	// MinimumConfirmations is the default selection depth.
	MinimumConfirmations uint64

	// RefreshTicker drives the confirmation watcher. When nil a ticker
	// firing every DefaultRefreshInterval is used.
	RefreshTicker ticker.Ticker

	// Clock stamps log entries. When nil the system clock is used.
	Clock clock.Clock
}

// Wallet is one participant's view of its outputs and negotiations.
type Wallet struct {
	db       wtxmgr.DB
	keychain keychain.Keychain
	chain    chain.Interface
	params   *netparams.Params
	clock    clock.Clock
	ticker   ticker.Ticker

	account uint32
	baseFee uint64
	minConf uint64

	// negotiationMtx serializes every read-modify-write of outputs and
	// negotiation records. It is held for the whole of one store
	// transaction so that selecting outputs and locking them is atomic
	// with respect to other negotiations.
	negotiationMtx sync.Mutex

	// tipHeight is the last height the ledger reported.
	tipHeight atomic.Uint64

	started bool
	quit    chan struct{}
	quitMu  sync.Mutex
	wg      sync.WaitGroup
}

// New returns a wallet over the given collaborators.
func New(cfg *Config) (*Wallet, error) {
	if cfg.DB == nil || cfg.Keychain == nil || cfg.Chain == nil ||
		cfg.Params == nil {

		return nil, ErrMissingConfig
	}

	w := &Wallet{
		db:       cfg.DB,
		keychain: cfg.Keychain,
		chain:    cfg.Chain,
		params:   cfg.Params,
		clock:    cfg.Clock,
		ticker:   cfg.RefreshTicker,
		account:  cfg.Account,
		baseFee:  cfg.BaseFee,
		minConf:  cfg.MinimumConfirmations,
		quit:     make(chan struct{}),
	}
	if w.clock == nil {
		w.clock = clock.NewDefaultClock()
	}
	if w.ticker == nil {
		w.ticker = ticker.New(DefaultRefreshInterval)
	}
	if w.baseFee == 0 {
		w.baseFee = DefaultBaseFee
	}
	return w, nil
}

// Start starts the confirmation watcher.
func (w *Wallet) Start() {
	w.quitMu.Lock()
	select {
	case <-w.quit:
		// Restart the wallet goroutines after shutdown finishes.
		w.WaitForShutdown()
		w.quit = make(chan struct{})
	default:
		// Ignore when the wallet is still running.
		if w.started {
			w.quitMu.Unlock()
			return
		}
		w.started = true
	}
	quit := w.quit
	w.quitMu.Unlock()

	w.wg.Add(1)
	go w.confirmationWatcher(quit)
}

// quitChan atomically reads the quit channel.
func (w *Wallet) quitChan() <-chan struct{} {
	w.quitMu.Lock()
	c := w.quit
	w.quitMu.Unlock()
	return c
}

// Stop signals all wallet goroutines to shutdown.
func (w *Wallet) Stop() {
	w.quitMu.Lock()
	quit := w.quit
	w.quitMu.Unlock()

	select {
	case <-quit:
	default:
		close(quit)
	}
}

// ShuttingDown returns whether the wallet is currently in the process of
// shutting down or not.
func (w *Wallet) ShuttingDown() bool {
	select {
	case <-w.quitChan():
		return true
	default:
		return false
	}
}

// WaitForShutdown blocks until all wallet goroutines have finished executing.
func (w *Wallet) WaitForShutdown() {
	w.wg.Wait()
}

// withNegotiationLock runs f in a single read-write store transaction while
// holding the negotiation mutex. The mutex is released on every return
// path, and f's writes are committed only if it returns nil.
func (w *Wallet) withNegotiationLock(ctx context.Context,
	f func(tx wtxmgr.ReadWriteTx) error) error {

	w.negotiationMtx.Lock()
	defer w.negotiationMtx.Unlock()

	return w.update(ctx, f)
}

// update runs f in a read-write store transaction. The caller must hold the
// negotiation mutex.
func (w *Wallet) update(ctx context.Context,
	f func(tx wtxmgr.ReadWriteTx) error) error {

	return werr.Store("store update", w.db.Update(ctx, f))
}

// view runs f in a read-only store transaction.
func (w *Wallet) view(ctx context.Context,
	f func(tx wtxmgr.ReadTx) error) error {

	return werr.Store("store view", w.db.View(ctx, f))
}

// NodeHeight returns the ledger's tip height.
func (w *Wallet) NodeHeight(ctx context.Context) (uint64, error) {
	return w.nodeHeight(ctx)
}

// nodeHeight asks the ledger for its tip and remembers the answer.
func (w *Wallet) nodeHeight(ctx context.Context) (uint64, error) {
	height, err := w.chain.Height(ctx)
	if err != nil {
		return 0, err
	}
	w.tipHeight.Store(height)
	return height, nil
}

// knownHeight is nodeHeight for reads of stored state. An unreachable ledger
// is not an error: the last height it reported is used instead.
func (w *Wallet) knownHeight(ctx context.Context) (uint64, error) {
	height, err := w.nodeHeight(ctx)
	if errors.Is(err, werr.ErrLedgerUnavailable) {
		last := w.tipHeight.Load()
		log.Debugf("Using last known height %d: %v", last, err)
		return last, nil
	}
	return height, err
}

// CheckVersion reports the slate versions this wallet accepts.
func (w *Wallet) CheckVersion() VersionInfo {
	return VersionInfo{
		ForeignAPIVersion:      ForeignAPIVersion,
		SupportedSlateVersions: []string{"V3", "V2"},
	}
}

// VerifySlateMessages checks every message signature on s, reporting one
// error per offending participant. The slate is not modified.
func (w *Wallet) VerifySlateMessages(s *slate.Slate) error {
	return s.VerifyMessages()
}

// fetchNegotiation returns the log entry of slateID, failing if there is
// none.
func fetchNegotiation(tx wtxmgr.ReadTx,
	slateID uuid.UUID) (*wtxmgr.TxLogEntry, error) {

	entry, err := tx.FetchTxLogEntryBySlate(slateID)
	if err != nil {
		return nil, werr.Store("fetching log entry", err)
	}
	if entry == nil {
		return nil, werr.Newf(werr.ErrNegotiationNotFound,
			"no negotiation for slate %v", slateID)
	}
	return entry, nil
}

// now returns the current time in UTC.
func (w *Wallet) now() time.Time {
	return w.clock.Now().UTC()
}
