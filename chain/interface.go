// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain provides the wallet's view of the ledger: the current tip
// height, the set of unspent commitments, and transaction submission.
package chain

import (
	"context"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
)

// BackEnds returns a list of the available back ends.
func BackEnds() []string {
	return []string{
		"rpc",
		"memory",
	}
}

// Interface allows more than one ledger source, such as a node's JSON-RPC
// API or an in-process ledger used for testing, as long as we write a driver
// for it.
//
// Calls are synchronous and are not retried. Failures to reach the ledger
// are reported as werr.ErrLedgerUnavailable and a transaction the ledger
// refuses as werr.ErrInvalidTransaction.
type Interface interface {
	// Height returns the height of the ledger's chain tip.
	Height(ctx context.Context) (uint64, error)

	// PostTx submits a finalized transaction. When fluff is false the
	// ledger may relay it through its privacy stem phase first.
	PostTx(ctx context.Context, tx *core.Transaction, fluff bool) error

	// GetOutputs returns the subset of commits that are unspent on the
	// ledger, along with the height each one was confirmed at.
	GetOutputs(ctx context.Context,
		commits []commit.Commitment) ([]OutputInfo, error)

	// BackEnd returns the name of the driver.
	BackEnd() string
}

// OutputInfo describes an unspent commitment known to the ledger.
type OutputInfo struct {
	Commit commit.Commitment `json:"commit"`
	Height uint64            `json:"height"`
}

// Tip is the ledger's reply to a tip query.
type Tip struct {
	Height uint64 `json:"height"`
}
