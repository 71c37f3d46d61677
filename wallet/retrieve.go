// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// RetrieveOutputs lists the wallet's outputs. Spent outputs are included
// only when includeSpent is set. When txID is set, only outputs created or
// locked by that log entry are returned.
func (w *Wallet) RetrieveOutputs(ctx context.Context, includeSpent bool,
	txID fn.Option[uint32]) (*OutputListing, error) {

	height, err := w.knownHeight(ctx)
	if err != nil {
		return nil, err
	}

	id, byID := optionValue(txID)
	listing := &OutputListing{Height: height}
	err = w.view(ctx, func(tx wtxmgr.ReadTx) error {
		listing.Outputs, err = wtxmgr.Outputs(tx,
			func(o *wtxmgr.OutputRecord) bool {
				if o.Status == wtxmgr.Spent && !includeSpent {
					return false
				}
				return !byID || o.TxLogID == id || o.LockID == id
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// RetrieveTxs lists transaction log entries, optionally restricted to one
// entry id or one slate id. The listing is served from the store even when
// the ledger cannot be reached.
func (w *Wallet) RetrieveTxs(ctx context.Context, txID fn.Option[uint32],
	slateID fn.Option[uuid.UUID]) (*TxListing, error) {

	height, err := w.knownHeight(ctx)
	if err != nil {
		return nil, err
	}

	id, byID := optionValue(txID)
	sid, bySlate := optionValue(slateID)
	listing := &TxListing{Height: height}
	err = w.view(ctx, func(tx wtxmgr.ReadTx) error {
		listing.Entries, err = wtxmgr.TxLogEntries(tx,
			func(e *wtxmgr.TxLogEntry) bool {
				return (!byID || e.ID == id) &&
					(!bySlate || e.SlateID == sid)
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// RetrieveSummaryInfo totals the wallet's outputs at the ledger's current
// height, or the last height it reported when it cannot be reached. minConf overrides the wallet's minimum confirmations.
func (w *Wallet) RetrieveSummaryInfo(ctx context.Context,
	minConf fn.Option[uint64]) (*wtxmgr.Summary, error) {

	height, err := w.knownHeight(ctx)
	if err != nil {
		return nil, err
	}

	var outputs []wtxmgr.OutputRecord
	err = w.view(ctx, func(tx wtxmgr.ReadTx) error {
		var err error
		outputs, err = wtxmgr.Outputs(tx, nil)
		return err
	})
	if err != nil {
		return nil, werr.Store("listing outputs", err)
	}

	sum := wtxmgr.Summarize(outputs, height, minConf.UnwrapOr(w.minConf))
	return &sum, nil
}
