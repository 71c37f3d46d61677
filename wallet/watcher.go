// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"sort"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
)

// confirmationWatcher polls the ledger on every tick of the refresh ticker
// until quit is closed.
//
// NOTE: This MUST be run as a goroutine.
func (w *Wallet) confirmationWatcher(quit <-chan struct{}) {
	defer w.wg.Done()

	w.ticker.Resume()
	defer w.ticker.Pause()

	for {
		select {
		case <-w.ticker.Ticks():
			ctx, cancel := context.WithTimeout(
				context.Background(), DefaultRefreshInterval,
			)
			if err := w.UpdateConfirmations(ctx); err != nil {
				log.Warnf("Unable to update confirmations: %v", err)
			}
			cancel()

		case <-quit:
			return
		}
	}
}

// UpdateConfirmations reconciles the wallet's outputs with the ledger.
// Unconfirmed outputs found on chain confirm the negotiation that created
// them. Locked outputs gone from the chain confirm the negotiation that
// spent them. Unspent outputs gone from the chain were spent elsewhere and
// are marked Spent.
func (w *Wallet) UpdateConfirmations(ctx context.Context) error {
	height, err := w.nodeHeight(ctx)
	if err != nil {
		return err
	}

	var tracked []wtxmgr.OutputRecord
	err = w.view(ctx, func(tx wtxmgr.ReadTx) error {
		var err error
		tracked, err = wtxmgr.Outputs(tx, func(o *wtxmgr.OutputRecord) bool {
			return o.Status != wtxmgr.Spent
		})
		return err
	})
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		return nil
	}

	commits := make([]commit.Commitment, 0, len(tracked))
	for i := range tracked {
		commits = append(commits, tracked[i].Commit)
	}
	found, err := w.chain.GetOutputs(ctx, commits)
	if err != nil {
		return err
	}
	onChain := make(map[commit.Commitment]uint64, len(found))
	for _, info := range found {
		onChain[info.Commit] = info.Height
	}

	return w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		confirmed := make(map[uint32]uint64)
		for i := range tracked {
			// Re-read the record, a negotiation may have changed it
			// since the ledger was queried.
			o, err := tx.FetchOutput(tracked[i].Commit)
			if err != nil {
				return werr.Store("fetching output", err)
			}
			if o == nil {
				continue
			}

			h, live := onChain[o.Commit]
			switch {
			case o.Status == wtxmgr.Unconfirmed && live:
				if h > confirmed[o.TxLogID] {
					confirmed[o.TxLogID] = h
				}

			case o.Status == wtxmgr.Locked && !live:
				if _, ok := confirmed[o.LockID]; !ok {
					confirmed[o.LockID] = height
				}

			case o.Status == wtxmgr.Unspent && !live:
				log.Warnf("Output %v no longer on chain, "+
					"marking spent", o.Commit)
				o.Status = wtxmgr.Spent
				if err := tx.PutOutput(o); err != nil {
					return werr.Store("updating output", err)
				}
			}
		}

		ids := make([]uint32, 0, len(confirmed))
		for id := range confirmed {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		now := w.now()
		for _, id := range ids {
			err := wtxmgr.MarkConfirmed(tx, id, confirmed[id], now)
			if err != nil {
				return err
			}
		}
		if len(ids) > 0 {
			log.Infof("Confirmed %d %s at height %d", len(ids),
				pickNoun(len(ids), "negotiation", "negotiations"),
				height)
		}
		return nil
	})
}
