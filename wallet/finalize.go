// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// FinalizeTx completes a send this wallet started. Every participant's
// public data and partial signature must be present apart from this
// wallet's own signature, which is added before the signatures are
// aggregated. On success the transaction is stored with the log entry and
// the negotiation context is dropped. On failure nothing is written and
// the slate passed in is not modified.
func (w *Wallet) FinalizeTx(ctx context.Context,
	s *slate.Slate) (*slate.Slate, error) {

	return w.finalize(ctx, s, wtxmgr.TxSent)
}

// FinalizeInvoiceTx completes an invoice this wallet issued once the payer
// has signed.
func (w *Wallet) FinalizeInvoiceTx(ctx context.Context,
	s *slate.Slate) (*slate.Slate, error) {

	return w.finalize(ctx, s, wtxmgr.TxReceived)
}

func (w *Wallet) finalize(ctx context.Context, s *slate.Slate,
	typ wtxmgr.TxLogType) (*slate.Slate, error) {

	if err := s.CheckVersion(); err != nil {
		return nil, err
	}

	out := s.Copy()
	err := w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		entry, err := fetchNegotiation(tx, out.ID)
		if err != nil {
			return err
		}
		if entry.IsCancelled() {
			return werr.Newf(werr.ErrNegotiationCancelled,
				"negotiation %v was cancelled", out.ID)
		}
		if entry.Type != typ {
			return werr.Newf(werr.ErrNegotiationNotFound,
				"slate %v is logged as %v", out.ID, entry.Type)
		}
		if entry.StoredTx || !entry.State.CanTransition(
			slate.StateFinalized) || entry.State == slate.StateFinalized {

			return werr.Newf(werr.ErrResubmission,
				"negotiation %v already %v", out.ID, entry.State)
		}

		pctx, err := tx.FetchContext(out.ID, entry.ParticipantID)
		if err != nil {
			return werr.Store("fetching context", err)
		}
		if pctx == nil {
			return werr.ForParticipant(werr.ErrNegotiationNotFound,
				entry.ParticipantID, "no context for negotiation",
				nil)
		}
		defer pctx.Zero()

		if err := out.FillRound2(pctx, w.baseFee); err != nil {
			return err
		}
		if err := out.Finalize(ctx); err != nil {
			return err
		}

		entry.KernelExcess = out.Tx.Kernel().Excess
		entry.StoredTx = true
		if err := entry.SetState(slate.StateFinalized); err != nil {
			return werr.New(werr.ErrProtocolViolation, "", err)
		}
		if err := tx.PutStoredTx(out.ID, out.Tx); err != nil {
			return werr.Store("storing transaction", err)
		}
		if err := tx.PutTxLogEntry(entry); err != nil {
			return werr.Store("updating log entry", err)
		}
		err = tx.DeleteContext(out.ID, entry.ParticipantID)
		return werr.Store("deleting context", err)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Finalized slate %v: %d %s, %d %s, fee %d", out.ID,
		len(out.Tx.Body.Inputs), pickNoun(len(out.Tx.Body.Inputs),
			"input", "inputs"),
		len(out.Tx.Body.Outputs), pickNoun(len(out.Tx.Body.Outputs),
			"output", "outputs"), out.Tx.Fee())
	return out, nil
}

// PostTx submits a finalized transaction to the ledger. fluff asks the
// node to broadcast immediately instead of stemming. A transaction whose
// negotiation was cancelled is refused. On success the negotiation is
// marked Posted; a ledger failure leaves it Finalized so the post can be
// retried.
//
// The negotiation mutex is held across the ledger call, so a concurrent
// CancelTx either runs first and the post is refused, or runs after and
// fails with ErrAlreadyPosted.
func (w *Wallet) PostTx(ctx context.Context, tx *core.Transaction,
	fluff bool) error {

	k := tx.Kernel()
	if k == nil || !k.IsSigned() {
		return werr.New(werr.ErrInvalidTransaction,
			"transaction has no signed kernel", nil)
	}

	w.negotiationMtx.Lock()
	defer w.negotiationMtx.Unlock()

	var entryID fn.Option[uint32]
	err := w.view(ctx, func(rtx wtxmgr.ReadTx) error {
		entries, err := wtxmgr.TxLogEntries(rtx,
			func(e *wtxmgr.TxLogEntry) bool {
				return e.KernelExcess == k.Excess
			})
		if err != nil || len(entries) == 0 {
			return err
		}
		if entries[0].IsCancelled() {
			return werr.Newf(werr.ErrNegotiationCancelled,
				"negotiation %v was cancelled", entries[0].SlateID)
		}
		entryID = fn.Some(entries[0].ID)
		return nil
	})
	if err != nil {
		return err
	}

	if err := w.chain.PostTx(ctx, tx, fluff); err != nil {
		log.Warnf("Unable to post transaction %v: %v", tx.Hash(), err)
		return err
	}
	log.Infof("Posted transaction %v (fluff=%v)", tx.Hash(), fluff)

	var markErr error
	entryID.WhenSome(func(id uint32) {
		markErr = w.update(ctx, func(rwtx wtxmgr.ReadWriteTx) error {
			return markPosted(rwtx, id)
		})
	})
	return markErr
}

// markPosted moves log entry id to Posted. Posting twice is not an error.
func markPosted(tx wtxmgr.ReadWriteTx, id uint32) error {
	entry, err := tx.FetchTxLogEntry(id)
	if err != nil {
		return werr.Store("fetching log entry", err)
	}
	switch {
	case entry == nil:
		return werr.Newf(werr.ErrNegotiationNotFound,
			"log entry %d disappeared while posting", id)
	case entry.State == slate.StatePosted:
		return nil
	case entry.IsCancelled():
		return werr.Newf(werr.ErrNegotiationCancelled,
			"negotiation %v was cancelled while posting",
			entry.SlateID)
	}
	if err := entry.SetState(slate.StatePosted); err != nil {
		return werr.New(werr.ErrProtocolViolation, "", err)
	}
	return werr.Store("updating log entry", tx.PutTxLogEntry(entry))
}

// CancelTx abandons a negotiation identified by its log entry id or, when
// txID is None, its slate id. Locked inputs return to Unspent and outputs
// the negotiation created are dropped. A posted negotiation cannot be
// cancelled.
func (w *Wallet) CancelTx(ctx context.Context, txID fn.Option[uint32],
	slateID fn.Option[uuid.UUID]) error {

	if txID.IsNone() && slateID.IsNone() {
		return werr.New(werr.ErrInvalidArgument,
			"a log entry id or slate id is required", nil)
	}

	return w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		var (
			entry *wtxmgr.TxLogEntry
			err   error
		)
		txID.WhenSome(func(id uint32) {
			entry, err = tx.FetchTxLogEntry(id)
		})
		if txID.IsNone() {
			slateID.WhenSome(func(id uuid.UUID) {
				entry, err = tx.FetchTxLogEntryBySlate(id)
			})
		}
		if err != nil {
			return werr.Store("fetching log entry", err)
		}
		if entry == nil {
			return werr.New(werr.ErrNegotiationNotFound,
				"no matching log entry", nil)
		}
		return wtxmgr.CancelNegotiation(tx, entry)
	})
}

// GetStoredTx returns the finalized transaction of entry, or nil if none
// was stored.
func (w *Wallet) GetStoredTx(ctx context.Context,
	entry *wtxmgr.TxLogEntry) (*core.Transaction, error) {

	if entry == nil || !entry.StoredTx {
		return nil, nil
	}

	var stored *core.Transaction
	err := w.view(ctx, func(tx wtxmgr.ReadTx) error {
		var err error
		stored, err = tx.FetchStoredTx(entry.SlateID)
		return err
	})
	return stored, err
}
