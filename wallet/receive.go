// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// IssueInvoiceTx requests args.Amount. The returned slate carries the
// payee's output and public data as participant 1; the payer adds inputs,
// change and the fee.
func (w *Wallet) IssueInvoiceTx(ctx context.Context,
	args *IssueInvoiceTxArgs) (*slate.Slate, error) {

	if args.Amount == 0 {
		return nil, werr.New(werr.ErrInvalidArgument,
			"amount must be positive", nil)
	}
	s, err := slate.New(slate.MinParticipants, core.KernelPlain)
	if err != nil {
		return nil, err
	}
	if err := setTargetVersion(s, args.TargetSlateVersion); err != nil {
		return nil, err
	}
	height, err := w.nodeHeight(ctx)
	if err != nil {
		return nil, err
	}
	s.Amount = args.Amount
	s.Height = height

	err = w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		txLogID, err := tx.NextTxLogID()
		if err != nil {
			return werr.Store("reserving log id", err)
		}
		pctx, out, err := w.addReceiverOutput(tx, s, s.Amount, 1,
			participant.RolePayee, txLogID)
		if err != nil {
			return err
		}
		defer pctx.Zero()

		if err := s.FillRound1(pctx, args.Message); err != nil {
			return err
		}
		if err := tx.PutContext(pctx); err != nil {
			return werr.Store("storing context", err)
		}
		return w.recordReceive(tx, s, pctx, out, txLogID)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Issued invoice %v for %d", s.ID, s.Amount)
	return s, nil
}

// ReceiveTx accepts a payment. The wallet adds an output for its share of
// the amount and its public data under the next participant id, and signs
// once every participant has added theirs. A wallet whose public data went
// onto a slate that was not yet full signs when the complete slate is
// presented again. The slate passed in is not modified.
func (w *Wallet) ReceiveTx(ctx context.Context, s *slate.Slate,
	message fn.Option[string]) (*slate.Slate, error) {

	if err := s.CheckVersion(); err != nil {
		return nil, err
	}
	height, err := w.nodeHeight(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkTTL(s, height); err != nil {
		return nil, err
	}

	out := s.Copy()
	err = w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		existing, err := tx.FetchTxLogEntryBySlate(out.ID)
		if err != nil {
			return werr.Store("fetching log entry", err)
		}
		if existing != nil {
			return w.signReceived(tx, out, existing)
		}

		if out.IsFull() {
			return werr.Newf(werr.ErrParticipantCount,
				"slate already holds %d of %d participants",
				len(out.ParticipantData), out.NumParticipants)
		}
		id := uint64(len(out.ParticipantData))
		if _, ok := out.Participant(id); ok {
			return werr.ForParticipant(werr.ErrParticipantIDCollision,
				id, "participant already on slate", nil)
		}

		txLogID, err := tx.NextTxLogID()
		if err != nil {
			return werr.Store("reserving log id", err)
		}
		pctx, o, err := w.addReceiverOutput(tx, out,
			receiverShare(out, id), id, participant.RoleReceiver,
			txLogID)
		if err != nil {
			return err
		}
		defer pctx.Zero()

		if err := out.FillRound1(pctx, message); err != nil {
			return err
		}
		if out.IsFull() {
			err := out.FillRound2(pctx, w.baseFee)
			if err != nil {
				return err
			}
		} else if err := tx.PutContext(pctx); err != nil {
			return werr.Store("storing context", err)
		}
		return w.recordReceive(tx, out, pctx, o, txLogID)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Received %d on slate %v (%v)", out.Amount, out.ID,
		out.State())
	return out, nil
}

// signReceived adds the partial signature of a receiver that already put
// its public data on s.
func (w *Wallet) signReceived(tx wtxmgr.ReadWriteTx, s *slate.Slate,
	entry *wtxmgr.TxLogEntry) error {

	if entry.Type != wtxmgr.TxReceived {
		return werr.Newf(werr.ErrDuplicateNegotiation,
			"slate %v already logged as entry %d", s.ID, entry.ID)
	}
	if err := checkOpen(entry); err != nil {
		return err
	}

	pctx, err := tx.FetchContext(s.ID, entry.ParticipantID)
	if err != nil {
		return werr.Store("fetching context", err)
	}
	if pctx == nil {
		return werr.ForParticipant(werr.ErrResubmission,
			entry.ParticipantID, "already signed", nil)
	}
	defer pctx.Zero()

	if err := s.FillRound2(pctx, w.baseFee); err != nil {
		return err
	}
	if err := tx.DeleteContext(s.ID, entry.ParticipantID); err != nil {
		return werr.Store("deleting context", err)
	}
	if err := entry.SetState(s.State()); err != nil {
		return werr.New(werr.ErrProtocolViolation, "", err)
	}
	return werr.Store("updating log entry", tx.PutTxLogEntry(entry))
}

// addReceiverOutput creates an output of value on s and returns the
// context of participant id owning it.
func (w *Wallet) addReceiverOutput(tx wtxmgr.ReadWriteTx, s *slate.Slate,
	value, id uint64, role participant.Role,
	txLogID uint32) (*participant.Context, *newOutput, error) {

	out, err := w.createOutput(tx, value, core.OutputPlain, txLogID)
	if err != nil {
		return nil, nil, err
	}
	s.Tx.AddOutput(out.output)

	nonce, err := w.keychain.NewSecretNonce()
	if err != nil {
		return nil, nil, werr.New(werr.ErrKeychain,
			"generating nonce", err)
	}
	pctx := &participant.Context{
		SlateID:       s.ID,
		ParticipantID: id,
		Role:          role,
		SecKey:        out.blind,
		SecNonce:      nonce,
		Outputs:       []keychain.Identifier{out.record.KeyID},
		Amount:        value,
		Fee:           s.Fee,
	}
	out.blind.Zero()
	return pctx, out, nil
}

// recordReceive stores the received output and its log entry.
func (w *Wallet) recordReceive(tx wtxmgr.ReadWriteTx, s *slate.Slate,
	pctx *participant.Context, out *newOutput, txLogID uint32) error {

	if err := tx.PutOutput(&out.record); err != nil {
		return werr.Store("storing output", err)
	}
	entry := w.newEntry(txLogID, s, wtxmgr.TxReceived, pctx)
	entry.AmountCredited = out.record.Value
	entry.NumOutputs = 1
	return werr.Store("storing log entry", tx.PutTxLogEntry(entry))
}

// receiverShare returns the value received by participant id. With more
// than one receiver the amount is split evenly over ids 1 to n-1, the last
// taking the remainder.
func receiverShare(s *slate.Slate, id uint64) uint64 {
	receivers := uint64(s.NumParticipants - 1)
	if receivers <= 1 {
		return s.Amount
	}
	share := s.Amount / receivers
	if id == receivers {
		return s.Amount - share*(receivers-1)
	}
	return share
}
