// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// funding is a coin selection applied to a slate, along with the secret
// context of the participant that contributed it.
type funding struct {
	ctx    *participant.Context
	sel    *selection
	change []*newOutput
}

func (f *funding) changeTotal() uint64 {
	var total uint64
	for _, out := range f.change {
		total += out.record.Value
	}
	return total
}

func (f *funding) zero() {
	f.ctx.Zero()
	for _, out := range f.change {
		out.blind.Zero()
	}
}

// InitSendTx starts a payment of args.Amount. Inputs are selected, change
// outputs created and the inputs locked in one store transaction, so two
// concurrent sends never select the same output. The returned slate
// carries the sender's public data as participant 0.
func (w *Wallet) InitSendTx(ctx context.Context,
	args *InitTxArgs) (*slate.Slate, error) {

	if args.Amount == 0 {
		return nil, werr.New(werr.ErrInvalidArgument,
			"amount must be positive", nil)
	}
	numParticipants := args.NumParticipants
	if numParticipants == 0 {
		numParticipants = slate.MinParticipants
	}
	s, err := slate.New(numParticipants, core.KernelPlain)
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
	args.TTLBlocks.WhenSome(func(ttl uint64) {
		s.TTLCutoffHeight = fn.Some(height + ttl)
	})

	err = w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		txLogID, err := tx.NextTxLogID()
		if err != nil {
			return werr.Store("reserving log id", err)
		}

		f, err := w.fund(tx, s, args, height, txLogID,
			participant.RoleSender, 0)
		if err != nil {
			return err
		}
		defer f.zero()

		if err := s.FillRound1(f.ctx, args.Message); err != nil {
			return err
		}

		entry := w.newEntry(txLogID, s, wtxmgr.TxSent, f.ctx)
		entry.AmountDebited = f.sel.total()
		entry.AmountCredited = f.changeTotal()
		entry.NumInputs = uint32(len(f.sel.inputs))
		entry.NumOutputs = uint32(len(f.change))
		return w.recordFunding(tx, f, entry, true)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Started send of %d (fee %d) as slate %v", s.Amount, s.Fee,
		s.ID)
	return s, nil
}

// ProcessInvoiceTx pays the invoice s. The payer's inputs and change are
// added, its public data appended and, once every participant has added
// theirs, its partial signature. The slate passed in is not modified.
func (w *Wallet) ProcessInvoiceTx(ctx context.Context, s *slate.Slate,
	args *InitTxArgs) (*slate.Slate, error) {

	if err := s.CheckVersion(); err != nil {
		return nil, err
	}
	if s.IsFull() {
		return nil, werr.Newf(werr.ErrParticipantCount,
			"invoice already holds %d of %d participants",
			len(s.ParticipantData), s.NumParticipants)
	}

	height, err := w.nodeHeight(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkTTL(s, height); err != nil {
		return nil, err
	}

	out := s.Copy()
	if err := setTargetVersion(out, args.TargetSlateVersion); err != nil {
		return nil, err
	}
	id := out.NextParticipantID()

	err = w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		if err := checkNewNegotiation(tx, out); err != nil {
			return err
		}
		txLogID, err := tx.NextTxLogID()
		if err != nil {
			return werr.Store("reserving log id", err)
		}

		f, err := w.fund(tx, out, args, height, txLogID,
			participant.RolePayer, id)
		if err != nil {
			return err
		}
		defer f.zero()

		if err := out.FillRound1(f.ctx, args.Message); err != nil {
			return err
		}
		signed := out.IsFull()
		if signed {
			if err := out.FillRound2(f.ctx, w.baseFee); err != nil {
				return err
			}
		}

		entry := w.newEntry(txLogID, out, wtxmgr.TxSent, f.ctx)
		entry.AmountDebited = f.sel.total()
		entry.AmountCredited = f.changeTotal()
		entry.NumInputs = uint32(len(f.sel.inputs))
		entry.NumOutputs = uint32(len(f.change))
		return w.recordFunding(tx, f, entry, !signed)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Paid invoice %v of %d (fee %d)", out.ID, out.Amount,
		out.Fee)
	return out, nil
}

// TxLockOutputs locks the inputs of s owned by this wallet for the
// negotiation participantID logged. Locking is idempotent: inputs already
// locked by the same negotiation are left as they are. An input locked by
// another negotiation fails the whole call with ErrOutputConflict.
func (w *Wallet) TxLockOutputs(ctx context.Context, s *slate.Slate,
	participantID uint64) error {

	return w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		entry, err := fetchNegotiation(tx, s.ID)
		if err != nil {
			return err
		}
		if err := checkOpen(entry); err != nil {
			return err
		}
		if entry.ParticipantID != participantID {
			return werr.ForParticipant(werr.ErrNegotiationNotFound,
				participantID, "not this wallet's participant", nil)
		}

		inputs := make([]commit.Commitment, 0, len(s.Tx.Body.Inputs))
		for _, in := range s.Tx.Body.Inputs {
			inputs = append(inputs, in.Commit)
		}
		n, err := wtxmgr.LockOutputs(tx, entry.ID, inputs)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Infof("Locked %d %s for slate %v", n,
				pickNoun(n, "output", "outputs"), s.ID)
		}
		return nil
	})
}

// fund selects inputs covering s.Amount, appends them and the change
// outputs to s and sets its fee. The returned context holds the excess of
// the inputs and change.
func (w *Wallet) fund(tx wtxmgr.ReadWriteTx, s *slate.Slate,
	args *InitTxArgs, height uint64, txLogID uint32,
	role participant.Role, id uint64) (*funding, error) {

	minConf := args.MinimumConfirmations.UnwrapOr(w.minConf)
	eligible, err := wtxmgr.Outputs(tx, func(o *wtxmgr.OutputRecord) bool {
		return o.IsSpendable(height, minConf)
	})
	if err != nil {
		return nil, werr.Store("listing outputs", err)
	}

	// Outputs already on the slate plus one for each participant still to
	// join, other than this one.
	recipients := len(s.Tx.Body.Outputs) + s.NumParticipants -
		len(s.ParticipantData) - 1
	sel, err := selectCoins(eligible, s.Amount, selectionPolicy{
		recipients: recipients,
		baseFee:    w.baseFee,
		maxOutputs: args.MaxOutputs,
		numChange:  args.NumChangeOutputs,
		useAll:     args.SelectionStrategyIsUseAll,
	})
	if err != nil {
		return nil, err
	}
	s.Fee = sel.fee

	blinds, err := w.inputBlinds(sel.inputs)
	if err != nil {
		return nil, err
	}
	keySum := commit.NewBlindSum()
	for i := range sel.inputs {
		s.Tx.AddInput(inputFeatures(&sel.inputs[i]), sel.inputs[i].Commit)
		keySum.Sub(blinds[i])
		blinds[i].Zero()
	}

	f := &funding{sel: sel}
	keyIDs := make([]keychain.Identifier, 0, len(sel.change))
	for _, value := range sel.change {
		out, err := w.createOutput(tx, value, core.OutputPlain, txLogID)
		if err != nil {
			return nil, err
		}
		s.Tx.AddOutput(out.output)
		keySum.Add(out.blind)
		keyIDs = append(keyIDs, out.record.KeyID)
		f.change = append(f.change, out)
	}

	secKey, err := keySum.Sum()
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "summing excess", err)
	}
	nonce, err := w.keychain.NewSecretNonce()
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "generating nonce", err)
	}

	f.ctx = &participant.Context{
		SlateID:       s.ID,
		ParticipantID: id,
		Role:          role,
		SecKey:        secKey,
		SecNonce:      nonce,
		Inputs:        commitments(sel.inputs),
		Outputs:       keyIDs,
		Amount:        s.Amount,
		Fee:           s.Fee,
	}
	return f, nil
}

// recordFunding writes the outputs, log entry and optionally the context
// of a funded negotiation, then locks its inputs.
func (w *Wallet) recordFunding(tx wtxmgr.ReadWriteTx, f *funding,
	entry *wtxmgr.TxLogEntry, storeContext bool) error {

	if storeContext {
		if err := tx.PutContext(f.ctx); err != nil {
			return werr.Store("storing context", err)
		}
	}
	for _, out := range f.change {
		if err := tx.PutOutput(&out.record); err != nil {
			return werr.Store("storing change output", err)
		}
	}
	if err := tx.PutTxLogEntry(entry); err != nil {
		return werr.Store("storing log entry", err)
	}
	_, err := wtxmgr.LockOutputs(tx, entry.ID, commitments(f.sel.inputs))
	return err
}

// newEntry returns a log entry for the negotiation of s.
func (w *Wallet) newEntry(id uint32, s *slate.Slate, typ wtxmgr.TxLogType,
	ctx *participant.Context) *wtxmgr.TxLogEntry {

	return &wtxmgr.TxLogEntry{
		ID:            id,
		SlateID:       s.ID,
		Type:          typ,
		State:         s.State(),
		ParticipantID: ctx.ParticipantID,
		CreationTS:    w.now(),
		Fee:           s.Fee,
	}
}

// setTargetVersion sets the version s will be written at.
func setTargetVersion(s *slate.Slate, target fn.Option[uint16]) error {
	version := target.UnwrapOr(s.Version.Version)
	if version < slate.MinVersion || version > slate.CurrentVersion {
		return werr.Newf(werr.ErrSlateVersionMismatch,
			"cannot write slate version %d", version)
	}
	s.Version.Version = version
	return nil
}

// checkTTL fails if s expired at or before height.
func checkTTL(s *slate.Slate, height uint64) error {
	var err error
	s.TTLCutoffHeight.WhenSome(func(cutoff uint64) {
		if height >= cutoff {
			err = werr.Newf(werr.ErrInvalidSlate,
				"slate expired at height %d", cutoff)
		}
	})
	return err
}

// checkNewNegotiation fails if the wallet already took part in s.
func checkNewNegotiation(tx wtxmgr.ReadTx, s *slate.Slate) error {
	existing, err := tx.FetchTxLogEntryBySlate(s.ID)
	if err != nil {
		return werr.Store("fetching log entry", err)
	}
	if existing != nil {
		return werr.Newf(werr.ErrDuplicateNegotiation,
			"slate %v already logged as entry %d", s.ID, existing.ID)
	}
	return nil
}

// checkOpen fails if the negotiation of entry can no longer change.
func checkOpen(entry *wtxmgr.TxLogEntry) error {
	switch {
	case entry.IsCancelled():
		return werr.Newf(werr.ErrNegotiationCancelled,
			"negotiation %v was cancelled", entry.SlateID)
	case entry.Confirmed || entry.State == slate.StatePosted:
		return werr.Newf(werr.ErrAlreadyPosted,
			"negotiation %v was already posted", entry.SlateID)
	}
	return nil
}
