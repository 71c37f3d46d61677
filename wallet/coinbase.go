// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// BuildCoinbase creates the reward output and kernel for the block at
// fees.Height. The output pays the block reward plus fees and is recorded
// as an immature coinbase until it is seen on chain and matures.
func (w *Wallet) BuildCoinbase(ctx context.Context,
	fees *BlockFees) (*CbData, error) {

	value := w.params.BlockReward + fees.Fees

	var cb *CbData
	err := w.withNegotiationLock(ctx, func(tx wtxmgr.ReadWriteTx) error {
		txLogID, err := tx.NextTxLogID()
		if err != nil {
			return werr.Store("reserving log id", err)
		}

		var out *newOutput
		keyID, ok := optionValue(fees.KeyID)
		if ok {
			out, err = w.createOutputWithKey(keyID, value,
				core.OutputCoinbase, txLogID)
		} else {
			out, err = w.createOutput(tx, value, core.OutputCoinbase,
				txLogID)
		}
		if err != nil {
			return err
		}
		defer out.blind.Zero()

		kernel, err := signCoinbase(out.blind)
		if err != nil {
			return err
		}

		out.record.Height = fees.Height
		out.record.LockHeight = fees.Height + w.params.CoinbaseMaturity
		if err := tx.PutOutput(&out.record); err != nil {
			return werr.Store("storing coinbase output", err)
		}

		entry := &wtxmgr.TxLogEntry{
			ID:             txLogID,
			SlateID:        uuid.Nil,
			Type:           wtxmgr.ConfirmedCoinbase,
			State:          slate.StateFinalized,
			CreationTS:     w.now(),
			AmountCredited: value,
			NumOutputs:     1,
			KernelExcess:   kernel.Excess,
		}
		if err := tx.PutTxLogEntry(entry); err != nil {
			return werr.Store("storing log entry", err)
		}

		cb = &CbData{
			Output: out.output,
			Kernel: *kernel,
			KeyID:  out.record.KeyID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Built coinbase of %d for height %d", value, fees.Height)
	return cb, nil
}

// signCoinbase returns a coinbase kernel whose excess is the public key of
// blind, signed by it.
func signCoinbase(blind commit.BlindingFactor) (*core.TxKernel, error) {
	pub, err := blind.PublicKey()
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "coinbase excess", err)
	}
	k := &core.TxKernel{
		Features: core.KernelCoinbase,
		Excess:   commit.FromPublicKey(pub),
	}

	secKey, err := blind.Scalar()
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "coinbase key", err)
	}
	defer secKey.Zero()

	msg := k.MsgToSign()
	k.ExcessSig, err = aggsig.Sign(&secKey, msg[:])
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "signing coinbase", err)
	}
	return k, nil
}

// optionValue returns the value held by o.
func optionValue[A any](o fn.Option[A]) (A, bool) {
	var (
		v  A
		ok bool
	)
	o.WhenSome(func(a A) {
		v, ok = a, true
	})
	return v, ok
}
