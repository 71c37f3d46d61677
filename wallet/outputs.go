// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
)

// newOutput is an output the wallet is about to create.
type newOutput struct {
	output core.Output
	record wtxmgr.OutputRecord
	blind  commit.BlindingFactor
}

// createOutput derives the next output key and builds an output of value
// with its range proof. The record is Unconfirmed and owned by txLogID.
func (w *Wallet) createOutput(tx wtxmgr.ReadWriteTx, value uint64,
	features core.OutputFeatures, txLogID uint32) (*newOutput, error) {

	index, err := tx.NextChildIndex()
	if err != nil {
		return nil, werr.Store("reserving key index", err)
	}
	keyID := keychain.OutputKeyID(w.account, index)
	return w.createOutputWithKey(keyID, value, features, txLogID)
}

func (w *Wallet) createOutputWithKey(keyID keychain.Identifier, value uint64,
	features core.OutputFeatures, txLogID uint32) (*newOutput, error) {

	blind, err := w.keychain.DeriveKey(keyID)
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "deriving output key", err)
	}
	c, err := commit.Commit(value, blind)
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "committing output", err)
	}
	proof, err := w.keychain.RangeProof(value, keyID)
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "proving output range", err)
	}

	return &newOutput{
		output: core.Output{
			Features: features,
			Commit:   c,
			Proof:    proof,
		},
		record: wtxmgr.OutputRecord{
			Commit:     c,
			KeyID:      keyID,
			Value:      value,
			Status:     wtxmgr.Unconfirmed,
			IsCoinbase: features == core.OutputCoinbase,
			TxLogID:    txLogID,
		},
		blind: blind,
	}, nil
}

// inputBlinds derives the blinding factors of the selected inputs.
func (w *Wallet) inputBlinds(inputs []wtxmgr.OutputRecord) (
	[]commit.BlindingFactor, error) {

	blinds := make([]commit.BlindingFactor, 0, len(inputs))
	for i := range inputs {
		b, err := w.keychain.DeriveKey(inputs[i].KeyID)
		if err != nil {
			return nil, werr.New(werr.ErrKeychain,
				"deriving input key", err)
		}
		blinds = append(blinds, b)
	}
	return blinds, nil
}

func inputFeatures(o *wtxmgr.OutputRecord) core.OutputFeatures {
	if o.IsCoinbase {
		return core.OutputCoinbase
	}
	return core.OutputPlain
}

func commitments(outputs []wtxmgr.OutputRecord) []commit.Commitment {
	commits := make([]commit.Commitment, 0, len(outputs))
	for i := range outputs {
		commits = append(commits, outputs[i].Commit)
	}
	return commits
}
