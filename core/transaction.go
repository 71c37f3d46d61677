// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package core defines confidential transactions: inputs and outputs that
// carry commitments instead of amounts, the kernel that proves the body
// balances, and the rules used to validate them.
package core

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/commit"
	"golang.org/x/crypto/blake2b"
)

// Input spends a previously created output by commitment.
type Input struct {
	Features OutputFeatures    `json:"features"`
	Commit   commit.Commitment `json:"commit"`
}

// Output creates a new commitment with a proof that its value is in range.
type Output struct {
	Features OutputFeatures    `json:"features"`
	Commit   commit.Commitment `json:"commit"`
	Proof    commit.RangeProof `json:"proof"`
}

// TxKernel is the public proof that a transaction balances: the excess
// commitment and a signature by its key over the kernel message.
type TxKernel struct {
	Features   KernelFeatures    `json:"features"`
	Fee        uint64            `json:"fee,string"`
	LockHeight uint64            `json:"lock_height,string"`
	Excess     commit.Commitment `json:"excess"`
	ExcessSig  aggsig.Signature  `json:"excess_sig"`
}

// TxBody holds the inputs, outputs and kernels of a transaction.
type TxBody struct {
	Inputs  []Input    `json:"inputs"`
	Outputs []Output   `json:"outputs"`
	Kernels []TxKernel `json:"kernels"`
}

// Transaction is a body plus the offset that splits the kernel excess.
type Transaction struct {
	Offset commit.BlindingFactor `json:"offset"`
	Body   TxBody                `json:"body"`
}

// NewTransaction returns a transaction with an empty body and a single
// unsigned kernel of the given features.
func NewTransaction(features KernelFeatures) *Transaction {
	return &Transaction{
		Body: TxBody{
			Inputs:  make([]Input, 0),
			Outputs: make([]Output, 0),
			Kernels: []TxKernel{{Features: features}},
		},
	}
}

// TxFee returns the minimum fee for a body of the given shape. Outputs
// weigh four, kernels one, and each input removes one, with a floor of one
// unit.
func TxFee(inputs, outputs, kernels int, baseFee uint64) uint64 {
	weight := 4*outputs + kernels - inputs
	if weight < 1 {
		weight = 1
	}
	return uint64(weight) * baseFee
}

// MsgToSign returns the message the kernel signature covers: the hash of
// the features, the fee unless coinbase, and the lock height when height
// locked.
func (k *TxKernel) MsgToSign() chainhash.Hash {
	var buf bytes.Buffer
	buf.WriteByte(byte(k.Features))
	if k.Features != KernelCoinbase {
		_ = binary.Write(&buf, binary.BigEndian, k.Fee)
	}
	if k.Features == KernelHeightLocked {
		_ = binary.Write(&buf, binary.BigEndian, k.LockHeight)
	}
	return chainhash.Hash(blake2b.Sum256(buf.Bytes()))
}

// Hash identifies the kernel.
func (k *TxKernel) Hash() chainhash.Hash {
	var buf bytes.Buffer
	_ = writeKernel(&buf, k)
	return chainhash.Hash(blake2b.Sum256(buf.Bytes()))
}

// IsSigned reports whether the kernel carries an excess and signature.
func (k *TxKernel) IsSigned() bool {
	return !k.Excess.IsZero() && !k.ExcessSig.IsZero()
}

// Kernel returns the first kernel of the transaction. Transactions built
// by negotiation carry exactly one.
func (t *Transaction) Kernel() *TxKernel {
	if len(t.Body.Kernels) == 0 {
		return nil
	}
	return &t.Body.Kernels[0]
}

// Fee returns the total fee of all kernels.
func (t *Transaction) Fee() uint64 {
	var fee uint64
	for _, k := range t.Body.Kernels {
		fee += k.Fee
	}
	return fee
}

// Weight returns the fee weight of the body.
func (t *Transaction) Weight() uint64 {
	return TxFee(len(t.Body.Inputs), len(t.Body.Outputs),
		len(t.Body.Kernels), 1)
}

// Hash identifies the transaction by its serialization.
func (t *Transaction) Hash() chainhash.Hash {
	var buf bytes.Buffer
	_ = t.Serialize(&buf)
	return chainhash.Hash(blake2b.Sum256(buf.Bytes()))
}

// AddInput appends an input.
func (t *Transaction) AddInput(features OutputFeatures, c commit.Commitment) {
	t.Body.Inputs = append(t.Body.Inputs, Input{
		Features: features,
		Commit:   c,
	})
}

// AddOutput appends an output.
func (t *Transaction) AddOutput(o Output) {
	t.Body.Outputs = append(t.Body.Outputs, o)
}

// Sort orders inputs and outputs by commitment and kernels by hash, the
// canonical order checked by Validate.
func (t *Transaction) Sort() {
	sort.Slice(t.Body.Inputs, func(i, j int) bool {
		return bytes.Compare(t.Body.Inputs[i].Commit[:],
			t.Body.Inputs[j].Commit[:]) < 0
	})
	sort.Slice(t.Body.Outputs, func(i, j int) bool {
		return bytes.Compare(t.Body.Outputs[i].Commit[:],
			t.Body.Outputs[j].Commit[:]) < 0
	})
	sort.Slice(t.Body.Kernels, func(i, j int) bool {
		hi, hj := t.Body.Kernels[i].Hash(), t.Body.Kernels[j].Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})
}

// Copy returns a deep copy of the transaction.
func (t *Transaction) Copy() *Transaction {
	c := &Transaction{
		Offset: t.Offset,
		Body: TxBody{
			Inputs:  make([]Input, len(t.Body.Inputs)),
			Outputs: make([]Output, len(t.Body.Outputs)),
			Kernels: make([]TxKernel, len(t.Body.Kernels)),
		},
	}
	copy(c.Body.Inputs, t.Body.Inputs)
	copy(c.Body.Kernels, t.Body.Kernels)
	for i, o := range t.Body.Outputs {
		o.Proof = append(commit.RangeProof(nil), o.Proof...)
		c.Body.Outputs[i] = o
	}
	return c
}
