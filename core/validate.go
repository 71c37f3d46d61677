// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"context"
	"fmt"

	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/werr"
	"golang.org/x/sync/errgroup"
)

// Validate checks the transaction as a ledger would before accepting it:
// canonical ordering, no output spent within its own body, a signature on
// every kernel, a valid range proof on every output and a balanced kernel
// sum.
func (t *Transaction) Validate(ctx context.Context) error {
	if len(t.Body.Kernels) == 0 {
		return werr.New(werr.ErrInvalidTransaction, "no kernels", nil)
	}
	if err := t.verifySorted(); err != nil {
		return err
	}
	if err := t.verifyNoCutThrough(); err != nil {
		return err
	}
	if err := t.VerifyKernelSignatures(); err != nil {
		return err
	}
	if err := t.VerifyRangeProofs(ctx); err != nil {
		return err
	}
	return t.VerifyKernelSums(int64(t.Fee()))
}

func (t *Transaction) verifySorted() error {
	for i := 1; i < len(t.Body.Inputs); i++ {
		if bytes.Compare(t.Body.Inputs[i-1].Commit[:],
			t.Body.Inputs[i].Commit[:]) >= 0 {

			return werr.New(werr.ErrInvalidTransaction,
				"inputs not sorted or duplicated", nil)
		}
	}
	for i := 1; i < len(t.Body.Outputs); i++ {
		if bytes.Compare(t.Body.Outputs[i-1].Commit[:],
			t.Body.Outputs[i].Commit[:]) >= 0 {

			return werr.New(werr.ErrInvalidTransaction,
				"outputs not sorted or duplicated", nil)
		}
	}
	return nil
}

func (t *Transaction) verifyNoCutThrough() error {
	outputs := make(map[commit.Commitment]struct{}, len(t.Body.Outputs))
	for _, o := range t.Body.Outputs {
		outputs[o.Commit] = struct{}{}
	}
	for _, in := range t.Body.Inputs {
		if _, ok := outputs[in.Commit]; ok {
			return werr.Newf(werr.ErrInvalidTransaction,
				"input %v spends an output of the same body",
				in.Commit)
		}
	}
	return nil
}

// VerifyKernelSignatures checks every kernel signature against its excess.
func (t *Transaction) VerifyKernelSignatures() error {
	for i := range t.Body.Kernels {
		k := &t.Body.Kernels[i]
		pub, err := k.Excess.PublicKey()
		if err != nil {
			return werr.New(werr.ErrInvalidTransaction,
				fmt.Sprintf("kernel %d excess", i), err)
		}
		msg := k.MsgToSign()
		if err := aggsig.Verify(k.ExcessSig, pub, msg[:]); err != nil {
			return werr.New(werr.ErrInvalidTransaction,
				fmt.Sprintf("kernel %d signature", i), err)
		}
	}
	return nil
}

// VerifyRangeProofs checks every output's range proof, spreading the work
// over the available CPUs.
func (t *Transaction) VerifyRangeProofs(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range t.Body.Outputs {
		out := &t.Body.Outputs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := commit.VerifyRange(out.Commit, out.Proof); err != nil {
				return werr.New(werr.ErrInvalidTransaction,
					fmt.Sprintf("output %v", out.Commit), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// VerifyKernelSums checks the balance law
//
//	sum(outputs) - sum(inputs) + overage*H == sum(excesses) + offset*G
//
// where overage is the fee for a transaction, and the negated reward for a
// coinbase.
func (t *Transaction) VerifyKernelSums(overage int64) error {
	utxoSum, err := t.UTXOSum(overage)
	if err != nil {
		return werr.New(werr.ErrInvalidTransaction, "summing body", err)
	}

	kernelSum, err := t.KernelSum()
	if err != nil {
		return werr.New(werr.ErrInvalidTransaction, "summing kernels", err)
	}

	if utxoSum != kernelSum {
		return werr.Newf(werr.ErrKernelSumMismatch,
			"body sums to %v, kernels and offset to %v", utxoSum,
			kernelSum)
	}
	return nil
}

// UTXOSum returns sum(outputs) - sum(inputs) + overage*H.
func (t *Transaction) UTXOSum(overage int64) (commit.Commitment, error) {
	pos := make([]commit.Commitment, 0, len(t.Body.Outputs)+1)
	neg := make([]commit.Commitment, 0, len(t.Body.Inputs)+1)
	for _, o := range t.Body.Outputs {
		pos = append(pos, o.Commit)
	}
	for _, in := range t.Body.Inputs {
		neg = append(neg, in.Commit)
	}
	switch {
	case overage > 0:
		pos = append(pos, commit.CommitValue(uint64(overage)))
	case overage < 0:
		neg = append(neg, commit.CommitValue(uint64(-overage)))
	}
	return commit.Sum(pos, neg)
}

// KernelSum returns sum(excesses) + offset*G.
func (t *Transaction) KernelSum() (commit.Commitment, error) {
	pos := make([]commit.Commitment, 0, len(t.Body.Kernels)+1)
	for _, k := range t.Body.Kernels {
		pos = append(pos, k.Excess)
	}
	if !t.Offset.IsZero() {
		offset, err := commit.CommitBlind(t.Offset)
		if err != nil {
			return commit.Commitment{}, err
		}
		pos = append(pos, offset)
	}
	return commit.Sum(pos, nil)
}
