// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain_test

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/chain"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/stretchr/testify/require"
)

const (
	testReward   = 60_000_000_000
	testMaturity = 3
	testFee      = 4_000_000
)

func newBlind(t *testing.T) commit.BlindingFactor {
	t.Helper()

	b, err := commit.RandomBlindingFactor(rand.Reader)
	require.NoError(t, err)
	return b
}

func newOutput(t *testing.T, features core.OutputFeatures, value uint64,
	b commit.BlindingFactor) core.Output {

	t.Helper()

	c, err := commit.Commit(value, b)
	require.NoError(t, err)
	proof, err := commit.ProveRange(value, b, rand.Reader)
	require.NoError(t, err)
	return core.Output{Features: features, Commit: c, Proof: proof}
}

func signKernel(t *testing.T, k *core.TxKernel, excess commit.BlindingFactor) {
	t.Helper()

	pub, err := excess.PublicKey()
	require.NoError(t, err)
	k.Excess = commit.FromPublicKey(pub)

	sk, err := excess.Scalar()
	require.NoError(t, err)
	msg := k.MsgToSign()
	k.ExcessSig, err = aggsig.Sign(&sk, msg[:])
	require.NoError(t, err)
}

func newReward(t *testing.T, value uint64) (chain.Reward,
	commit.BlindingFactor) {

	t.Helper()

	b := newBlind(t)
	r := chain.Reward{
		Output: newOutput(t, core.OutputCoinbase, value, b),
		Kernel: core.TxKernel{Features: core.KernelCoinbase},
	}
	signKernel(t, &r.Kernel, b)
	return r, b
}

// spend builds a single input, single output transaction moving value
// minus the fee to a fresh blinding factor.
func spend(t *testing.T, in commit.Commitment, inBlind commit.BlindingFactor,
	value uint64) *core.Transaction {

	t.Helper()

	outBlind := newBlind(t)
	tx := core.NewTransaction(core.KernelPlain)
	tx.AddInput(core.OutputCoinbase, in)
	tx.AddOutput(newOutput(t, core.OutputPlain, value-testFee, outBlind))
	tx.Body.Kernels[0].Fee = testFee

	excess, err := commit.NewBlindSum().Add(outBlind).Sub(inBlind).Sum()
	require.NoError(t, err)
	signKernel(t, &tx.Body.Kernels[0], excess)
	return tx
}

func mineTo(t *testing.T, l *chain.MemLedger, height uint64) {
	t.Helper()

	ctx := context.Background()
	for {
		h, err := l.Height(ctx)
		require.NoError(t, err)
		if h >= height {
			return
		}
		_, err = l.MineBlock(ctx)
		require.NoError(t, err)
	}
}

func TestMemLedgerSpend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := chain.NewMemLedger(testReward, testMaturity)

	reward, b := newReward(t, testReward)
	height, err := l.MineBlock(ctx, reward)
	require.NoError(t, err)
	require.EqualValues(t, 1, height)

	outs, err := l.GetOutputs(ctx, []commit.Commitment{reward.Output.Commit})
	require.NoError(t, err)
	require.Equal(t, []chain.OutputInfo{{
		Commit: reward.Output.Commit,
		Height: 1,
	}}, outs)

	tx := spend(t, reward.Output.Commit, b, testReward)

	// The coinbase output is not spendable until it matures.
	err = l.PostTx(ctx, tx, false)
	require.ErrorIs(t, err, werr.ErrInvalidTransaction)

	mineTo(t, l, testMaturity)
	require.NoError(t, l.PostTx(ctx, tx, false))

	// The same input may not be spent twice from the mempool.
	err = l.PostTx(ctx, spend(t, reward.Output.Commit, b, testReward), true)
	require.ErrorIs(t, err, werr.ErrInvalidTransaction)

	posted := l.PostedTxs()
	require.Len(t, posted, 1)
	require.False(t, posted[0].Fluff)

	_, err = l.MineBlock(ctx)
	require.NoError(t, err)

	outs, err = l.GetOutputs(ctx, []commit.Commitment{
		reward.Output.Commit, tx.Body.Outputs[0].Commit,
	})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.Equal(t, tx.Body.Outputs[0].Commit, outs[0].Commit)

	// Replaying a mined kernel is refused.
	err = l.PostTx(ctx, tx, false)
	require.ErrorIs(t, err, werr.ErrInvalidTransaction)
}

func TestMemLedgerRejectsInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := chain.NewMemLedger(testReward, 0)

	reward, b := newReward(t, testReward)
	_, err := l.MineBlock(ctx, reward)
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func(t *testing.T) *core.Transaction
		kind  werr.Kind
	}{
		{
			name: "fee changed after signing",
			build: func(t *testing.T) *core.Transaction {
				tx := spend(t, reward.Output.Commit, b, testReward)
				tx.Body.Kernels[0].Fee++
				return tx
			},
			kind: werr.ErrInvalidTransaction,
		},
		{
			name: "unbalanced offset",
			build: func(t *testing.T) *core.Transaction {
				tx := spend(t, reward.Output.Commit, b, testReward)
				tx.Offset = newBlind(t)
				return tx
			},
			kind: werr.ErrKernelSumMismatch,
		},
		{
			name: "unknown input",
			build: func(t *testing.T) *core.Transaction {
				unmined, ub := newReward(t, testReward)
				return spend(t, unmined.Output.Commit, ub, testReward)
			},
			kind: werr.ErrInvalidTransaction,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := l.PostTx(ctx, test.build(t), false)
			require.ErrorIs(t, err, test.kind)
		})
	}
	require.Empty(t, l.PostedTxs())
}

func TestMemLedgerReward(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := chain.NewMemLedger(testReward, 0)

	// A reward claiming more than the block allows does not balance.
	greedy, _ := newReward(t, testReward+1)
	_, err := l.MineBlock(ctx, greedy)
	require.ErrorIs(t, err, werr.ErrKernelSumMismatch)

	h, err := l.Height(ctx)
	require.NoError(t, err)
	require.Zero(t, h)

	// Fees of mempool transactions may be claimed.
	reward, b := newReward(t, testReward)
	_, err = l.MineBlock(ctx, reward)
	require.NoError(t, err)
	require.NoError(t, l.PostTx(ctx,
		spend(t, reward.Output.Commit, b, testReward), true))

	withFees, _ := newReward(t, testReward+testFee)
	_, err = l.MineBlock(ctx, withFees)
	require.NoError(t, err)
}

func TestMemLedgerOffline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := chain.NewMemLedger(testReward, 0)
	reward, b := newReward(t, testReward)
	_, err := l.MineBlock(ctx, reward)
	require.NoError(t, err)

	l.SetOffline(errors.New("connection refused"))

	_, err = l.Height(ctx)
	require.ErrorIs(t, err, werr.ErrLedgerUnavailable)

	tx := spend(t, reward.Output.Commit, b, testReward)
	err = l.PostTx(ctx, tx, false)
	require.ErrorIs(t, err, werr.ErrLedgerUnavailable)
	require.Empty(t, l.PostedTxs())

	l.SetOffline(nil)
	require.NoError(t, l.PostTx(ctx, tx, false))
}
