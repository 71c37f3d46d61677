// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/stretchr/testify/require"
)

// TestTxFee checks the weight based fee rule.
func TestTxFee(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name                     string
		inputs, outputs, kernels int
		want                     uint64
	}{
		{name: "send with change", inputs: 1, outputs: 2, kernels: 1,
			want: 8_000_000},
		{name: "many inputs floor", inputs: 10, outputs: 1, kernels: 1,
			want: 1_000_000},
		{name: "coinbase shape", inputs: 0, outputs: 1, kernels: 1,
			want: 5_000_000},
		{name: "two in two out", inputs: 2, outputs: 2, kernels: 1,
			want: 7_000_000},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := TxFee(tc.inputs, tc.outputs, tc.kernels, 1_000_000)
			require.Equal(t, tc.want, got)
		})
	}
}

// TestKernelMsg checks which kernel fields the signature message covers.
func TestKernelMsg(t *testing.T) {
	t.Parallel()

	plain := TxKernel{Features: KernelPlain, Fee: 8_000_000}
	higherFee := TxKernel{Features: KernelPlain, Fee: 9_000_000}
	require.NotEqual(t, plain.MsgToSign(), higherFee.MsgToSign())

	// Lock height only matters for height locked kernels.
	plainLocked := TxKernel{Features: KernelPlain, Fee: 8_000_000,
		LockHeight: 10}
	require.Equal(t, plain.MsgToSign(), plainLocked.MsgToSign())

	hl := TxKernel{Features: KernelHeightLocked, Fee: 8_000_000,
		LockHeight: 10}
	hl2 := TxKernel{Features: KernelHeightLocked, Fee: 8_000_000,
		LockHeight: 11}
	require.NotEqual(t, hl.MsgToSign(), hl2.MsgToSign())

	cb := TxKernel{Features: KernelCoinbase, Fee: 5}
	cb2 := TxKernel{Features: KernelCoinbase}
	require.Equal(t, cb.MsgToSign(), cb2.MsgToSign())
}

type testCoin struct {
	value uint64
	blind commit.BlindingFactor
}

func newCoin(t *testing.T, value uint64) testCoin {
	t.Helper()

	b, err := commit.RandomBlindingFactor(nil)
	require.NoError(t, err)
	return testCoin{value: value, blind: b}
}

// buildTx assembles a signed single kernel transaction spending ins into
// outs.
func buildTx(t *testing.T, ins, outs []testCoin, fee uint64) *Transaction {
	t.Helper()

	tx := NewTransaction(KernelPlain)
	tx.Body.Kernels[0].Fee = fee

	offset, err := commit.RandomBlindingFactor(nil)
	require.NoError(t, err)
	tx.Offset = offset

	sum := commit.NewBlindSum()
	for _, in := range ins {
		c, err := commit.Commit(in.value, in.blind)
		require.NoError(t, err)
		tx.AddInput(OutputPlain, c)
		sum.Sub(in.blind)
	}
	for _, out := range outs {
		c, err := commit.Commit(out.value, out.blind)
		require.NoError(t, err)
		proof, err := commit.ProveRange(out.value, out.blind, nil)
		require.NoError(t, err)
		tx.AddOutput(Output{Features: OutputPlain, Commit: c,
			Proof: proof})
		sum.Add(out.blind)
	}
	sum.Sub(offset)
	excess, err := sum.Sum()
	require.NoError(t, err)

	pub, err := excess.PublicKey()
	require.NoError(t, err)
	key, err := excess.Scalar()
	require.NoError(t, err)

	k := tx.Kernel()
	k.Excess = commit.FromPublicKey(pub)
	msg := k.MsgToSign()
	k.ExcessSig, err = aggsig.Sign(&key, msg[:])
	require.NoError(t, err)

	tx.Sort()
	return tx
}

// TestValidate checks a balanced transaction and the failures of
// unbalanced or tampered ones.
func TestValidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ins := []testCoin{newCoin(t, 60_000_000_000)}
	outs := []testCoin{
		newCoin(t, 6_000_000_000),
		newCoin(t, 60_000_000_000-6_000_000_000-8_000_000),
	}
	tx := buildTx(t, ins, outs, 8_000_000)
	require.NoError(t, tx.Validate(ctx), spew.Sdump(tx))

	// A different fee unbalances the sum.
	err := tx.VerifyKernelSums(int64(tx.Fee()) + 1)
	require.ErrorIs(t, err, werr.ErrKernelSumMismatch)

	// Changing the fee also breaks the kernel signature.
	bad := tx.Copy()
	bad.Kernel().Fee++
	require.ErrorIs(t, bad.Validate(ctx), werr.ErrInvalidTransaction)

	// Unsorted outputs are rejected.
	bad = tx.Copy()
	bad.Body.Outputs[0], bad.Body.Outputs[1] =
		bad.Body.Outputs[1], bad.Body.Outputs[0]
	require.ErrorIs(t, bad.Validate(ctx), werr.ErrInvalidTransaction)

	// A broken range proof is found.
	bad = tx.Copy()
	bad.Body.Outputs[1].Proof[40] ^= 0x01
	require.ErrorIs(t, bad.Validate(ctx), werr.ErrInvalidTransaction)

	// A body with no kernels is rejected.
	bad = tx.Copy()
	bad.Body.Kernels = nil
	require.ErrorIs(t, bad.Validate(ctx), werr.ErrInvalidTransaction)
}

// TestSerialize checks the binary and JSON encodings against each other.
func TestSerialize(t *testing.T) {
	t.Parallel()

	tx := buildTx(t, []testCoin{newCoin(t, 10), newCoin(t, 20)},
		[]testCoin{newCoin(t, 25)}, 5)

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	var decoded Transaction
	require.NoError(t, decoded.Deserialize(bytes.NewReader(buf.Bytes())))
	require.Equal(t, tx, &decoded)
	require.Equal(t, tx.Hash(), decoded.Hash())

	js, err := json.Marshal(tx)
	require.NoError(t, err)
	var fromJSON Transaction
	require.NoError(t, json.Unmarshal(js, &fromJSON))
	require.Equal(t, tx, &fromJSON)

	// Truncated input is an error.
	var short Transaction
	require.Error(t, short.Deserialize(bytes.NewReader(buf.Bytes()[:50])))
}
