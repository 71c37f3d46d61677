// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/stretchr/testify/require"
)

func testKeychain(t *testing.T, seedByte byte) *ExtKeychain {
	t.Helper()

	seed := bytes.Repeat([]byte{seedByte}, 32)
	kc, err := NewExtKeychain(seed, &chaincfg.SimNetParams)
	require.NoError(t, err)
	return kc
}

// TestDeriveDeterministic checks that keys depend only on the seed and the
// path.
func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	a, b := testKeychain(t, 1), testKeychain(t, 1)
	other := testKeychain(t, 2)

	id := OutputKeyID(0, 7)
	ka, err := a.DeriveKey(id)
	require.NoError(t, err)
	kb, err := b.DeriveKey(id)
	require.NoError(t, err)
	require.Equal(t, ka, kb)

	ko, err := other.DeriveKey(id)
	require.NoError(t, err)
	require.NotEqual(t, ka, ko)

	next, err := a.DeriveKey(OutputKeyID(0, 8))
	require.NoError(t, err)
	require.NotEqual(t, ka, next)

	acct, err := a.DeriveKey(OutputKeyID(1, 7))
	require.NoError(t, err)
	require.NotEqual(t, ka, acct)
}

// TestCommitAndProve checks that keychain commitments use the derived
// blinding factor and carry valid range proofs.
func TestCommitAndProve(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 3)
	id := OutputKeyID(0, 1)

	c, err := kc.Commit(6_000_000_000, id)
	require.NoError(t, err)

	blind, err := kc.DeriveKey(id)
	require.NoError(t, err)
	want, err := commit.Commit(6_000_000_000, blind)
	require.NoError(t, err)
	require.Equal(t, want, c)

	proof, err := kc.RangeProof(6_000_000_000, id)
	require.NoError(t, err)
	require.NoError(t, commit.VerifyRange(c, proof))
}

// TestNonces checks that nonces are fresh.
func TestNonces(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 4)
	n1, err := kc.NewSecretNonce()
	require.NoError(t, err)
	n2, err := kc.NewSecretNonce()
	require.NoError(t, err)
	require.NotEqual(t, n1, n2)
	require.False(t, n1.IsZero())
}

// TestIdentifier checks the identifier layout and text form.
func TestIdentifier(t *testing.T) {
	t.Parallel()

	id := OutputKeyID(2, 300)
	require.Equal(t, uint8(3), id.Depth())
	require.Equal(t, [MaxDepth]uint32{2, 0, 300, 0}, id.Path())

	text, err := id.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "0300000002000000000000012c00000000", string(text))

	var decoded Identifier
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, id, decoded)

	require.Error(t, decoded.UnmarshalText([]byte("0500")))
	require.Error(t, decoded.UnmarshalText(
		[]byte("0900000002000000000000012c00000000")))
}
