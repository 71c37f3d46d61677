// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package aggsig

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

type signer struct {
	key   secp256k1.ModNScalar
	nonce secp256k1.ModNScalar
}

func newSigner(t *testing.T) *signer {
	t.Helper()

	k, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	n, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return &signer{key: k.Key, nonce: n.Key}
}

func (s *signer) pubKey() *secp256k1.PublicKey {
	return secp256k1.NewPrivateKey(&s.key).PubKey()
}

func (s *signer) pubNonce() *secp256k1.PublicKey {
	return secp256k1.NewPrivateKey(&s.nonce).PubKey()
}

// sign runs a full round for the given signers and returns their
// contributions.
func sign(t *testing.T, signers []*signer, msg []byte) []Contribution {
	t.Helper()

	contribs := make([]Contribution, len(signers))
	for i, s := range signers {
		contribs[i] = Contribution{
			ID:           uint64(i),
			PublicNonce:  s.pubNonce(),
			PublicExcess: s.pubKey(),
		}
	}
	nonceSum, keySum, err := Sums(contribs)
	require.NoError(t, err)

	for i, s := range signers {
		sig, err := CalculatePartialSig(
			&s.key, &s.nonce, nonceSum, keySum, msg,
		)
		require.NoError(t, err)
		require.NoError(t, VerifyPartialSig(
			sig, contribs[i].PublicNonce, contribs[i].PublicExcess,
			nonceSum, keySum, msg,
		))
		contribs[i].PartSig = sig
	}
	return contribs
}

// TestAggregateSignatures checks aggregation for several group sizes. With
// random nonces roughly half the runs hit the odd nonce sum case.
func TestAggregateSignatures(t *testing.T) {
	t.Parallel()

	msg := blake2b.Sum256([]byte("kernel"))
	for n := 1; n <= 5; n++ {
		for run := 0; run < 4; run++ {
			signers := make([]*signer, n)
			for i := range signers {
				signers[i] = newSigner(t)
			}
			contribs := sign(t, signers, msg[:])

			agg, err := AggregateSignatures(contribs, msg[:])
			require.NoError(t, err)
			require.NoError(t, Verify(agg.Signature, agg.PubKeySum, msg[:]))

			other := blake2b.Sum256([]byte("other"))
			require.ErrorIs(t, Verify(agg.Signature, agg.PubKeySum,
				other[:]), ErrInvalidSignature)
		}
	}
}

// TestAggregateNamesOffender checks that a bad partial signature is
// reported with its participant id.
func TestAggregateNamesOffender(t *testing.T) {
	t.Parallel()

	msg := blake2b.Sum256([]byte("kernel"))
	signers := []*signer{newSigner(t), newSigner(t), newSigner(t)}
	contribs := sign(t, signers, msg[:])

	contribs[1].PartSig[63] ^= 0x01

	_, err := AggregateSignatures(contribs, msg[:])
	require.ErrorIs(t, err, werr.ErrInvalidPartialSignature)
	require.Equal(t, []uint64{1}, werr.Participants(err))

	// A missing signature is reported the same way.
	contribs = sign(t, signers, msg[:])
	contribs[2].PartSig = Signature{}
	_, err = AggregateSignatures(contribs, msg[:])
	require.ErrorIs(t, err, werr.ErrInvalidPartialSignature)
	require.Equal(t, []uint64{2}, werr.Participants(err))
}

// TestPartialSigWrongNonceSum checks that a partial signature made for a
// different set of participants is rejected.
func TestPartialSigWrongNonceSum(t *testing.T) {
	t.Parallel()

	msg := blake2b.Sum256([]byte("kernel"))
	a, b, c := newSigner(t), newSigner(t), newSigner(t)

	pair := sign(t, []*signer{a, b}, msg[:])
	triple := []Contribution{
		{ID: 0, PublicNonce: a.pubNonce(), PublicExcess: a.pubKey()},
		{ID: 1, PublicNonce: b.pubNonce(), PublicExcess: b.pubKey()},
		{ID: 2, PublicNonce: c.pubNonce(), PublicExcess: c.pubKey()},
	}
	nonceSum, keySum, err := Sums(triple)
	require.NoError(t, err)

	err = VerifyPartialSig(pair[0].PartSig, a.pubNonce(), a.pubKey(),
		nonceSum, keySum, msg[:])
	require.ErrorIs(t, err, ErrNonceMismatch)
}

// TestSingleSign checks the deterministic single signer scheme used for
// participant messages.
func TestSingleSign(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	msg := blake2b.Sum256([]byte("thanks for the coffee"))

	sig, err := Sign(&s.key, msg[:])
	require.NoError(t, err)
	require.NoError(t, Verify(sig, s.pubKey(), msg[:]))

	again, err := Sign(&s.key, msg[:])
	require.NoError(t, err)
	require.Equal(t, sig, again)

	other := newSigner(t)
	require.ErrorIs(t, Verify(sig, other.pubKey(), msg[:]),
		ErrInvalidSignature)

	text, err := sig.MarshalText()
	require.NoError(t, err)
	var decoded Signature
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, sig, decoded)
}
