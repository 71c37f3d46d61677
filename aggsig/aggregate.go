// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package aggsig

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/werr"
)

// Contribution is one participant's public share of a kernel signature.
type Contribution struct {
	ID           uint64
	PublicNonce  *secp256k1.PublicKey
	PublicExcess *secp256k1.PublicKey
	PartSig      Signature
}

// Aggregate is the combined kernel signature with the sums it was made
// against.
type Aggregate struct {
	Signature Signature
	NonceSum  *secp256k1.PublicKey
	PubKeySum *secp256k1.PublicKey
}

// Sums returns the aggregate public nonce and aggregate public excess of
// the contributions.
func Sums(contribs []Contribution) (*secp256k1.PublicKey,
	*secp256k1.PublicKey, error) {

	nonces := make([]*secp256k1.PublicKey, 0, len(contribs))
	excesses := make([]*secp256k1.PublicKey, 0, len(contribs))
	for _, c := range contribs {
		nonces = append(nonces, c.PublicNonce)
		excesses = append(excesses, c.PublicExcess)
	}

	nonceSum, err := SumPublicKeys(nonces)
	if err != nil {
		return nil, nil, err
	}
	pubKeySum, err := SumPublicKeys(excesses)
	if err != nil {
		return nil, nil, err
	}
	return nonceSum, pubKeySum, nil
}

// AggregateSignatures verifies every partial signature in contribs against
// the aggregate nonce and key, then sums them. The first invalid partial
// signature aborts with ErrInvalidPartialSignature naming its participant.
func AggregateSignatures(contribs []Contribution,
	msg []byte) (*Aggregate, error) {

	if len(contribs) == 0 {
		return nil, werr.New(werr.ErrParticipantCount,
			"no contributions to aggregate", nil)
	}

	nonceSum, pubKeySum, err := Sums(contribs)
	if err != nil {
		return nil, werr.New(werr.ErrInvalidSlate,
			"summing public data", err)
	}

	sigs := make([]Signature, 0, len(contribs))
	for _, c := range contribs {
		if c.PartSig.IsZero() {
			return nil, werr.ForParticipant(
				werr.ErrInvalidPartialSignature, c.ID,
				"missing partial signature", nil,
			)
		}

		err := VerifyPartialSig(
			c.PartSig, c.PublicNonce, c.PublicExcess, nonceSum,
			pubKeySum, msg,
		)
		if err != nil {
			return nil, werr.ForParticipant(
				werr.ErrInvalidPartialSignature, c.ID, "", err,
			)
		}
		sigs = append(sigs, c.PartSig)
	}

	sig, err := AddSignatures(sigs, nonceSum)
	if err != nil {
		return nil, werr.New(werr.ErrInvalidSlate,
			"adding partial signatures", err)
	}

	if err := Verify(sig, pubKeySum, msg); err != nil {
		return nil, werr.New(werr.ErrInvalidSlate,
			"aggregate signature", err)
	}

	return &Aggregate{
		Signature: sig,
		NonceSum:  nonceSum,
		PubKeySum: pubKeySum,
	}, nil
}
