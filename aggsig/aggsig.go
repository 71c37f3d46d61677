// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package aggsig implements the aggregated Schnorr signatures used on
// transaction kernels. Each signer holds a secret excess x_i and a secret
// nonce k_i. With R = sum(k_i*G) and P = sum(x_i*G), a partial signature is
//
//	s_i = k_i + e*x_i,  e = H(R.x || P || m)
//
// where every k_i is negated when R has an odd Y coordinate. The aggregate
// signature is (R.x, sum(s_i)) and verifies as a plain Schnorr signature on
// P. Every function here is pure.
package aggsig

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/internal/zero"
	"golang.org/x/crypto/blake2b"
)

// SignatureSize is the size of a serialized signature.
const SignatureSize = 64

var (
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNonceMismatch is returned when a partial signature was made for
	// a different aggregate nonce.
	ErrNonceMismatch = errors.New("partial signature nonce mismatch")

	// ErrInfinity is returned when keys or nonces sum to the point at
	// infinity.
	ErrInfinity = errors.New("point at infinity")
)

// Signature is the nonce X coordinate followed by the scalar s.
type Signature [SignatureSize]byte

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// String returns the signature as hex.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// MarshalText encodes the signature as hex.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a hex signature.
func (s *Signature) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != SignatureSize {
		return fmt.Errorf("signature: expected %d hex bytes, got %d "+
			"characters", SignatureSize, len(text))
	}
	_, err := hex.Decode(s[:], text)
	return err
}

// scalar returns the s part of the signature.
func (s Signature) scalar() (secp256k1.ModNScalar, error) {
	var v secp256k1.ModNScalar
	if overflow := v.SetByteSlice(s[32:]); overflow {
		return v, fmt.Errorf("%w: s overflows curve order",
			ErrInvalidSignature)
	}
	return v, nil
}

// SumPublicKeys adds the given public keys.
func SumPublicKeys(keys []*secp256k1.PublicKey) (*secp256k1.PublicKey, error) {
	var sum secp256k1.JacobianPoint
	for _, k := range keys {
		var p, next secp256k1.JacobianPoint
		k.AsJacobian(&p)
		secp256k1.AddNonConst(&sum, &p, &next)
		sum.Set(&next)
	}
	return toPublicKey(&sum)
}

// toPublicKey converts p to an affine public key.
func toPublicKey(p *secp256k1.JacobianPoint) (*secp256k1.PublicKey, error) {
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return nil, ErrInfinity
	}
	p.ToAffine()
	return secp256k1.NewPublicKey(&p.X, &p.Y), nil
}

// hasOddY reports whether the key's Y coordinate is odd.
func hasOddY(k *secp256k1.PublicKey) bool {
	return k.SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd
}

// xBytes returns the key's X coordinate.
func xBytes(k *secp256k1.PublicKey) []byte {
	return k.SerializeCompressed()[1:]
}

// challenge computes e = H(R.x || P || m) reduced modulo the curve order.
func challenge(rx []byte, pubKey *secp256k1.PublicKey,
	msg []byte) secp256k1.ModNScalar {

	h, _ := blake2b.New256(nil)
	h.Write(rx)
	h.Write(pubKey.SerializeCompressed())
	h.Write(msg)

	var e secp256k1.ModNScalar
	e.SetByteSlice(h.Sum(nil))
	return e
}

// signWith computes k' + e*x for the nonce sum, where k' is k negated when
// the nonce sum has an odd Y.
func signWith(secKey, secNonce *secp256k1.ModNScalar, nonceSum,
	pubKeySum *secp256k1.PublicKey, msg []byte) Signature {

	var k secp256k1.ModNScalar
	k.Set(secNonce)
	defer k.Zero()
	if hasOddY(nonceSum) {
		k.Negate()
	}

	rx := xBytes(nonceSum)
	e := challenge(rx, pubKeySum, msg)

	var s secp256k1.ModNScalar
	s.Mul2(&e, secKey).Add(&k)

	var sig Signature
	copy(sig[:32], rx)
	sb := s.Bytes()
	copy(sig[32:], sb[:])
	return sig
}

// CalculatePartialSig signs msg with one participant's secret excess and
// nonce, against the sums of every participant's public nonce and public
// excess.
func CalculatePartialSig(secKey, secNonce *secp256k1.ModNScalar, nonceSum,
	pubKeySum *secp256k1.PublicKey, msg []byte) (Signature, error) {

	if secKey.IsZero() || secNonce.IsZero() {
		return Signature{}, errors.New("zero secret key or nonce")
	}
	return signWith(secKey, secNonce, nonceSum, pubKeySum, msg), nil
}

// VerifyPartialSig checks one participant's partial signature against its
// public nonce and public excess.
func VerifyPartialSig(sig Signature, pubNonce, pubKey, nonceSum,
	pubKeySum *secp256k1.PublicKey, msg []byte) error {

	rx := xBytes(nonceSum)
	if !bytes.Equal(sig[:32], rx) {
		return ErrNonceMismatch
	}

	s, err := sig.scalar()
	if err != nil {
		return err
	}
	e := challenge(rx, pubKeySum, msg)

	// s*G - e*P_i must be the participant's (possibly negated) nonce.
	got, err := sMinusEP(&s, &e, pubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var want secp256k1.JacobianPoint
	pubNonce.AsJacobian(&want)
	if hasOddY(nonceSum) {
		want.Y.Negate(1).Normalize()
	}
	wantKey := secp256k1.NewPublicKey(&want.X, &want.Y)

	if !got.IsEqual(wantKey) {
		return ErrInvalidSignature
	}
	return nil
}

// sMinusEP returns s*G - e*P.
func sMinusEP(s, e *secp256k1.ModNScalar,
	pub *secp256k1.PublicKey) (*secp256k1.PublicKey, error) {

	var sG, eP, p, sum secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &sG)

	var negE secp256k1.ModNScalar
	negE.NegateVal(e)
	pub.AsJacobian(&p)
	secp256k1.ScalarMultNonConst(&negE, &p, &eP)
	secp256k1.AddNonConst(&sG, &eP, &sum)

	return toPublicKey(&sum)
}

// AddSignatures sums partial signatures made against nonceSum.
func AddSignatures(sigs []Signature,
	nonceSum *secp256k1.PublicKey) (Signature, error) {

	rx := xBytes(nonceSum)

	var total secp256k1.ModNScalar
	for i, sig := range sigs {
		if !bytes.Equal(sig[:32], rx) {
			return Signature{}, fmt.Errorf("signature %d: %w", i,
				ErrNonceMismatch)
		}
		s, err := sig.scalar()
		if err != nil {
			return Signature{}, fmt.Errorf("signature %d: %w", i, err)
		}
		total.Add(&s)
	}

	var out Signature
	copy(out[:32], rx)
	tb := total.Bytes()
	copy(out[32:], tb[:])
	return out, nil
}

// Verify checks a complete signature, aggregate or single, on msg under
// pubKey.
func Verify(sig Signature, pubKey *secp256k1.PublicKey, msg []byte) error {
	var rx secp256k1.FieldVal
	if overflow := rx.SetByteSlice(sig[:32]); overflow {
		return fmt.Errorf("%w: r overflows field", ErrInvalidSignature)
	}
	s, err := sig.scalar()
	if err != nil {
		return err
	}
	e := challenge(sig[:32], pubKey, msg)

	r, err := sMinusEP(&s, &e, pubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if hasOddY(r) || !bytes.Equal(xBytes(r), sig[:32]) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces a single signer signature on msg with a nonce derived
// deterministically from the key and message.
func Sign(secKey *secp256k1.ModNScalar, msg []byte) (Signature, error) {
	if secKey.IsZero() {
		return Signature{}, errors.New("zero secret key")
	}

	keyBytes := secKey.Bytes()
	defer zero.Bytea32(&keyBytes)

	h, _ := blake2b.New256(keyBytes[:])
	h.Write(msg)

	var k secp256k1.ModNScalar
	defer k.Zero()
	k.SetByteSlice(h.Sum(nil))
	if k.IsZero() {
		return Signature{}, errors.New("zero nonce")
	}

	nonce := secp256k1.NewPrivateKey(&k).PubKey()
	pub := secp256k1.NewPrivateKey(secKey).PubKey()
	return signWith(secKey, &k, nonce, pub, msg), nil
}
