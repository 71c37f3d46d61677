// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commit

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"
)

// A range proof shows that a commitment hides a value in [0, 2^64) without
// revealing it. The value is split into bits, each bit gets its own
// commitment C_i = r_i*G + b_i*2^i*H with the r_i summing to the output's
// blinding factor, and each C_i carries a two member ring signature proving
// that either C_i or C_i - 2^i*H is a multiple of G.
//
// Layout per bit: C_i (33 bytes) || e_0 (32) || s_0 (32) || s_1 (32).
const (
	rangeProofBits = 64
	bitProofSize   = CommitmentSize + 3*32

	// RangeProofSize is the size of a serialized range proof.
	RangeProofSize = rangeProofBits * bitProofSize
)

// ErrInvalidRangeProof is returned when a range proof does not verify.
var ErrInvalidRangeProof = errors.New("invalid range proof")

// powersOfH holds 2^i*H for every bit position.
var powersOfH = func() [rangeProofBits]secp256k1.JacobianPoint {
	var powers [rangeProofBits]secp256k1.JacobianPoint
	powers[0].Set(&generatorH)
	for i := 1; i < rangeProofBits; i++ {
		secp256k1.DoubleNonConst(&powers[i-1], &powers[i])
		powers[i].ToAffine()
	}
	return powers
}()

// RangeProof is a serialized range proof.
type RangeProof []byte

// String returns the proof as hex.
func (p RangeProof) String() string {
	return hex.EncodeToString(p)
}

// MarshalText encodes the proof as hex.
func (p RangeProof) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a hex proof.
func (p *RangeProof) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("range proof: %w", err)
	}
	*p = b
	return nil
}

// ProveRange builds a range proof for the commitment to value under blind.
// Randomness is drawn from rand, or crypto/rand when nil.
func ProveRange(value uint64, blind BlindingFactor,
	rand io.Reader) (RangeProof, error) {

	r, err := blind.scalar()
	if err != nil {
		return nil, err
	}
	defer r.Zero()

	c, err := Commit(value, blind)
	if err != nil {
		return nil, err
	}

	proof := make(RangeProof, 0, RangeProofSize)

	// The last bit blind is whatever remains of r.
	var remaining secp256k1.ModNScalar
	remaining.Set(&r)
	defer remaining.Zero()

	for i := 0; i < rangeProofBits; i++ {
		var ri secp256k1.ModNScalar
		if i == rangeProofBits-1 {
			ri.Set(&remaining)
		} else {
			ri, err = RandomScalar(rand)
			if err != nil {
				return nil, err
			}
			var neg secp256k1.ModNScalar
			neg.NegateVal(&ri)
			remaining.Add(&neg)
		}

		bit := (value >> uint(i)) & 1
		bitProof, err := proveBit(c, i, bit == 1, &ri, rand)
		ri.Zero()
		if err != nil {
			return nil, err
		}
		proof = append(proof, bitProof...)
	}

	return proof, nil
}

// proveBit commits to one bit and signs the ring {C_i, C_i - 2^i*H}.
func proveBit(c Commitment, i int, set bool, ri *secp256k1.ModNScalar,
	rand io.Reader) ([]byte, error) {

	var ci secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(ri, &ci)
	if set {
		addPoint(&ci, &powersOfH[i])
	}
	bitCommit := FromPoint(&ci)

	ring := bitRing(&ci, i)
	msg := bitMessage(c, i, bitCommit)

	k, err := RandomScalar(rand)
	if err != nil {
		return nil, err
	}
	defer k.Zero()

	var kG secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &kG)

	// Known member index and the other one.
	known, other := 0, 1
	if set {
		known, other = 1, 0
	}

	var e, s [2]secp256k1.ModNScalar
	e[other] = ringChallenge(msg, &kG)

	s[other], err = RandomScalar(rand)
	if err != nil {
		return nil, err
	}
	rOther := ringNonce(&s[other], &e[other], &ring[other])
	e[known] = ringChallenge(msg, &rOther)

	// s_known = k + e_known * r_i
	s[known].Mul2(&e[known], ri).Add(&k)

	out := make([]byte, 0, bitProofSize)
	out = append(out, bitCommit[:]...)
	e0 := e[0].Bytes()
	s0 := s[0].Bytes()
	s1 := s[1].Bytes()
	out = append(out, e0[:]...)
	out = append(out, s0[:]...)
	out = append(out, s1[:]...)
	return out, nil
}

// VerifyRange checks that proof shows c commits to a value in [0, 2^64).
func VerifyRange(c Commitment, proof RangeProof) error {
	if len(proof) != RangeProofSize {
		return fmt.Errorf("%w: size %d", ErrInvalidRangeProof, len(proof))
	}

	var total secp256k1.JacobianPoint
	for i := 0; i < rangeProofBits; i++ {
		chunk := proof[i*bitProofSize : (i+1)*bitProofSize]

		var bitCommit Commitment
		copy(bitCommit[:], chunk[:CommitmentSize])
		ci, err := bitCommit.Point()
		if err != nil || bitCommit.IsZero() {
			return fmt.Errorf("%w: bit %d commitment", ErrInvalidRangeProof, i)
		}

		var e0, s0, s1 secp256k1.ModNScalar
		off := CommitmentSize
		if e0.SetByteSlice(chunk[off:off+32]) ||
			s0.SetByteSlice(chunk[off+32:off+64]) ||
			s1.SetByteSlice(chunk[off+64:off+96]) {

			return fmt.Errorf("%w: bit %d scalar overflow",
				ErrInvalidRangeProof, i)
		}

		ring := bitRing(&ci, i)
		msg := bitMessage(c, i, bitCommit)

		r0 := ringNonce(&s0, &e0, &ring[0])
		e1 := ringChallenge(msg, &r0)
		r1 := ringNonce(&s1, &e1, &ring[1])
		check := ringChallenge(msg, &r1)
		if !check.Equals(&e0) {
			return fmt.Errorf("%w: bit %d ring signature",
				ErrInvalidRangeProof, i)
		}

		addPoint(&total, &ci)
	}

	if FromPoint(&total) != c {
		return fmt.Errorf("%w: bit commitments do not sum to output",
			ErrInvalidRangeProof)
	}
	return nil
}

// bitRing returns {C_i, C_i - 2^i*H}.
func bitRing(ci *secp256k1.JacobianPoint, i int) [2]secp256k1.JacobianPoint {
	var ring [2]secp256k1.JacobianPoint
	ring[0].Set(ci)

	var negH secp256k1.JacobianPoint
	negH.Set(&powersOfH[i])
	negatePoint(&negH)
	secp256k1.AddNonConst(ci, &negH, &ring[1])
	return ring
}

// bitMessage binds a bit proof to its output commitment and position.
func bitMessage(c Commitment, i int, bitCommit Commitment) []byte {
	msg := make([]byte, 0, 2*CommitmentSize+1)
	msg = append(msg, c[:]...)
	msg = append(msg, byte(i))
	msg = append(msg, bitCommit[:]...)
	return msg
}

// ringNonce returns s*G - e*P.
func ringNonce(s, e *secp256k1.ModNScalar,
	p *secp256k1.JacobianPoint) secp256k1.JacobianPoint {

	var sG, eP, result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &sG)

	var negE secp256k1.ModNScalar
	negE.NegateVal(e)
	secp256k1.ScalarMultNonConst(&negE, p, &eP)
	secp256k1.AddNonConst(&sG, &eP, &result)
	return result
}

// ringChallenge hashes msg and the nonce point into a scalar.
func ringChallenge(msg []byte, r *secp256k1.JacobianPoint) secp256k1.ModNScalar {
	rc := FromPoint(r)

	h, _ := blake2b.New256(nil)
	h.Write(msg)
	h.Write(rc[:])

	var e secp256k1.ModNScalar
	e.SetByteSlice(h.Sum(nil))
	return e
}
