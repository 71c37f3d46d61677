// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package commit implements the value arithmetic of confidential
// transactions: Pedersen commitments C = r*G + v*H over secp256k1, sums of
// commitments and of blinding factors, and range proofs over committed
// values.
//
// A commitment is serialized in 33 bytes: a prefix of 0x08 or 0x09 (for an
// even or odd Y coordinate) followed by the big-endian X coordinate. The
// point at infinity is the all-zero encoding.
package commit

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"
)

const (
	// CommitmentSize is the size of a serialized commitment.
	CommitmentSize = 33

	// generatorSeed is hashed to find the value generator H. Nobody knows
	// the discrete log of the resulting point relative to G.
	generatorSeed = "forest-wallet/pedersen/value-generator"

	commitPrefixEven = 0x08
	commitPrefixOdd  = 0x09
)

var (
	// ErrInvalidCommitment is returned when a serialized commitment does
	// not decode to a point on the curve.
	ErrInvalidCommitment = errors.New("invalid commitment")

	// ErrInfinity is returned when an operation produces the point at
	// infinity where a public key is required.
	ErrInfinity = errors.New("point at infinity")
)

// generatorH is the value generator.
var generatorH = deriveGenerator(generatorSeed)

// deriveGenerator hashes seed with an increasing counter until the digest
// is the X coordinate of a curve point, and returns the point with even Y.
func deriveGenerator(seed string) secp256k1.JacobianPoint {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		digest := blake2b.Sum256(append([]byte(seed), ctr[:]...))

		var x, y secp256k1.FieldVal
		if overflow := x.SetByteSlice(digest[:]); overflow {
			continue
		}
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}

		var p secp256k1.JacobianPoint
		p.X.Set(&x)
		p.Y.Set(&y)
		p.Z.SetInt(1)
		return p
	}
}

// Commitment is a serialized Pedersen commitment.
type Commitment [CommitmentSize]byte

// Commit returns value*H + blind*G.
func Commit(value uint64, blind BlindingFactor) (Commitment, error) {
	r, err := blind.scalar()
	if err != nil {
		return Commitment{}, err
	}
	defer r.Zero()

	var rG, vH, sum secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&r, &rG)
	valueMult(value, &vH)
	secp256k1.AddNonConst(&rG, &vH, &sum)

	return FromPoint(&sum), nil
}

// CommitValue returns value*H, a commitment with a zero blinding factor.
// Fees are committed to this way.
func CommitValue(value uint64) Commitment {
	var vH secp256k1.JacobianPoint
	valueMult(value, &vH)
	return FromPoint(&vH)
}

// CommitBlind returns blind*G, a commitment to a zero value. The
// transaction offset is committed to this way.
func CommitBlind(blind BlindingFactor) (Commitment, error) {
	r, err := blind.scalar()
	if err != nil {
		return Commitment{}, err
	}
	defer r.Zero()

	var rG secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&r, &rG)
	return FromPoint(&rG), nil
}

// valueMult sets result to value*H.
func valueMult(value uint64, result *secp256k1.JacobianPoint) {
	var v secp256k1.ModNScalar
	setUint64(&v, value)
	secp256k1.ScalarMultNonConst(&v, &generatorH, result)
}

// setUint64 sets s to the given value.
func setUint64(s *secp256k1.ModNScalar, value uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], value)
	s.SetByteSlice(b[:])
}

// Sum returns the sum of the positive commitments minus the sum of the
// negative ones.
func Sum(positive, negative []Commitment) (Commitment, error) {
	var total secp256k1.JacobianPoint
	for _, c := range positive {
		p, err := c.Point()
		if err != nil {
			return Commitment{}, err
		}
		addPoint(&total, &p)
	}
	for _, c := range negative {
		p, err := c.Point()
		if err != nil {
			return Commitment{}, err
		}
		negatePoint(&p)
		addPoint(&total, &p)
	}
	return FromPoint(&total), nil
}

// addPoint adds p to acc in place.
func addPoint(acc, p *secp256k1.JacobianPoint) {
	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(acc, p, &sum)
	acc.Set(&sum)
}

// isInfinity reports whether p is the point at infinity.
func isInfinity(p *secp256k1.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}

// negatePoint negates p in place.
func negatePoint(p *secp256k1.JacobianPoint) {
	if isInfinity(p) {
		return
	}
	p.ToAffine()
	p.Y.Negate(1).Normalize()
}

// FromPoint serializes p as a commitment.
func FromPoint(p *secp256k1.JacobianPoint) Commitment {
	var c Commitment
	if isInfinity(p) {
		return c
	}

	var affine secp256k1.JacobianPoint
	affine.Set(p)
	affine.ToAffine()
	affine.X.Normalize()
	affine.Y.Normalize()

	c[0] = commitPrefixEven
	if affine.Y.IsOdd() {
		c[0] = commitPrefixOdd
	}
	affine.X.PutBytesUnchecked(c[1:])
	return c
}

// FromPublicKey converts a public key into the commitment to the same
// point. Kernel excesses are stored in this form.
func FromPublicKey(pub *secp256k1.PublicKey) Commitment {
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return FromPoint(&p)
}

// Point decodes the commitment into a curve point.
func (c Commitment) Point() (secp256k1.JacobianPoint, error) {
	var p secp256k1.JacobianPoint
	if c.IsZero() {
		return p, nil
	}

	var odd bool
	switch c[0] {
	case commitPrefixEven:
	case commitPrefixOdd:
		odd = true
	default:
		return p, fmt.Errorf("%w: prefix %#x", ErrInvalidCommitment, c[0])
	}

	if overflow := p.X.SetByteSlice(c[1:]); overflow {
		return p, fmt.Errorf("%w: x overflows field", ErrInvalidCommitment)
	}
	if !secp256k1.DecompressY(&p.X, odd, &p.Y) {
		return p, fmt.Errorf("%w: x not on curve", ErrInvalidCommitment)
	}
	p.Y.Normalize()
	p.Z.SetInt(1)
	return p, nil
}

// PublicKey interprets the commitment as a public key. It fails for the
// point at infinity.
func (c Commitment) PublicKey() (*secp256k1.PublicKey, error) {
	if c.IsZero() {
		return nil, ErrInfinity
	}
	p, err := c.Point()
	if err != nil {
		return nil, err
	}
	return secp256k1.NewPublicKey(&p.X, &p.Y), nil
}

// IsZero reports whether c encodes the point at infinity.
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// String returns the commitment as a hex string.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// MarshalText encodes the commitment as hex.
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a hex commitment and checks that it is a point on
// the curve.
func (c *Commitment) UnmarshalText(text []byte) error {
	if err := decodeFixedHex(c[:], text); err != nil {
		return fmt.Errorf("commitment: %w", err)
	}
	if _, err := c.Point(); err != nil {
		return err
	}
	return nil
}

// ParseCommitment decodes a hex commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	err := c.UnmarshalText([]byte(s))
	return c, err
}

// decodeFixedHex decodes text into dst, requiring an exact length.
func decodeFixedHex(dst, text []byte) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("expected %d hex bytes, got %d characters",
			len(dst), len(text))
	}
	_, err := hex.Decode(dst, text)
	return err
}
