// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commit

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/internal/zero"
)

// BlindingFactorSize is the size of a serialized blinding factor.
const BlindingFactorSize = 32

// ErrBlindOverflow is returned when a serialized blinding factor is not
// less than the curve order.
var ErrBlindOverflow = errors.New("blinding factor overflows curve order")

// BlindingFactor is a secret scalar modulo the curve order, serialized big
// endian. Transaction offsets share this representation.
type BlindingFactor [BlindingFactorSize]byte

// RandomBlindingFactor draws a non-zero blinding factor from r. A nil
// reader uses crypto/rand.
func RandomBlindingFactor(r io.Reader) (BlindingFactor, error) {
	s, err := RandomScalar(r)
	if err != nil {
		return BlindingFactor{}, err
	}
	defer s.Zero()
	return FromScalar(&s), nil
}

// RandomScalar draws a non-zero scalar from r. A nil reader uses
// crypto/rand.
func RandomScalar(r io.Reader) (secp256k1.ModNScalar, error) {
	if r == nil {
		r = rand.Reader
	}

	var (
		buf [32]byte
		s   secp256k1.ModNScalar
	)
	defer zero.Bytea32(&buf)
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return s, fmt.Errorf("read randomness: %w", err)
		}
		if overflow := s.SetByteSlice(buf[:]); overflow || s.IsZero() {
			continue
		}
		return s, nil
	}
}

// FromScalar serializes s.
func FromScalar(s *secp256k1.ModNScalar) BlindingFactor {
	return BlindingFactor(s.Bytes())
}

// Scalar decodes the blinding factor. The caller should zero the result
// once done.
func (b BlindingFactor) Scalar() (secp256k1.ModNScalar, error) {
	return b.scalar()
}

func (b BlindingFactor) scalar() (secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b[:]); overflow {
		return s, ErrBlindOverflow
	}
	return s, nil
}

// IsZero reports whether the blinding factor is zero.
func (b BlindingFactor) IsZero() bool {
	return b == BlindingFactor{}
}

// PublicKey returns b*G. It fails for a zero blinding factor.
func (b BlindingFactor) PublicKey() (*secp256k1.PublicKey, error) {
	s, err := b.scalar()
	if err != nil {
		return nil, err
	}
	defer s.Zero()
	if s.IsZero() {
		return nil, ErrInfinity
	}
	return secp256k1.NewPrivateKey(&s).PubKey(), nil
}

// Zero clears the blinding factor.
func (b *BlindingFactor) Zero() {
	zero.Bytea32((*[32]byte)(b))
}

// String returns the blinding factor as hex.
func (b BlindingFactor) String() string {
	return hex.EncodeToString(b[:])
}

// MarshalText encodes the blinding factor as hex.
func (b BlindingFactor) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a hex blinding factor.
func (b *BlindingFactor) UnmarshalText(text []byte) error {
	var tmp BlindingFactor
	if err := decodeFixedHex(tmp[:], text); err != nil {
		return fmt.Errorf("blinding factor: %w", err)
	}
	if _, err := tmp.scalar(); err != nil {
		return err
	}
	*b = tmp
	return nil
}

// BlindSum accumulates blinding factors to add and subtract. The result of
// Sum balances the commitments built from the same factors.
type BlindSum struct {
	positive []BlindingFactor
	negative []BlindingFactor
}

// NewBlindSum returns an empty sum.
func NewBlindSum() *BlindSum {
	return &BlindSum{}
}

// Add queues b to be added.
func (s *BlindSum) Add(b BlindingFactor) *BlindSum {
	s.positive = append(s.positive, b)
	return s
}

// Sub queues b to be subtracted.
func (s *BlindSum) Sub(b BlindingFactor) *BlindSum {
	s.negative = append(s.negative, b)
	return s
}

// Sum returns the total modulo the curve order and clears the queued
// factors.
func (s *BlindSum) Sum() (BlindingFactor, error) {
	defer s.clear()

	var total secp256k1.ModNScalar
	defer total.Zero()

	for _, b := range s.positive {
		v, err := b.scalar()
		if err != nil {
			return BlindingFactor{}, err
		}
		total.Add(&v)
		v.Zero()
	}
	for _, b := range s.negative {
		v, err := b.scalar()
		if err != nil {
			return BlindingFactor{}, err
		}
		v.Negate()
		total.Add(&v)
		v.Zero()
	}
	return FromScalar(&total), nil
}

func (s *BlindSum) clear() {
	for i := range s.positive {
		s.positive[i].Zero()
	}
	for i := range s.negative {
		s.negative[i].Zero()
	}
	s.positive, s.negative = nil, nil
}
