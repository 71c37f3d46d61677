// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2015 The Decred developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear blinding factors, nonces and
// seeds from memory once a negotiation round no longer needs them.
package zero

import "github.com/decred/dcrd/dcrec/secp256k1/v4"

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear seed material from memory.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// Blinding factors and secret nonces are stored in this form.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}

// Scalar clears a secret scalar in place.
func Scalar(s *secp256k1.ModNScalar) {
	s.Zero()
}

// Scalars clears every scalar in the list.
func Scalars(ss ...*secp256k1.ModNScalar) {
	for _, s := range ss {
		if s != nil {
			s.Zero()
		}
	}
}
