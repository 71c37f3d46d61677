// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zero_test

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	. "github.com/forestblock/forest-wallet/internal/zero"
	"github.com/stretchr/testify/require"
)

func makeOneBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

func TestBytes(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 31, 32, 33, 64, 127, 128, 129, 512, 513} {
		b := makeOneBytes(n)
		Bytes(b)
		require.Equal(t, make([]byte, n), b, "n=%d", n)
	}
}

func TestBytea32(t *testing.T) {
	t.Parallel()

	var b [32]byte
	copy(b[:], makeOneBytes(32))
	Bytea32(&b)
	require.Equal(t, [32]byte{}, b)
}

func TestScalars(t *testing.T) {
	t.Parallel()

	var a, b secp256k1.ModNScalar
	a.SetInt(7)
	b.SetInt(11)

	Scalars(&a, nil, &b)
	require.True(t, a.IsZero())
	require.True(t, b.IsZero())

	b.SetInt(3)
	Scalar(&b)
	require.True(t, b.IsZero())
}
