// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package participant

import (
	"testing"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestContextEncoding checks that a stored context decodes to the same
// secrets and bookkeeping.
func TestContextEncoding(t *testing.T) {
	t.Parallel()

	key, err := commit.RandomBlindingFactor(nil)
	require.NoError(t, err)
	nonce, err := commit.RandomBlindingFactor(nil)
	require.NoError(t, err)
	in, err := commit.Commit(60_000_000_000, key)
	require.NoError(t, err)

	testCases := []struct {
		name string
		ctx  *Context
	}{
		{
			name: "sender with inputs and change",
			ctx: &Context{
				SlateID:       uuid.New(),
				ParticipantID: 0,
				Role:          RoleSender,
				SecKey:        key,
				SecNonce:      nonce,
				Inputs:        []commit.Commitment{in},
				Outputs: []keychain.Identifier{
					keychain.OutputKeyID(0, 4),
				},
				Amount: 6_000_000_000,
				Fee:    8_000_000,
			},
		},
		{
			name: "receiver without inputs",
			ctx: &Context{
				SlateID:       uuid.New(),
				ParticipantID: 1,
				Role:          RoleReceiver,
				SecKey:        key,
				SecNonce:      nonce,
				Inputs:        []commit.Commitment{},
				Outputs: []keychain.Identifier{
					keychain.OutputKeyID(0, 1),
				},
				Amount: 6_000_000_000,
			},
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := tc.ctx.Serialize()
			require.NoError(t, err)

			decoded, err := Deserialize(b)
			require.NoError(t, err)
			require.Equal(t, tc.ctx, decoded)

			pub, err := decoded.PublicBlindExcess()
			require.NoError(t, err)
			want, err := key.PublicKey()
			require.NoError(t, err)
			require.True(t, want.IsEqual(pub))
		})
	}
}

// TestContextZero checks that secrets are cleared.
func TestContextZero(t *testing.T) {
	t.Parallel()

	key, err := commit.RandomBlindingFactor(nil)
	require.NoError(t, err)
	ctx := &Context{SecKey: key, SecNonce: key}
	ctx.Zero()
	require.True(t, ctx.SecKey.IsZero())
	require.True(t, ctx.SecNonce.IsZero())

	_, err = ctx.PublicNonce()
	require.Error(t, err)
}

// TestRole checks role helpers.
func TestRole(t *testing.T) {
	t.Parallel()

	require.True(t, RoleSender.IsInitiator())
	require.True(t, RolePayee.IsInitiator())
	require.False(t, RoleReceiver.IsInitiator())
	require.False(t, RolePayer.IsInitiator())
	require.Equal(t, "payer", RolePayer.String())
}
