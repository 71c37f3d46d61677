// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from, to State
		allowed  bool
	}{
		{StateCreated, StateAwaitingContribution, true},
		{StateAwaitingContribution, StateReadyToAggregate, true},
		{StateReadyToAggregate, StateFinalized, true},
		{StateFinalized, StatePosted, true},
		{StateFinalized, StateCancelled, true},
		{StateAwaitingContribution, StateCancelled, true},
		{StatePosted, StateCancelled, false},
		{StateCancelled, StateFinalized, false},
		{StateFinalized, StateAwaitingContribution, false},
		{StateCreated, StatePosted, false},
		{StatePosted, StatePosted, true},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to),
			"%v -> %v", tc.from, tc.to)
	}
}

func TestStateText(t *testing.T) {
	t.Parallel()

	for s := StateCreated; s <= StateCancelled; s++ {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var got State
		require.NoError(t, got.UnmarshalText(text))
		require.Equal(t, s, got)
	}

	var s State
	require.Error(t, s.UnmarshalText([]byte("Lost")))
	require.Equal(t, "State(42)", State(42).String())
}
