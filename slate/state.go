// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import "fmt"

// State is the lifecycle stage of a negotiation.
type State uint8

const (
	// StateCreated is a slate with no contributions yet.
	StateCreated State = iota

	// StateAwaitingContribution is a slate waiting on participants.
	StateAwaitingContribution

	// StateReadyToAggregate is a slate carrying every participant's
	// public data.
	StateReadyToAggregate

	// StateFinalized is a slate with a signed kernel.
	StateFinalized

	// StatePosted is a finalized transaction handed to the ledger.
	StatePosted

	// StateCancelled is a negotiation abandoned before posting.
	StateCancelled
)

var stateStrings = map[State]string{
	StateCreated:              "Created",
	StateAwaitingContribution: "AwaitingContribution",
	StateReadyToAggregate:     "ReadyToAggregate",
	StateFinalized:            "Finalized",
	StatePosted:               "Posted",
	StateCancelled:            "Cancelled",
}

// String returns the state name.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for k, v := range stateStrings {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown negotiation state %q", text)
}

// CanTransition reports whether a negotiation may move from s to next.
// Staying in a state is always allowed.
func (s State) CanTransition(next State) bool {
	if s == next {
		return true
	}
	switch s {
	case StateCreated:
		return next == StateAwaitingContribution ||
			next == StateReadyToAggregate || next == StateCancelled
	case StateAwaitingContribution:
		return next == StateReadyToAggregate ||
			next == StateFinalized || next == StateCancelled
	case StateReadyToAggregate:
		return next == StateFinalized || next == StatePosted ||
			next == StateCancelled
	case StateFinalized:
		return next == StatePosted || next == StateCancelled
	default:
		return false
	}
}

// IsPreFinal reports whether the negotiation can still change.
func (s State) IsPreFinal() bool {
	return s != StatePosted && s != StateCancelled
}
