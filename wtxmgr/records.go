// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"
	"time"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/google/uuid"
)

// OutputStatus is where an owned output is in its lifecycle.
type OutputStatus uint8

const (
	// Unconfirmed outputs were created by a negotiation and are not yet on
	// chain.
	Unconfirmed OutputStatus = iota

	// Unspent outputs are on chain and free for selection.
	Unspent

	// Locked outputs are reserved as inputs of a negotiation.
	Locked

	// Spent outputs were consumed by a transaction seen on chain.
	Spent
)

var outputStatusStrings = map[OutputStatus]string{
	Unconfirmed: "Unconfirmed",
	Unspent:     "Unspent",
	Locked:      "Locked",
	Spent:       "Spent",
}

// String returns the status name.
func (s OutputStatus) String() string {
	if str, ok := outputStatusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("OutputStatus(%d)", uint8(s))
}

// MarshalText encodes the status name.
func (s OutputStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *OutputStatus) UnmarshalText(text []byte) error {
	for k, v := range outputStatusStrings {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown output status %q", text)
}

// OutputRecord is an output owned by the wallet.
type OutputRecord struct {
	Commit     commit.Commitment   `json:"commit"`
	KeyID      keychain.Identifier `json:"key_id"`
	Value      uint64              `json:"value,string"`
	Status     OutputStatus        `json:"status"`
	Height     uint64              `json:"height,string"`
	LockHeight uint64              `json:"lock_height,string"`
	IsCoinbase bool                `json:"is_coinbase"`

	// TxLogID is the log entry of the negotiation that created the output,
	// if any.
	TxLogID uint32 `json:"tx_log_entry"`

	// LockID is the log entry of the negotiation holding the lock. Zero
	// when the output is not locked.
	LockID uint32 `json:"lock_id"`
}

// IsSpendable reports whether the output may be selected at height with at
// least minConf confirmations.
func (o *OutputRecord) IsSpendable(height, minConf uint64) bool {
	if o.Status != Unspent {
		return false
	}
	if o.IsCoinbase && height < o.LockHeight {
		return false
	}
	if minConf == 0 {
		return true
	}
	return o.Height+minConf <= height+1
}

// TxLogType classifies a log entry.
type TxLogType uint8

const (
	// TxReceived is a negotiation in which the wallet receives funds.
	TxReceived TxLogType = iota

	// TxSent is a negotiation in which the wallet pays.
	TxSent

	// ConfirmedCoinbase is a block reward paid to the wallet.
	ConfirmedCoinbase

	// TxReceivedCancelled is a cancelled receive.
	TxReceivedCancelled

	// TxSentCancelled is a cancelled send.
	TxSentCancelled
)

var txLogTypeStrings = map[TxLogType]string{
	TxReceived:          "TxReceived",
	TxSent:              "TxSent",
	ConfirmedCoinbase:   "ConfirmedCoinbase",
	TxReceivedCancelled: "TxReceivedCancelled",
	TxSentCancelled:     "TxSentCancelled",
}

// String returns the type name.
func (t TxLogType) String() string {
	if str, ok := txLogTypeStrings[t]; ok {
		return str
	}
	return fmt.Sprintf("TxLogType(%d)", uint8(t))
}

// MarshalText encodes the type name.
func (t TxLogType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a type name.
func (t *TxLogType) UnmarshalText(text []byte) error {
	for k, v := range txLogTypeStrings {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown log entry type %q", text)
}

// Cancelled returns the cancelled counterpart of t.
func (t TxLogType) Cancelled() TxLogType {
	switch t {
	case TxSent:
		return TxSentCancelled
	case TxReceived:
		return TxReceivedCancelled
	default:
		return t
	}
}

// TxLogEntry records one negotiation or block reward.
type TxLogEntry struct {
	ID             uint32      `json:"id"`
	SlateID        uuid.UUID   `json:"tx_slate_id"`
	Type           TxLogType   `json:"tx_type"`
	State          slate.State `json:"state"`
	ParticipantID  uint64      `json:"participant_id,string"`
	CreationTS     time.Time   `json:"creation_ts"`
	ConfirmationTS *time.Time  `json:"confirmation_ts"`
	Confirmed      bool        `json:"confirmed"`
	AmountCredited uint64      `json:"amount_credited,string"`
	AmountDebited  uint64      `json:"amount_debited,string"`
	NumInputs      uint32      `json:"num_inputs"`
	NumOutputs     uint32      `json:"num_outputs"`
	Fee            uint64      `json:"fee,string"`

	// KernelExcess is set once the kernel is aggregated.
	KernelExcess commit.Commitment `json:"kernel_excess"`

	// StoredTx reports whether the finalized transaction is stored.
	StoredTx bool `json:"stored_tx"`
}

// IsCancelled reports whether the entry was cancelled.
func (e *TxLogEntry) IsCancelled() bool {
	return e.Type == TxSentCancelled || e.Type == TxReceivedCancelled ||
		e.State == slate.StateCancelled
}

// SetState moves the entry to next, failing if the negotiation state
// machine does not allow it.
func (e *TxLogEntry) SetState(next slate.State) error {
	if !e.State.CanTransition(next) {
		return fmt.Errorf("negotiation %v cannot move from %v to %v",
			e.SlateID, e.State, next)
	}
	e.State = next
	return nil
}

// Summary totals the wallet's outputs by status.
type Summary struct {
	LastConfirmedHeight  uint64 `json:"last_confirmed_height,string"`
	MinimumConfirmations uint64 `json:"minimum_confirmations,string"`
	Total                uint64 `json:"total,string"`
	AwaitingConfirmation uint64 `json:"amount_awaiting_confirmation,string"`
	Immature             uint64 `json:"amount_immature,string"`
	CurrentlySpendable   uint64 `json:"amount_currently_spendable,string"`
	Locked               uint64 `json:"amount_locked,string"`
}

// Summarize totals outputs as seen at height.
func Summarize(outputs []OutputRecord, height, minConf uint64) Summary {
	sum := Summary{
		LastConfirmedHeight:  height,
		MinimumConfirmations: minConf,
	}
	for i := range outputs {
		o := &outputs[i]
		switch o.Status {
		case Unconfirmed:
			sum.AwaitingConfirmation += o.Value
		case Locked:
			sum.Locked += o.Value
		case Unspent:
			switch {
			case o.IsCoinbase && height < o.LockHeight:
				sum.Immature += o.Value
			case o.IsSpendable(height, minConf):
				sum.CurrentlySpendable += o.Value
			default:
				sum.AwaitingConfirmation += o.Value
			}
		default:
			continue
		}
		if o.Status != Locked {
			sum.Total += o.Value
		}
	}
	return sum
}
