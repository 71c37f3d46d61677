// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ownerrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/wallet"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// request is a JSON-RPC 2.0 request.  Params are kept raw since a method may
// receive them either by position or by name.
type request struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// parseParams decodes raw into dst, a pointer to a struct whose json tags
// are the parameter names.  A params array is matched to names by position
// and a params object by name.  Missing or null params leave dst unchanged.
func parseParams(raw json.RawMessage, names []string, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '{':
		if err := json.Unmarshal(raw, dst); err != nil {
			return ParseError{err}
		}
		return nil

	case '[':
		var positional []json.RawMessage
		if err := json.Unmarshal(raw, &positional); err != nil {
			return ParseError{err}
		}
		if len(positional) > len(names) {
			return ParseError{fmt.Errorf("too many params: got %d, "+
				"want at most %d", len(positional), len(names))}
		}
		named := make(map[string]json.RawMessage, len(positional))
		for i, p := range positional {
			named[names[i]] = p
		}
		b, err := json.Marshal(named)
		if err != nil {
			return ParseError{err}
		}
		if err := json.Unmarshal(b, dst); err != nil {
			return ParseError{err}
		}
		return nil

	default:
		return ParseError{fmt.Errorf("params must be an array or " +
			"an object")}
	}
}

// u64 is an integer written either bare or as a decimal string.
type u64 uint64

// UnmarshalJSON reads a quoted or bare decimal.
func (v *u64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s", b)
	}
	*v = u64(n)
	return nil
}

func optionU64(v *u64) fn.Option[uint64] {
	if v == nil {
		return fn.None[uint64]()
	}
	return fn.Some(uint64(*v))
}

func optionU32(v *uint32) fn.Option[uint32] {
	if v == nil {
		return fn.None[uint32]()
	}
	return fn.Some(*v)
}

func optionUUID(v *uuid.UUID) fn.Option[uuid.UUID] {
	if v == nil {
		return fn.None[uuid.UUID]()
	}
	return fn.Some(*v)
}

func optionString(v *string) fn.Option[string] {
	if v == nil || *v == "" {
		return fn.None[string]()
	}
	return fn.Some(*v)
}

// initTxArgs is the wire form of wallet.InitTxArgs.
type initTxArgs struct {
	Amount                    u64     `json:"amount"`
	MinimumConfirmations      *u64    `json:"minimum_confirmations"`
	MaxOutputs                int     `json:"max_outputs"`
	NumChangeOutputs          int     `json:"num_change_outputs"`
	SelectionStrategyIsUseAll bool    `json:"selection_strategy_is_use_all"`
	Message                   *string `json:"message"`
	TargetSlateVersion        *uint16 `json:"target_slate_version"`
	TTLBlocks                 *u64    `json:"ttl_blocks"`
	NumParticipants           int     `json:"num_participants"`
}

func (a *initTxArgs) toWallet() (*wallet.InitTxArgs, error) {
	if a.MaxOutputs < 0 || a.NumChangeOutputs < 0 ||
		a.NumParticipants < 0 {

		return nil, invalidParam("counts must not be negative")
	}

	args := &wallet.InitTxArgs{
		Amount:                    uint64(a.Amount),
		MinimumConfirmations:      optionU64(a.MinimumConfirmations),
		MaxOutputs:                a.MaxOutputs,
		NumChangeOutputs:          a.NumChangeOutputs,
		SelectionStrategyIsUseAll: a.SelectionStrategyIsUseAll,
		Message:                   optionString(a.Message),
		TTLBlocks:                 optionU64(a.TTLBlocks),
		NumParticipants:           a.NumParticipants,
	}
	if a.TargetSlateVersion != nil {
		args.TargetSlateVersion = fn.Some(*a.TargetSlateVersion)
	}
	return args, nil
}

// issueInvoiceTxArgs is the wire form of wallet.IssueInvoiceTxArgs.
type issueInvoiceTxArgs struct {
	Amount             u64     `json:"amount"`
	Message            *string `json:"message"`
	TargetSlateVersion *uint16 `json:"target_slate_version"`
}

func (a *issueInvoiceTxArgs) toWallet() *wallet.IssueInvoiceTxArgs {
	args := &wallet.IssueInvoiceTxArgs{
		Amount:  uint64(a.Amount),
		Message: optionString(a.Message),
	}
	if a.TargetSlateVersion != nil {
		args.TargetSlateVersion = fn.Some(*a.TargetSlateVersion)
	}
	return args
}

// blockFees is the wire form of wallet.BlockFees.
type blockFees struct {
	Fees   u64                  `json:"fees"`
	Height u64                  `json:"height"`
	KeyID  *keychain.Identifier `json:"key_id"`
}

func (f *blockFees) toWallet() *wallet.BlockFees {
	fees := &wallet.BlockFees{
		Fees:   uint64(f.Fees),
		Height: uint64(f.Height),
		KeyID:  fn.None[keychain.Identifier](),
	}
	if f.KeyID != nil {
		fees.KeyID = fn.Some(*f.KeyID)
	}
	return fees
}
