// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ownerrpc

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/forestblock/forest-wallet/werr"
)

// errNoOwnerAuth is returned to unauthenticated websocket clients calling
// an owner method.
var errNoOwnerAuth = &btcjson.RPCError{
	Code:    btcjson.ErrRPCWallet,
	Message: "Owner methods require authentication",
}

// kindCodes maps each error kind to the JSON-RPC code clients see.  The
// message always starts with the kind's name so clients can tell kinds that
// share a code apart.
var kindCodes = map[werr.Kind]btcjson.RPCErrorCode{
	werr.ErrInsufficientFunds:       btcjson.ErrRPCWalletInsufficientFunds,
	werr.ErrOutputConflict:          btcjson.ErrRPCWallet,
	werr.ErrParticipantIDCollision:  btcjson.ErrRPCWallet,
	werr.ErrSlateVersionMismatch:    btcjson.ErrRPCDeserialization,
	werr.ErrInvalidPartialSignature: btcjson.ErrRPCVerify,
	werr.ErrInvalidSlateMessage:     btcjson.ErrRPCVerify,
	werr.ErrKernelSumMismatch:       btcjson.ErrRPCVerify,
	werr.ErrAlreadyPosted:           btcjson.ErrRPCWallet,
	werr.ErrNegotiationNotFound:     btcjson.ErrRPCNoTxInfo,
	werr.ErrLedgerUnavailable:       btcjson.ErrRPCClientNotConnected,
	werr.ErrStoreFailure:            btcjson.ErrRPCDatabase,
	werr.ErrParticipantCount:        btcjson.ErrRPCWallet,
	werr.ErrInvalidSlate:            btcjson.ErrRPCDeserialization,
	werr.ErrInvalidTransaction:      btcjson.ErrRPCVerify,
	werr.ErrProtocolViolation:       btcjson.ErrRPCWallet,
	werr.ErrResubmission:            btcjson.ErrRPCWallet,
	werr.ErrDuplicateNegotiation:    btcjson.ErrRPCWallet,
	werr.ErrNegotiationCancelled:    btcjson.ErrRPCWallet,
	werr.ErrKeychain:                btcjson.ErrRPCMisc,
	werr.ErrInvalidArgument:         btcjson.ErrRPCInvalidParameter,
}

// ParseError wraps a params decoding failure.
type ParseError struct {
	error
}

// Unwrap returns the decoding error.
func (e ParseError) Unwrap() error {
	return e.error
}

// InvalidParameterError indicates a parameter that decoded but is outside
// the accepted values.
type InvalidParameterError struct {
	error
}

// jsonError creates a JSON-RPC error from the Go error.  Wallet errors,
// including those raised while decoding a slate param, keep their kind's
// code.
func jsonError(err error) *btcjson.RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	if kind, ok := werr.KindOf(err); ok {
		code, ok := kindCodes[kind]
		if !ok {
			code = btcjson.ErrRPCWallet
		}
		return btcjson.NewRPCError(code, err.Error())
	}

	var (
		parseErr   ParseError
		invalidErr InvalidParameterError
	)
	switch {
	case errors.As(err, &parseErr):
		return &btcjson.RPCError{
			Code:    btcjson.ErrRPCInvalidParams.Code,
			Message: err.Error(),
		}

	case errors.As(err, &invalidErr):
		return btcjson.NewRPCError(btcjson.ErrRPCInvalidParameter,
			err.Error())
	}

	return btcjson.NewRPCError(btcjson.ErrRPCWallet, err.Error())
}

func invalidParam(format string, args ...interface{}) error {
	return InvalidParameterError{fmt.Errorf(format, args...)}
}
