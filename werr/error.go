// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package werr defines the error kinds shared by every layer of the wallet.
// Errors carry a Kind so callers and the RPC layer can match on the failure
// class with errors.Is, and optionally the participant id that caused them.
package werr

import (
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Kind identifies a class of negotiation failure.
type Kind int

// These constants are used to identify a specific Error.
const (
	// ErrInsufficientFunds indicates that no output set covers the
	// requested amount plus fee within the selection constraints.
	ErrInsufficientFunds Kind = iota

	// ErrOutputConflict indicates an attempt to lock an output that is
	// already locked by a different negotiation, or already spent.
	ErrOutputConflict

	// ErrParticipantIDCollision indicates a contribution for a participant
	// id that is already present on the slate.
	ErrParticipantIDCollision

	// ErrSlateVersionMismatch indicates a slate version this wallet cannot
	// interpret.
	ErrSlateVersionMismatch

	// ErrInvalidPartialSignature indicates a partial signature that does not
	// verify against the aggregate nonce and key.
	ErrInvalidPartialSignature

	// ErrInvalidSlateMessage indicates a message signature that does not
	// verify against the participant's public excess.
	ErrInvalidSlateMessage

	// ErrKernelSumMismatch indicates that the kernel excess does not balance
	// the input and output commitments.
	ErrKernelSumMismatch

	// ErrAlreadyPosted indicates an operation that is not allowed once the
	// transaction has been handed to the ledger.
	ErrAlreadyPosted

	// ErrNegotiationNotFound indicates that no log entry or context exists
	// for the referenced negotiation.
	ErrNegotiationNotFound

	// ErrLedgerUnavailable indicates a failure at the ledger client
	// boundary.
	ErrLedgerUnavailable

	// ErrStoreFailure indicates a failure at the durable store boundary.
	// When this kind is set, Err holds the underlying database error.
	ErrStoreFailure

	// ErrParticipantCount indicates a slate with the wrong number of
	// participant entries for the requested round.
	ErrParticipantCount

	// ErrInvalidSlate indicates a structurally malformed slate.
	ErrInvalidSlate

	// ErrInvalidTransaction indicates a transaction that fails consensus
	// validation for a reason other than the kernel sum.
	ErrInvalidTransaction

	// ErrProtocolViolation indicates a slate that contradicts what this
	// participant previously contributed.
	ErrProtocolViolation

	// ErrResubmission indicates a second partial signature or finalization
	// for a pair that already holds a valid one.
	ErrResubmission

	// ErrDuplicateNegotiation indicates a slate id this wallet has already
	// taken part in.
	ErrDuplicateNegotiation

	// ErrNegotiationCancelled indicates an operation on a cancelled
	// negotiation.
	ErrNegotiationCancelled

	// ErrKeychain indicates a key derivation failure.
	ErrKeychain

	// ErrInvalidArgument indicates a caller supplied argument outside its
	// allowed range.
	ErrInvalidArgument
)

// Map of Kind values back to their constant names for pretty printing.
var kindStrings = map[Kind]string{
	ErrInsufficientFunds:       "InsufficientFunds",
	ErrOutputConflict:          "OutputConflict",
	ErrParticipantIDCollision:  "ParticipantIdCollision",
	ErrSlateVersionMismatch:    "SlateVersionMismatch",
	ErrInvalidPartialSignature: "InvalidPartialSignature",
	ErrInvalidSlateMessage:     "InvalidSlateMessage",
	ErrKernelSumMismatch:       "KernelSumMismatch",
	ErrAlreadyPosted:           "AlreadyPosted",
	ErrNegotiationNotFound:     "NegotiationNotFound",
	ErrLedgerUnavailable:       "LedgerUnavailable",
	ErrStoreFailure:            "StoreFailure",
	ErrParticipantCount:        "ParticipantCount",
	ErrInvalidSlate:            "InvalidSlate",
	ErrInvalidTransaction:      "InvalidTransaction",
	ErrProtocolViolation:       "ProtocolViolation",
	ErrResubmission:            "Resubmission",
	ErrDuplicateNegotiation:    "DuplicateNegotiation",
	ErrNegotiationCancelled:    "NegotiationCancelled",
	ErrKeychain:                "Keychain",
	ErrInvalidArgument:         "InvalidArgument",
}

// String returns the Kind as a human-readable name.
func (k Kind) String() string {
	if s := kindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown Kind (%d)", int(k))
}

// Error lets a Kind be used directly as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Error provides a single type for every failure raised while negotiating,
// storing or posting a transaction.
type Error struct {
	Kind        Kind              // Describes the kind of error
	Description string            // Human readable description of the issue
	Participant fn.Option[uint64] // Offending participant, if any
	Err         error             // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	msg := e.Kind.String()
	e.Participant.WhenSome(func(id uint64) {
		msg += fmt.Sprintf("{id: %d}", id)
	})
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of this error.
func (e Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New creates an Error given a set of arguments.
func New(k Kind, desc string, err error) Error {
	return Error{Kind: k, Description: desc, Err: err}
}

// Newf creates an Error with a formatted description.
func Newf(k Kind, format string, args ...interface{}) Error {
	return Error{Kind: k, Description: fmt.Sprintf(format, args...)}
}

// ForParticipant creates an Error attributed to a participant id.
func ForParticipant(k Kind, id uint64, desc string, err error) Error {
	return Error{
		Kind:        k,
		Description: desc,
		Participant: fn.Some(id),
		Err:         err,
	}
}

// Store wraps a database error as ErrStoreFailure. Errors that already carry
// a Kind are returned unchanged.
func Store(desc string, err error) error {
	if err == nil {
		return nil
	}
	var e Error
	if errors.As(err, &e) {
		return err
	}
	return New(ErrStoreFailure, desc, err)
}

// KindOf returns the Kind of the first Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Participants returns the participant ids attributed by every Error in
// err's tree, in order. Joined errors are walked in full.
func Participants(err error) []uint64 {
	var ids []uint64
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(Error); ok {
			e.Participant.WhenSome(func(id uint64) {
				ids = append(ids, id)
			})
			walk(e.Err)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return ids
}
