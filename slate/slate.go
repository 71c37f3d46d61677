// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package slate implements the document that carries a transaction in
// progress between the participants of a negotiation, and the rules each
// round applies to it.
//
// A negotiation moves through these states:
//
//	Created -> AwaitingContribution -> ReadyToAggregate -> Finalized
//	        -> Posted | Cancelled
//
// The first four are visible on the slate itself. Posted and Cancelled are
// only known to the wallets that recorded them.
package slate

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// CurrentVersion is the slate version this wallet writes.
	CurrentVersion uint16 = 3

	// MinVersion is the oldest slate version this wallet reads.
	MinVersion uint16 = 2

	// BlockHeaderVersion is the header version of the chain the
	// transaction targets.
	BlockHeaderVersion uint16 = 2

	// MinParticipants is the smallest negotiation.
	MinParticipants = 2
)

// VersionInfo describes how a slate was written.
type VersionInfo struct {
	// Version is the version the slate is currently encoded as.
	Version uint16

	// OrigVersion is the version the slate was created at.
	OrigVersion uint16

	// BlockHeaderVersion is the target chain header version.
	BlockHeaderVersion uint16
}

// ParticipantData is one participant's public contribution.
type ParticipantData struct {
	ID                uint64
	PublicBlindExcess *secp256k1.PublicKey
	PublicNonce       *secp256k1.PublicKey
	PartSig           fn.Option[aggsig.Signature]
	Message           fn.Option[string]
	MessageSig        fn.Option[aggsig.Signature]
}

// IsComplete reports whether the participant has signed.
func (p *ParticipantData) IsComplete() bool {
	return p.PartSig.IsSome()
}

// Slate is a transaction negotiation in progress.
type Slate struct {
	ID              uuid.UUID
	Version         VersionInfo
	NumParticipants int
	Tx              *core.Transaction
	Amount          uint64
	Fee             uint64
	Height          uint64
	LockHeight      uint64
	TTLCutoffHeight fn.Option[uint64]
	ParticipantData []ParticipantData
}

// New creates an empty slate for a negotiation between numParticipants
// parties.
func New(numParticipants int, features core.KernelFeatures) (*Slate, error) {
	if numParticipants < MinParticipants {
		return nil, werr.Newf(werr.ErrInvalidArgument,
			"need at least %d participants, got %d", MinParticipants,
			numParticipants)
	}

	return &Slate{
		ID: uuid.New(),
		Version: VersionInfo{
			Version:            CurrentVersion,
			OrigVersion:        CurrentVersion,
			BlockHeaderVersion: BlockHeaderVersion,
		},
		NumParticipants: numParticipants,
		Tx:              core.NewTransaction(features),
		ParticipantData: make([]ParticipantData, 0, numParticipants),
	}, nil
}

// CheckVersion fails with ErrSlateVersionMismatch unless this wallet can
// process the slate.
func (s *Slate) CheckVersion() error {
	v := s.Version
	if v.Version < MinVersion || v.Version > CurrentVersion {
		return werr.Newf(werr.ErrSlateVersionMismatch,
			"slate version %d outside supported range %d-%d",
			v.Version, MinVersion, CurrentVersion)
	}
	if v.OrigVersion < MinVersion || v.OrigVersion > CurrentVersion {
		return werr.Newf(werr.ErrSlateVersionMismatch,
			"slate created at unsupported version %d", v.OrigVersion)
	}
	if v.BlockHeaderVersion > BlockHeaderVersion {
		return werr.Newf(werr.ErrSlateVersionMismatch,
			"block header version %d is newer than %d",
			v.BlockHeaderVersion, BlockHeaderVersion)
	}
	return nil
}

// Participant returns the entry for id.
func (s *Slate) Participant(id uint64) (*ParticipantData, bool) {
	for i := range s.ParticipantData {
		if s.ParticipantData[i].ID == id {
			return &s.ParticipantData[i], true
		}
	}
	return nil, false
}

// NextParticipantID returns the smallest id not yet on the slate.
func (s *Slate) NextParticipantID() uint64 {
	for id := uint64(0); ; id++ {
		if _, ok := s.Participant(id); !ok {
			return id
		}
	}
}

// IsFull reports whether every participant has added its public data.
func (s *Slate) IsFull() bool {
	return len(s.ParticipantData) == s.NumParticipants
}

// Kernel returns a copy of the slate's kernel carrying the slate's fee and
// lock height. The transaction itself is left untouched.
func (s *Slate) Kernel() core.TxKernel {
	k := *s.Tx.Kernel()
	k.Fee = s.Fee
	k.LockHeight = s.LockHeight
	return k
}

// MsgToSign returns the kernel message every partial signature covers.
func (s *Slate) MsgToSign() []byte {
	k := s.Kernel()
	msg := k.MsgToSign()
	return msg[:]
}

// State derives the negotiation state visible on the slate.
func (s *Slate) State() State {
	switch {
	case s.Tx.Kernel() != nil && s.Tx.Kernel().IsSigned():
		return StateFinalized
	case len(s.ParticipantData) == 0:
		return StateCreated
	case !s.IsFull():
		return StateAwaitingContribution
	default:
		return StateReadyToAggregate
	}
}

// Copy returns a deep copy of the slate.
func (s *Slate) Copy() *Slate {
	c := *s
	c.Tx = s.Tx.Copy()
	c.ParticipantData = make([]ParticipantData, len(s.ParticipantData),
		max(s.NumParticipants, len(s.ParticipantData)))
	copy(c.ParticipantData, s.ParticipantData)
	return &c
}

// String returns a short description for logging.
func (s *Slate) String() string {
	return fmt.Sprintf("slate %v (v%d, %d/%d participants, amount=%d, "+
		"fee=%d)", s.ID, s.Version.Version, len(s.ParticipantData),
		s.NumParticipants, s.Amount, s.Fee)
}
