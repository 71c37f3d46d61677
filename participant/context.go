// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package participant holds the private half of one party's contribution
// to a negotiation: the secret blinding excess and nonce behind the public
// data it puts on a slate. A Context never leaves the wallet that created
// it.
package participant

import (
	"bytes"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/internal/zero"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/tlv"
)

// Role is the part a participant plays in a negotiation.
type Role uint8

const (
	// RoleSender initiates a send and funds it.
	RoleSender Role = iota

	// RoleReceiver adds an output to a send.
	RoleReceiver

	// RolePayee initiates an invoice.
	RolePayee

	// RolePayer funds an invoice.
	RolePayer
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	case RolePayee:
		return "payee"
	case RolePayer:
		return "payer"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// IsInitiator reports whether the role creates the slate.
func (r Role) IsInitiator() bool {
	return r == RoleSender || r == RolePayee
}

// Context is one participant's secret state for a negotiation.
type Context struct {
	SlateID       uuid.UUID
	ParticipantID uint64
	Role          Role

	// SecKey is this participant's share of the kernel excess. For the
	// initiator it already has the transaction offset subtracted.
	SecKey commit.BlindingFactor

	// SecNonce is the signing nonce, used for exactly one partial
	// signature.
	SecNonce commit.BlindingFactor

	// Inputs are the commitments this participant spends.
	Inputs []commit.Commitment

	// Outputs are the keys of the outputs this participant created.
	Outputs []keychain.Identifier

	Amount uint64
	Fee    uint64
}

// PublicBlindExcess returns SecKey*G.
func (c *Context) PublicBlindExcess() (*secp256k1.PublicKey, error) {
	return c.SecKey.PublicKey()
}

// PublicNonce returns SecNonce*G.
func (c *Context) PublicNonce() (*secp256k1.PublicKey, error) {
	return c.SecNonce.PublicKey()
}

// Zero clears the secrets.
func (c *Context) Zero() {
	c.SecKey.Zero()
	c.SecNonce.Zero()
}

const (
	typeSlateID       tlv.Type = 0
	typeParticipantID tlv.Type = 1
	typeRole          tlv.Type = 2
	typeSecKey        tlv.Type = 3
	typeSecNonce      tlv.Type = 4
	typeInputs        tlv.Type = 5
	typeOutputs       tlv.Type = 6
	typeAmount        tlv.Type = 7
	typeFee           tlv.Type = 8
)

// Encode writes the context as a TLV stream.
func (c *Context) Encode(w io.Writer) error {
	var (
		slateID  = c.SlateID[:]
		role     = uint8(c.Role)
		secKey   = [32]byte(c.SecKey)
		secNonce = [32]byte(c.SecNonce)
		inputs   = make([]byte, 0, len(c.Inputs)*commit.CommitmentSize)
		outputs  = make([]byte, 0, len(c.Outputs)*keychain.IdentifierSize)
	)
	defer zero.Bytea32(&secKey)
	defer zero.Bytea32(&secNonce)

	for _, in := range c.Inputs {
		inputs = append(inputs, in[:]...)
	}
	for _, out := range c.Outputs {
		outputs = append(outputs, out[:]...)
	}

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeSlateID, &slateID),
		tlv.MakePrimitiveRecord(typeParticipantID, &c.ParticipantID),
		tlv.MakePrimitiveRecord(typeRole, &role),
		tlv.MakePrimitiveRecord(typeSecKey, &secKey),
		tlv.MakePrimitiveRecord(typeSecNonce, &secNonce),
		tlv.MakePrimitiveRecord(typeInputs, &inputs),
		tlv.MakePrimitiveRecord(typeOutputs, &outputs),
		tlv.MakePrimitiveRecord(typeAmount, &c.Amount),
		tlv.MakePrimitiveRecord(typeFee, &c.Fee),
	)
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

// Decode reads a context written by Encode.
func (c *Context) Decode(r io.Reader) error {
	var (
		slateID  []byte
		role     uint8
		secKey   [32]byte
		secNonce [32]byte
		inputs   []byte
		outputs  []byte
	)
	defer zero.Bytea32(&secKey)
	defer zero.Bytea32(&secNonce)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeSlateID, &slateID),
		tlv.MakePrimitiveRecord(typeParticipantID, &c.ParticipantID),
		tlv.MakePrimitiveRecord(typeRole, &role),
		tlv.MakePrimitiveRecord(typeSecKey, &secKey),
		tlv.MakePrimitiveRecord(typeSecNonce, &secNonce),
		tlv.MakePrimitiveRecord(typeInputs, &inputs),
		tlv.MakePrimitiveRecord(typeOutputs, &outputs),
		tlv.MakePrimitiveRecord(typeAmount, &c.Amount),
		tlv.MakePrimitiveRecord(typeFee, &c.Fee),
	)
	if err != nil {
		return err
	}
	if err := stream.Decode(r); err != nil {
		return err
	}

	id, err := uuid.FromBytes(slateID)
	if err != nil {
		return fmt.Errorf("slate id: %w", err)
	}
	if len(inputs)%commit.CommitmentSize != 0 {
		return fmt.Errorf("inputs field of %d bytes", len(inputs))
	}
	if len(outputs)%keychain.IdentifierSize != 0 {
		return fmt.Errorf("outputs field of %d bytes", len(outputs))
	}

	c.SlateID = id
	c.Role = Role(role)
	c.SecKey = commit.BlindingFactor(secKey)
	c.SecNonce = commit.BlindingFactor(secNonce)

	c.Inputs = make([]commit.Commitment, 0, len(inputs)/commit.CommitmentSize)
	for i := 0; i < len(inputs); i += commit.CommitmentSize {
		var in commit.Commitment
		copy(in[:], inputs[i:])
		c.Inputs = append(c.Inputs, in)
	}
	c.Outputs = make([]keychain.Identifier, 0,
		len(outputs)/keychain.IdentifierSize)
	for i := 0; i < len(outputs); i += keychain.IdentifierSize {
		var out keychain.Identifier
		copy(out[:], outputs[i:])
		c.Outputs = append(c.Outputs, out)
	}
	return nil
}

// Serialize returns the TLV encoding of the context.
func (c *Context) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a context from its TLV encoding.
func Deserialize(b []byte) (*Context, error) {
	c := &Context{}
	if err := c.Decode(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c, nil
}
