// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// jsonU64 is a uint64 written as a decimal string. Bare numbers are accepted
// when reading, since some peers write them that way.
type jsonU64 uint64

// MarshalJSON writes the value as a quoted decimal.
func (v jsonU64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(v), 10))), nil
}

// UnmarshalJSON reads a quoted or bare decimal.
func (v *jsonU64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*v = jsonU64(n)
	return nil
}

// publicKey is a compressed secp256k1 key in hex.
type publicKey struct {
	*secp256k1.PublicKey
}

// MarshalText writes the compressed key as hex.
func (k publicKey) MarshalText() ([]byte, error) {
	if k.PublicKey == nil {
		return nil, fmt.Errorf("missing public key")
	}
	return []byte(hex.EncodeToString(k.SerializeCompressed())), nil
}

// UnmarshalText parses a hex compressed key.
func (k *publicKey) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return err
	}
	k.PublicKey = pub
	return nil
}

type versionInfoJSON struct {
	Version            uint16 `json:"version"`
	OrigVersion        uint16 `json:"orig_version"`
	BlockHeaderVersion uint16 `json:"block_header_version"`
}

// participantDataJSON is shared by V2 and V3.
type participantDataJSON struct {
	ID                jsonU64           `json:"id"`
	PublicBlindExcess publicKey         `json:"public_blind_excess"`
	PublicNonce       publicKey         `json:"public_nonce"`
	PartSig           *aggsig.Signature `json:"part_sig"`
	Message           *string           `json:"message"`
	MessageSig        *aggsig.Signature `json:"message_sig"`
}

// SlateV2 is the version 2 wire form.
type SlateV2 struct {
	VersionInfo     versionInfoJSON       `json:"version_info"`
	NumParticipants int                   `json:"num_participants"`
	ID              uuid.UUID             `json:"id"`
	Tx              *core.Transaction     `json:"tx"`
	Amount          jsonU64               `json:"amount"`
	Fee             jsonU64               `json:"fee"`
	Height          jsonU64               `json:"height"`
	LockHeight      jsonU64               `json:"lock_height"`
	ParticipantData []participantDataJSON `json:"participant_data"`
}

// SlateV3 is the version 3 wire form. It adds the TTL cutoff height.
type SlateV3 struct {
	VersionInfo     versionInfoJSON       `json:"version_info"`
	NumParticipants int                   `json:"num_participants"`
	ID              uuid.UUID             `json:"id"`
	Tx              *core.Transaction     `json:"tx"`
	Amount          jsonU64               `json:"amount"`
	Fee             jsonU64               `json:"fee"`
	Height          jsonU64               `json:"height"`
	LockHeight      jsonU64               `json:"lock_height"`
	TTLCutoffHeight *jsonU64              `json:"ttl_cutoff_height"`
	ParticipantData []participantDataJSON `json:"participant_data"`
}

// VersionedSlate is a slate in one of its wire forms.
type VersionedSlate interface {
	// SlateVersion returns the wire version.
	SlateVersion() uint16

	// Upgrade converts the wire form to the in-memory slate.
	Upgrade() (*Slate, error)
}

// SlateVersion implements VersionedSlate.
func (v *SlateV2) SlateVersion() uint16 { return 2 }

// SlateVersion implements VersionedSlate.
func (v *SlateV3) SlateVersion() uint16 { return 3 }

// Upgrade implements VersionedSlate.
func (v *SlateV2) Upgrade() (*Slate, error) {
	return SlateV3{
		VersionInfo:     v.VersionInfo,
		NumParticipants: v.NumParticipants,
		ID:              v.ID,
		Tx:              v.Tx,
		Amount:          v.Amount,
		Fee:             v.Fee,
		Height:          v.Height,
		LockHeight:      v.LockHeight,
		ParticipantData: v.ParticipantData,
	}.toSlate()
}

// Upgrade implements VersionedSlate.
func (v *SlateV3) Upgrade() (*Slate, error) {
	return v.toSlate()
}

func (v SlateV3) toSlate() (*Slate, error) {
	if v.Tx == nil {
		return nil, fmt.Errorf("missing tx")
	}

	s := &Slate{
		ID: v.ID,
		Version: VersionInfo{
			Version:            v.VersionInfo.Version,
			OrigVersion:        v.VersionInfo.OrigVersion,
			BlockHeaderVersion: v.VersionInfo.BlockHeaderVersion,
		},
		NumParticipants: v.NumParticipants,
		Tx:              v.Tx,
		Amount:          uint64(v.Amount),
		Fee:             uint64(v.Fee),
		Height:          uint64(v.Height),
		LockHeight:      uint64(v.LockHeight),
		ParticipantData: make([]ParticipantData, 0, len(v.ParticipantData)),
	}
	if v.TTLCutoffHeight != nil {
		s.TTLCutoffHeight = fn.Some(uint64(*v.TTLCutoffHeight))
	}
	if s.Tx.Body.Inputs == nil {
		s.Tx.Body.Inputs = make([]core.Input, 0)
	}
	if s.Tx.Body.Outputs == nil {
		s.Tx.Body.Outputs = make([]core.Output, 0)
	}
	if len(s.Tx.Body.Kernels) == 0 {
		return nil, fmt.Errorf("tx has no kernel")
	}
	if v.NumParticipants < MinParticipants {
		return nil, werr.Newf(werr.ErrParticipantCount,
			"slate needs at least %d participants, has %d",
			MinParticipants, v.NumParticipants)
	}
	if len(v.ParticipantData) > v.NumParticipants {
		return nil, werr.Newf(werr.ErrParticipantCount,
			"slate carries %d participant entries for %d "+
				"participants", len(v.ParticipantData),
			v.NumParticipants)
	}

	seen := make(map[uint64]struct{}, len(v.ParticipantData))
	for _, p := range v.ParticipantData {
		if p.PublicBlindExcess.PublicKey == nil ||
			p.PublicNonce.PublicKey == nil {

			return nil, fmt.Errorf("participant %d is missing public "+
				"data", p.ID)
		}
		if _, ok := seen[uint64(p.ID)]; ok {
			return nil, fmt.Errorf("participant %d appears twice", p.ID)
		}
		seen[uint64(p.ID)] = struct{}{}
		s.ParticipantData = append(s.ParticipantData, ParticipantData{
			ID:                uint64(p.ID),
			PublicBlindExcess: p.PublicBlindExcess.PublicKey,
			PublicNonce:       p.PublicNonce.PublicKey,
			PartSig:           optionFromPtr(p.PartSig),
			Message:           optionFromPtr(p.Message),
			MessageSig:        optionFromPtr(p.MessageSig),
		})
	}
	return s, nil
}

func optionFromPtr[A any](p *A) fn.Option[A] {
	if p == nil {
		return fn.None[A]()
	}
	return fn.Some(*p)
}

func ptrFromOption[A any](o fn.Option[A]) *A {
	v, ok := unpack(o)
	if !ok {
		return nil
	}
	return &v
}

func fromSlate(s *Slate, version uint16) SlateV3 {
	v := SlateV3{
		VersionInfo: versionInfoJSON{
			Version:            version,
			OrigVersion:        s.Version.OrigVersion,
			BlockHeaderVersion: s.Version.BlockHeaderVersion,
		},
		NumParticipants: s.NumParticipants,
		ID:              s.ID,
		Tx:              s.Tx,
		Amount:          jsonU64(s.Amount),
		Fee:             jsonU64(s.Fee),
		Height:          jsonU64(s.Height),
		LockHeight:      jsonU64(s.LockHeight),
		ParticipantData: make([]participantDataJSON, 0,
			len(s.ParticipantData)),
	}
	s.TTLCutoffHeight.WhenSome(func(h uint64) {
		ttl := jsonU64(h)
		v.TTLCutoffHeight = &ttl
	})
	for _, p := range s.ParticipantData {
		v.ParticipantData = append(v.ParticipantData, participantDataJSON{
			ID:                jsonU64(p.ID),
			PublicBlindExcess: publicKey{p.PublicBlindExcess},
			PublicNonce:       publicKey{p.PublicNonce},
			PartSig:           ptrFromOption(p.PartSig),
			Message:           ptrFromOption(p.Message),
			MessageSig:        ptrFromOption(p.MessageSig),
		})
	}
	return v
}

// Versioned returns the wire form of s at the given version. Downgrading to
// V2 drops the TTL cutoff height.
func Versioned(s *Slate, version uint16) (VersionedSlate, error) {
	v3 := fromSlate(s, version)
	switch version {
	case 3:
		return &v3, nil
	case 2:
		return &SlateV2{
			VersionInfo:     v3.VersionInfo,
			NumParticipants: v3.NumParticipants,
			ID:              v3.ID,
			Tx:              v3.Tx,
			Amount:          v3.Amount,
			Fee:             v3.Fee,
			Height:          v3.Height,
			LockHeight:      v3.LockHeight,
			ParticipantData: v3.ParticipantData,
		}, nil
	default:
		return nil, versionMismatch(version)
	}
}
