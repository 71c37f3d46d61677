// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import (
	"encoding/json"

	"github.com/forestblock/forest-wallet/werr"
)

func versionMismatch(version uint16) error {
	return werr.Newf(werr.ErrSlateVersionMismatch,
		"slate version %d is not supported (want %d-%d)", version,
		MinVersion, CurrentVersion)
}

// versionPeek reads only the version from a serialized slate.
type versionPeek struct {
	VersionInfo *struct {
		Version uint16 `json:"version"`
	} `json:"version_info"`
}

// Decode parses a slate of any supported version.
func Decode(data []byte) (*Slate, error) {
	var peek versionPeek
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, werr.New(werr.ErrInvalidSlate, "decoding slate", err)
	}
	if peek.VersionInfo == nil {
		return nil, werr.New(werr.ErrInvalidSlate,
			"slate has no version_info", nil)
	}

	var v VersionedSlate
	switch peek.VersionInfo.Version {
	case 2:
		v = new(SlateV2)
	case 3:
		v = new(SlateV3)
	default:
		return nil, versionMismatch(peek.VersionInfo.Version)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, werr.New(werr.ErrInvalidSlate, "decoding slate", err)
	}
	s, err := v.Upgrade()
	if err != nil {
		return nil, werr.New(werr.ErrInvalidSlate, "decoding slate", err)
	}
	return s, nil
}

// Encode serializes s at the given version.
func Encode(s *Slate, version uint16) ([]byte, error) {
	v, err := Versioned(s, version)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// MarshalJSON encodes the slate at its current version.
func (s *Slate) MarshalJSON() ([]byte, error) {
	return Encode(s, s.Version.Version)
}

// UnmarshalJSON decodes a slate of any supported version.
func (s *Slate) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}
