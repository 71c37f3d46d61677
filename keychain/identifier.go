// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// IdentifierSize is the size of a serialized key identifier: one depth
// byte followed by four big-endian path elements.
const IdentifierSize = 17

// MaxDepth is the deepest supported derivation path.
const MaxDepth = 4

// Identifier names a key by its derivation path from the wallet root.
type Identifier [IdentifierSize]byte

// NewIdentifier returns the identifier of the key at path[:depth].
func NewIdentifier(depth uint8, path [MaxDepth]uint32) Identifier {
	var id Identifier
	id[0] = depth
	for i, p := range path {
		binary.BigEndian.PutUint32(id[1+4*i:], p)
	}
	return id
}

// OutputKeyID returns the identifier used for the wallet's n-th output.
func OutputKeyID(account, n uint32) Identifier {
	return NewIdentifier(3, [MaxDepth]uint32{account, 0, n, 0})
}

// Depth returns the number of path elements used.
func (id Identifier) Depth() uint8 {
	return id[0]
}

// Path returns all four path elements.
func (id Identifier) Path() [MaxDepth]uint32 {
	var path [MaxDepth]uint32
	for i := range path {
		path[i] = binary.BigEndian.Uint32(id[1+4*i:])
	}
	return path
}

// String returns the identifier as hex.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText encodes the identifier as hex.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex identifier.
func (id *Identifier) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != IdentifierSize {
		return fmt.Errorf("key identifier: expected %d hex bytes",
			IdentifierSize)
	}
	var tmp Identifier
	if _, err := hex.Decode(tmp[:], text); err != nil {
		return err
	}
	if tmp.Depth() > MaxDepth {
		return fmt.Errorf("key identifier: depth %d exceeds %d",
			tmp.Depth(), MaxDepth)
	}
	*id = tmp
	return nil
}
