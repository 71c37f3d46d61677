// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain derives the blinding factors behind a wallet's outputs
// from a single seed. Keys live on a BIP32 tree; an Identifier names the
// path of each one.
package keychain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/internal/zero"
)

// Keychain is the key-derivation service the wallet depends on.
type Keychain interface {
	// DeriveKey returns the blinding factor of the key at id.
	DeriveKey(id Identifier) (commit.BlindingFactor, error)

	// Commit commits to value with the blinding factor of id.
	Commit(value uint64, id Identifier) (commit.Commitment, error)

	// RangeProof proves the commitment to value under id is in range.
	RangeProof(value uint64, id Identifier) (commit.RangeProof, error)

	// NewSecretNonce returns a fresh random signing nonce.
	NewSecretNonce() (commit.BlindingFactor, error)
}

// ErrZeroKey is returned when a path derives the zero scalar.
var ErrZeroKey = errors.New("derived key is zero")

// ExtKeychain implements Keychain on an extended key tree.
type ExtKeychain struct {
	mtx    sync.Mutex
	master *hdkeychain.ExtendedKey
}

// A compile-time assertion to ensure ExtKeychain implements Keychain.
var _ Keychain = (*ExtKeychain)(nil)

// NewExtKeychain returns a keychain rooted at the master key of seed.
func NewExtKeychain(seed []byte, params *chaincfg.Params) (*ExtKeychain,
	error) {

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &ExtKeychain{master: master}, nil
}

// GenerateSeed returns a new random seed of the recommended length.
func GenerateSeed() ([]byte, error) {
	return hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
}

// derive walks id's path. The first element is hardened so accounts cannot
// be linked through their public keys.
func (k *ExtKeychain) derive(id Identifier) (*btcec.PrivateKey, error) {
	if id.Depth() > MaxDepth {
		return nil, fmt.Errorf("depth %d exceeds %d", id.Depth(),
			MaxDepth)
	}

	k.mtx.Lock()
	key := k.master
	k.mtx.Unlock()

	path := id.Path()
	for i := 0; i < int(id.Depth()); i++ {
		index := path[i]
		if i == 0 {
			index += hdkeychain.HardenedKeyStart
		}

		var err error
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("derive %v: %w", id, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	if priv.Key.IsZero() {
		return nil, ErrZeroKey
	}
	return priv, nil
}

// DeriveKey returns the blinding factor of the key at id.
func (k *ExtKeychain) DeriveKey(id Identifier) (commit.BlindingFactor, error) {
	priv, err := k.derive(id)
	if err != nil {
		return commit.BlindingFactor{}, err
	}
	defer priv.Zero()

	return commit.FromScalar(&priv.Key), nil
}

// Commit commits to value with the blinding factor of id.
func (k *ExtKeychain) Commit(value uint64,
	id Identifier) (commit.Commitment, error) {

	blind, err := k.DeriveKey(id)
	if err != nil {
		return commit.Commitment{}, err
	}
	defer blind.Zero()

	return commit.Commit(value, blind)
}

// RangeProof proves the commitment to value under id is in range.
func (k *ExtKeychain) RangeProof(value uint64,
	id Identifier) (commit.RangeProof, error) {

	blind, err := k.DeriveKey(id)
	if err != nil {
		return nil, err
	}
	defer blind.Zero()

	return commit.ProveRange(value, blind, nil)
}

// NewSecretNonce returns a fresh random signing nonce.
func (k *ExtKeychain) NewSecretNonce() (commit.BlindingFactor, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return commit.BlindingFactor{}, err
	}
	defer priv.Zero()

	return commit.FromScalar(&priv.Key), nil
}

// SecretKey decodes a blinding factor into the scalar used for signing.
// The caller must zero the result.
func SecretKey(b commit.BlindingFactor) (*secp256k1.ModNScalar, error) {
	s, err := b.Scalar()
	if err != nil {
		zero.Scalar(&s)
		return nil, err
	}
	return &s, nil
}
