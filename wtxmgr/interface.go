// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wtxmgr stores the wallet's outputs, its transaction log, the
// secret context of every open negotiation and finalized transactions.
//
// All access goes through a transaction. A read-write transaction commits
// every change it made or none of them, which is what the output locker
// relies on to keep a lock and its log entry consistent.
package wtxmgr

import (
	"context"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/google/uuid"
)

// DB is a durable wallet store.
type DB interface {
	// View runs f in a read-only transaction.
	View(ctx context.Context, f func(ReadTx) error) error

	// Update runs f in a read-write transaction. The transaction is
	// committed when f returns nil and rolled back otherwise.
	Update(ctx context.Context, f func(ReadWriteTx) error) error

	// Close releases the store.
	Close() error
}

// ReadTx reads the store. Fetch methods return a nil record and no error
// when the record does not exist.
type ReadTx interface {
	// FetchOutput returns the output with commitment c.
	FetchOutput(c commit.Commitment) (*OutputRecord, error)

	// ForEachOutput calls f for every output, ordered by commitment.
	ForEachOutput(f func(*OutputRecord) error) error

	// FetchTxLogEntry returns the entry with the given id.
	FetchTxLogEntry(id uint32) (*TxLogEntry, error)

	// FetchTxLogEntryBySlate returns the entry for a slate id.
	FetchTxLogEntryBySlate(slateID uuid.UUID) (*TxLogEntry, error)

	// ForEachTxLogEntry calls f for every entry in id order.
	ForEachTxLogEntry(f func(*TxLogEntry) error) error

	// FetchContext returns the secret context of a participant in a
	// negotiation.
	FetchContext(slateID uuid.UUID,
		participantID uint64) (*participant.Context, error)

	// FetchStoredTx returns the finalized transaction of a negotiation.
	FetchStoredTx(slateID uuid.UUID) (*core.Transaction, error)

	// LastChildIndex returns the last output key index handed out.
	LastChildIndex() (uint32, error)
}

// ReadWriteTx reads and writes the store.
type ReadWriteTx interface {
	ReadTx

	// PutOutput inserts or replaces an output.
	PutOutput(o *OutputRecord) error

	// DeleteOutput removes an output.
	DeleteOutput(c commit.Commitment) error

	// NextTxLogID reserves a new log entry id. Ids start at one.
	NextTxLogID() (uint32, error)

	// PutTxLogEntry inserts or replaces a log entry.
	PutTxLogEntry(e *TxLogEntry) error

	// NextChildIndex reserves the next output key index.
	NextChildIndex() (uint32, error)

	// PutContext stores a participant context.
	PutContext(ctx *participant.Context) error

	// DeleteContext removes a participant context, if present.
	DeleteContext(slateID uuid.UUID, participantID uint64) error

	// PutStoredTx stores a finalized transaction.
	PutStoredTx(slateID uuid.UUID, tx *core.Transaction) error
}

// Outputs returns every output matching filter, or all outputs when filter
// is nil.
func Outputs(tx ReadTx, filter func(*OutputRecord) bool) ([]OutputRecord,
	error) {

	var outputs []OutputRecord
	err := tx.ForEachOutput(func(o *OutputRecord) error {
		if filter == nil || filter(o) {
			outputs = append(outputs, *o)
		}
		return nil
	})
	return outputs, err
}

// TxLogEntries returns every entry matching filter, or all entries when
// filter is nil.
func TxLogEntries(tx ReadTx, filter func(*TxLogEntry) bool) ([]TxLogEntry,
	error) {

	var entries []TxLogEntry
	err := tx.ForEachTxLogEntry(func(e *TxLogEntry) error {
		if filter == nil || filter(e) {
			entries = append(entries, *e)
		}
		return nil
	})
	return entries, err
}
