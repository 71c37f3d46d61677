// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"time"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
)

// LockOutputs reserves the outputs with the given commitments for the
// negotiation logged as txLogID. Commitments the wallet does not own are
// ignored. Outputs already locked by the same negotiation are left as they
// are, so locking is idempotent. If any output is locked by another
// negotiation or is not spendable, nothing is written and ErrOutputConflict
// is returned.
func LockOutputs(tx ReadWriteTx, txLogID uint32,
	commits []commit.Commitment) (int, error) {

	toLock := make([]*OutputRecord, 0, len(commits))
	for _, c := range commits {
		o, err := tx.FetchOutput(c)
		if err != nil {
			return 0, werr.Store("fetching output", err)
		}
		if o == nil {
			continue
		}

		switch {
		case o.Status == Locked && o.LockID == txLogID:
			continue
		case o.Status == Locked:
			return 0, werr.Newf(werr.ErrOutputConflict,
				"output %v is locked by log entry %d", c, o.LockID)
		case o.Status != Unspent:
			return 0, werr.Newf(werr.ErrOutputConflict,
				"output %v is %v", c, o.Status)
		}
		toLock = append(toLock, o)
	}

	for _, o := range toLock {
		o.Status = Locked
		o.LockID = txLogID
		if err := tx.PutOutput(o); err != nil {
			return 0, werr.Store("locking output", err)
		}
	}

	log.Debugf("Locked %d %s for log entry %d", len(toLock),
		pickNoun(len(toLock), "output", "outputs"), txLogID)
	return len(toLock), nil
}

// ReleaseOutputs returns every output locked by txLogID to Unspent.
func ReleaseOutputs(tx ReadWriteTx, txLogID uint32) (int, error) {
	locked, err := Outputs(tx, func(o *OutputRecord) bool {
		return o.Status == Locked && o.LockID == txLogID
	})
	if err != nil {
		return 0, werr.Store("listing locked outputs", err)
	}

	for i := range locked {
		o := &locked[i]
		o.Status = Unspent
		o.LockID = 0
		if err := tx.PutOutput(o); err != nil {
			return 0, werr.Store("releasing output", err)
		}
	}
	return len(locked), nil
}

// MarkConfirmed records that the transaction of log entry txLogID was seen
// on chain at height. Outputs it created become Unspent and outputs it
// locked become Spent. Marking an entry twice has no further effect.
func MarkConfirmed(tx ReadWriteTx, txLogID uint32, height uint64,
	ts time.Time) error {

	entry, err := tx.FetchTxLogEntry(txLogID)
	if err != nil {
		return werr.Store("fetching log entry", err)
	}
	if entry == nil {
		return werr.Newf(werr.ErrNegotiationNotFound,
			"no log entry %d", txLogID)
	}

	touched, err := Outputs(tx, func(o *OutputRecord) bool {
		return (o.TxLogID == txLogID && o.Status == Unconfirmed) ||
			(o.LockID == txLogID && o.Status == Locked)
	})
	if err != nil {
		return werr.Store("listing outputs", err)
	}
	for i := range touched {
		o := &touched[i]
		if o.Status == Unconfirmed {
			o.Status = Unspent
			o.Height = height
		} else {
			o.Status = Spent
		}
		if err := tx.PutOutput(o); err != nil {
			return werr.Store("updating output", err)
		}
	}

	if entry.Confirmed {
		return nil
	}
	entry.Confirmed = true
	ts = ts.UTC()
	entry.ConfirmationTS = &ts
	if entry.State.CanTransition(slate.StatePosted) {
		entry.State = slate.StatePosted
	}
	return werr.Store("updating log entry", tx.PutTxLogEntry(entry))
}

// CancelNegotiation abandons the negotiation of entry: its locks are
// released, the outputs it created and never saw confirmed are deleted, the
// entry is marked cancelled and the participant context is dropped.
// Cancelling a cancelled negotiation succeeds. Negotiations that were posted
// or confirmed fail with ErrAlreadyPosted.
func CancelNegotiation(tx ReadWriteTx, entry *TxLogEntry) error {
	switch {
	case entry.Confirmed || entry.State == slate.StatePosted:
		return werr.Newf(werr.ErrAlreadyPosted,
			"log entry %d was already posted", entry.ID)
	case entry.IsCancelled():
		return nil
	}

	released, err := ReleaseOutputs(tx, entry.ID)
	if err != nil {
		return err
	}

	created, err := Outputs(tx, func(o *OutputRecord) bool {
		return o.TxLogID == entry.ID && o.Status == Unconfirmed
	})
	if err != nil {
		return werr.Store("listing created outputs", err)
	}
	for _, o := range created {
		if err := tx.DeleteOutput(o.Commit); err != nil {
			return werr.Store("deleting output", err)
		}
	}

	entry.Type = entry.Type.Cancelled()
	if err := entry.SetState(slate.StateCancelled); err != nil {
		return werr.New(werr.ErrProtocolViolation, "", err)
	}
	if err := tx.PutTxLogEntry(entry); err != nil {
		return werr.Store("updating log entry", err)
	}

	err = tx.DeleteContext(entry.SlateID, entry.ParticipantID)
	if err != nil {
		return werr.Store("deleting context", err)
	}

	log.Infof("Cancelled log entry %d (slate %v): released %d, deleted %d "+
		"unconfirmed", entry.ID, entry.SlateID, released, len(created))
	return nil
}
