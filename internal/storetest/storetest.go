// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storetest is the behavior every wtxmgr.DB implementation must
// share. Store packages call Run from their tests with a constructor for a
// fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. It registers its own cleanup.
type Factory func(t *testing.T) wtxmgr.DB

// Run runs the contract against stores made by newDB.
func Run(t *testing.T, newDB Factory) {
	testCases := []struct {
		name string
		test func(t *testing.T, db wtxmgr.DB)
	}{
		{name: "outputs", test: testOutputs},
		{name: "tx log", test: testTxLog},
		{name: "duplicate slate", test: testDuplicateSlate},
		{name: "contexts", test: testContexts},
		{name: "stored tx", test: testStoredTx},
		{name: "child index", test: testChildIndex},
		{name: "rollback", test: testRollback},
		{name: "lock idempotent", test: testLockIdempotent},
		{name: "lock conflict", test: testLockConflict},
		{name: "cancel", test: testCancel},
		{name: "cancel posted", test: testCancelPosted},
		{name: "mark confirmed", test: testMarkConfirmed},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.test(t, newDB(t))
		})
	}
}

// Output returns an Unspent output of value at height.
func Output(value uint64, n uint32) wtxmgr.OutputRecord {
	return wtxmgr.OutputRecord{
		Commit: commit.CommitValue(value),
		KeyID:  keychain.OutputKeyID(0, n),
		Value:  value,
		Status: wtxmgr.Unspent,
		Height: 10,
	}
}

func update(t *testing.T, db wtxmgr.DB, f func(wtxmgr.ReadWriteTx) error) {
	t.Helper()
	require.NoError(t, db.Update(context.Background(), f))
}

func putOutputs(t *testing.T, db wtxmgr.DB, outputs ...wtxmgr.OutputRecord) {
	t.Helper()
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		for i := range outputs {
			if err := tx.PutOutput(&outputs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// newEntry logs a send negotiation and returns its entry.
func newEntry(t *testing.T, db wtxmgr.DB) *wtxmgr.TxLogEntry {
	t.Helper()

	var entry *wtxmgr.TxLogEntry
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		id, err := tx.NextTxLogID()
		if err != nil {
			return err
		}
		entry = &wtxmgr.TxLogEntry{
			ID:         id,
			SlateID:    uuid.New(),
			Type:       wtxmgr.TxSent,
			State:      slate.StateAwaitingContribution,
			CreationTS: time.Unix(1_700_000_000, 5).UTC(),
		}
		return tx.PutTxLogEntry(entry)
	})
	return entry
}

func fetchOutput(t *testing.T, db wtxmgr.DB,
	c commit.Commitment) *wtxmgr.OutputRecord {

	t.Helper()

	var o *wtxmgr.OutputRecord
	err := db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		var err error
		o, err = tx.FetchOutput(c)
		return err
	})
	require.NoError(t, err)
	return o
}

func fetchEntry(t *testing.T, db wtxmgr.DB, id uint32) *wtxmgr.TxLogEntry {
	t.Helper()

	var e *wtxmgr.TxLogEntry
	err := db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		var err error
		e, err = tx.FetchTxLogEntry(id)
		return err
	})
	require.NoError(t, err)
	return e
}

func testOutputs(t *testing.T, db wtxmgr.DB) {
	a, b := Output(3_000, 1), Output(2_000, 2)
	b.IsCoinbase = true
	b.LockHeight = 1_450
	b.TxLogID = 4
	putOutputs(t, db, a, b)

	require.Equal(t, &a, fetchOutput(t, db, a.Commit))
	require.Equal(t, &b, fetchOutput(t, db, b.Commit))
	require.Nil(t, fetchOutput(t, db, commit.CommitValue(1)))

	b.Status = wtxmgr.Locked
	b.LockID = 9
	putOutputs(t, db, b)
	require.Equal(t, &b, fetchOutput(t, db, b.Commit))

	var all []wtxmgr.OutputRecord
	err := db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		var err error
		all, err = wtxmgr.Outputs(tx, nil)
		return err
	})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Negative(t, compareCommit(all[0].Commit, all[1].Commit))

	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.DeleteOutput(a.Commit)
	})
	require.Nil(t, fetchOutput(t, db, a.Commit))
}

func compareCommit(a, b commit.Commitment) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func testTxLog(t *testing.T, db wtxmgr.DB) {
	first := newEntry(t, db)
	require.EqualValues(t, 1, first.ID)

	confirmed := time.Unix(1_700_000_600, 0).UTC()
	second := newEntry(t, db)
	second.Type = wtxmgr.TxReceived
	second.State = slate.StatePosted
	second.ParticipantID = 1
	second.ConfirmationTS = &confirmed
	second.Confirmed = true
	second.AmountCredited = 6_000_000_000
	second.NumOutputs = 1
	second.Fee = 8_000_000
	second.KernelExcess = commit.CommitValue(99)
	second.StoredTx = true
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.PutTxLogEntry(second)
	})
	require.EqualValues(t, 2, second.ID)

	require.Equal(t, first, fetchEntry(t, db, first.ID))
	require.Equal(t, second, fetchEntry(t, db, second.ID))
	require.Nil(t, fetchEntry(t, db, 77))

	err := db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		e, err := tx.FetchTxLogEntryBySlate(second.SlateID)
		require.NoError(t, err)
		require.Equal(t, second, e)

		e, err = tx.FetchTxLogEntryBySlate(uuid.New())
		require.NoError(t, err)
		require.Nil(t, e)

		entries, err := wtxmgr.TxLogEntries(tx, nil)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, first.ID, entries[0].ID)
		return nil
	})
	require.NoError(t, err)

	// Block rewards carry no slate id and must not collide.
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		for i := 0; i < 2; i++ {
			id, err := tx.NextTxLogID()
			if err != nil {
				return err
			}
			err = tx.PutTxLogEntry(&wtxmgr.TxLogEntry{
				ID:         id,
				Type:       wtxmgr.ConfirmedCoinbase,
				State:      slate.StatePosted,
				CreationTS: time.Unix(1_700_000_000, 0).UTC(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func testDuplicateSlate(t *testing.T, db wtxmgr.DB) {
	first := newEntry(t, db)

	err := db.Update(context.Background(), func(tx wtxmgr.ReadWriteTx) error {
		id, err := tx.NextTxLogID()
		if err != nil {
			return err
		}
		dup := *first
		dup.ID = id
		return tx.PutTxLogEntry(&dup)
	})
	require.ErrorIs(t, err, werr.ErrDuplicateNegotiation)
}

func testContexts(t *testing.T, db wtxmgr.DB) {
	ctx := &participant.Context{
		SlateID:       uuid.New(),
		ParticipantID: 1,
		Role:          participant.RoleReceiver,
		SecKey:        commit.BlindingFactor{1, 2, 3},
		SecNonce:      commit.BlindingFactor{4, 5, 6},
		Inputs:        []commit.Commitment{},
		Outputs:       []keychain.Identifier{keychain.OutputKeyID(0, 3)},
		Amount:        6_000_000_000,
		Fee:           8_000_000,
	}
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.PutContext(ctx)
	})

	err := db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		got, err := tx.FetchContext(ctx.SlateID, 1)
		require.NoError(t, err)
		require.Equal(t, ctx, got)

		got, err = tx.FetchContext(ctx.SlateID, 0)
		require.NoError(t, err)
		require.Nil(t, got)
		return nil
	})
	require.NoError(t, err)

	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.DeleteContext(ctx.SlateID, 1)
	})
	err = db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		got, err := tx.FetchContext(ctx.SlateID, 1)
		require.Nil(t, got)
		return err
	})
	require.NoError(t, err)
}

func testStoredTx(t *testing.T, db wtxmgr.DB) {
	tx := core.NewTransaction(core.KernelPlain)
	tx.Offset = commit.BlindingFactor{7}
	tx.AddInput(core.OutputCoinbase, commit.CommitValue(5))
	tx.AddOutput(core.Output{
		Commit: commit.CommitValue(4),
		Proof:  commit.RangeProof{1, 2, 3},
	})
	tx.Body.Kernels[0].Fee = 1

	slateID := uuid.New()
	update(t, db, func(rw wtxmgr.ReadWriteTx) error {
		return rw.PutStoredTx(slateID, tx)
	})

	err := db.View(context.Background(), func(r wtxmgr.ReadTx) error {
		got, err := r.FetchStoredTx(slateID)
		require.NoError(t, err)
		require.Equal(t, tx, got)

		got, err = r.FetchStoredTx(uuid.New())
		require.NoError(t, err)
		require.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func testChildIndex(t *testing.T, db wtxmgr.DB) {
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		last, err := tx.LastChildIndex()
		require.NoError(t, err)
		require.Zero(t, last)

		for want := uint32(1); want <= 3; want++ {
			got, err := tx.NextChildIndex()
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
		return nil
	})

	err := db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		last, err := tx.LastChildIndex()
		require.EqualValues(t, 3, last)
		return err
	})
	require.NoError(t, err)
}

func testRollback(t *testing.T, db wtxmgr.DB) {
	o := Output(1_000, 1)
	errAbort := errors.New("abort")

	err := db.Update(context.Background(), func(tx wtxmgr.ReadWriteTx) error {
		if err := tx.PutOutput(&o); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	require.Nil(t, fetchOutput(t, db, o.Commit))
}

func lock(db wtxmgr.DB, id uint32, commits ...commit.Commitment) (int,
	error) {

	var n int
	err := db.Update(context.Background(), func(tx wtxmgr.ReadWriteTx) error {
		var err error
		n, err = wtxmgr.LockOutputs(tx, id, commits)
		return err
	})
	return n, err
}

func testLockIdempotent(t *testing.T, db wtxmgr.DB) {
	a, b := Output(1_000, 1), Output(2_000, 2)
	putOutputs(t, db, a, b)
	entry := newEntry(t, db)

	n, err := lock(db, entry.ID, a.Commit, b.Commit)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = lock(db, entry.ID, a.Commit, b.Commit)
	require.NoError(t, err)
	require.Zero(t, n)

	for _, c := range []commit.Commitment{a.Commit, b.Commit} {
		o := fetchOutput(t, db, c)
		require.Equal(t, wtxmgr.Locked, o.Status)
		require.Equal(t, entry.ID, o.LockID)
	}
}

func testLockConflict(t *testing.T, db wtxmgr.DB) {
	a, b, c := Output(1_000, 1), Output(2_000, 2), Output(3_000, 3)
	putOutputs(t, db, a, b, c)
	first, second := newEntry(t, db), newEntry(t, db)

	_, err := lock(db, first.ID, a.Commit, b.Commit)
	require.NoError(t, err)

	// Overlapping on b: nothing is locked, not even c.
	_, err = lock(db, second.ID, c.Commit, b.Commit)
	require.ErrorIs(t, err, werr.ErrOutputConflict)
	require.Equal(t, wtxmgr.Unspent, fetchOutput(t, db, c.Commit).Status)

	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return wtxmgr.CancelNegotiation(tx, first)
	})

	_, err = lock(db, second.ID, c.Commit, b.Commit)
	require.NoError(t, err)
	require.Equal(t, second.ID, fetchOutput(t, db, b.Commit).LockID)
	require.Equal(t, wtxmgr.Unspent, fetchOutput(t, db, a.Commit).Status)
}

func testCancel(t *testing.T, db wtxmgr.DB) {
	entry := newEntry(t, db)
	spent := Output(5_000, 1)
	change := Output(1_000, 2)
	change.Status = wtxmgr.Unconfirmed
	change.TxLogID = entry.ID
	putOutputs(t, db, spent, change)
	_, err := lock(db, entry.ID, spent.Commit)
	require.NoError(t, err)

	ctx := &participant.Context{
		SlateID:       entry.SlateID,
		ParticipantID: entry.ParticipantID,
		Inputs:        []commit.Commitment{},
		Outputs:       []keychain.Identifier{},
	}
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.PutContext(ctx)
	})

	for i := 0; i < 2; i++ {
		update(t, db, func(tx wtxmgr.ReadWriteTx) error {
			return wtxmgr.CancelNegotiation(tx, entry)
		})
	}

	o := fetchOutput(t, db, spent.Commit)
	require.Equal(t, wtxmgr.Unspent, o.Status)
	require.Zero(t, o.LockID)
	require.Nil(t, fetchOutput(t, db, change.Commit))

	got := fetchEntry(t, db, entry.ID)
	require.Equal(t, wtxmgr.TxSentCancelled, got.Type)
	require.Equal(t, slate.StateCancelled, got.State)

	err = db.View(context.Background(), func(tx wtxmgr.ReadTx) error {
		c, err := tx.FetchContext(entry.SlateID, entry.ParticipantID)
		require.Nil(t, c)
		return err
	})
	require.NoError(t, err)
}

func testCancelPosted(t *testing.T, db wtxmgr.DB) {
	entry := newEntry(t, db)
	entry.State = slate.StatePosted
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.PutTxLogEntry(entry)
	})

	err := db.Update(context.Background(), func(tx wtxmgr.ReadWriteTx) error {
		return wtxmgr.CancelNegotiation(tx, entry)
	})
	require.ErrorIs(t, err, werr.ErrAlreadyPosted)
	require.Equal(t, slate.StatePosted, fetchEntry(t, db, entry.ID).State)
}

func testMarkConfirmed(t *testing.T, db wtxmgr.DB) {
	entry := newEntry(t, db)
	entry.State = slate.StateFinalized
	update(t, db, func(tx wtxmgr.ReadWriteTx) error {
		return tx.PutTxLogEntry(entry)
	})

	spent := Output(5_000, 1)
	change := Output(1_000, 2)
	change.Status = wtxmgr.Unconfirmed
	change.Height = 0
	change.TxLogID = entry.ID
	putOutputs(t, db, spent, change)
	_, err := lock(db, entry.ID, spent.Commit)
	require.NoError(t, err)

	ts := time.Unix(1_700_001_000, 0).UTC()
	for i := 0; i < 2; i++ {
		update(t, db, func(tx wtxmgr.ReadWriteTx) error {
			return wtxmgr.MarkConfirmed(tx, entry.ID, 42, ts)
		})
	}

	require.Equal(t, wtxmgr.Spent, fetchOutput(t, db, spent.Commit).Status)
	o := fetchOutput(t, db, change.Commit)
	require.Equal(t, wtxmgr.Unspent, o.Status)
	require.EqualValues(t, 42, o.Height)

	got := fetchEntry(t, db, entry.ID)
	require.True(t, got.Confirmed)
	require.Equal(t, &ts, got.ConfirmationTS)
	require.Equal(t, slate.StatePosted, got.State)

	err = db.Update(context.Background(), func(tx wtxmgr.ReadWriteTx) error {
		return wtxmgr.MarkConfirmed(tx, 999, 42, ts)
	})
	require.ErrorIs(t, err, werr.ErrNegotiationNotFound)
}
