// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/google/uuid"

	// Register the bbolt backed walletdb driver.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

// DefaultDBTimeout is how long opening the database waits for its file
// lock.
const DefaultDBTimeout = 60 * time.Second

// Store is a DB kept in a walletdb namespace.
type Store struct {
	db walletdb.DB
}

var _ DB = (*Store)(nil)

// Create creates a new bbolt store at path.
func Create(path string, timeout time.Duration) (*Store, error) {
	db, err := walletdb.Create("bdb", path, true, timeout, false)
	if err != nil {
		return nil, werr.Store("creating database", err)
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing bbolt store at path.
func Open(path string, timeout time.Duration) (*Store, error) {
	db, err := walletdb.Open("bdb", path, true, timeout, false)
	if err != nil {
		return nil, werr.Store("opening database", err)
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore uses db for storage, creating the namespace if it does not exist.
func NewStore(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		if tx.ReadWriteBucket(namespaceKey) != nil {
			return checkVersion(tx.ReadWriteBucket(namespaceKey))
		}
		return createNamespace(tx)
	})
	if err != nil {
		return nil, werr.Store("initializing store", err)
	}
	return &Store{db: db}, nil
}

// Drop removes every output, log entry and negotiation from the bbolt store
// at path and leaves an empty store behind. The child key index survives so
// outputs created afterwards never reuse a key.
func Drop(path string, timeout time.Duration) error {
	db, err := walletdb.Open("bdb", path, true, timeout, false)
	if err != nil {
		return werr.Store("opening database", err)
	}
	defer db.Close()

	return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		var child []byte
		if ns := tx.ReadWriteBucket(namespaceKey); ns != nil {
			child = bytes.Clone(ns.Get(rootChildIndex))
		}

		err := tx.DeleteTopLevelBucket(namespaceKey)
		if err != nil && !errors.Is(err, walletdb.ErrBucketNotFound) {
			return err
		}
		if err := createNamespace(tx); err != nil {
			return err
		}
		if child == nil {
			return nil
		}
		log.Debugf("Keeping child index %x", child)
		return tx.ReadWriteBucket(namespaceKey).Put(rootChildIndex, child)
	})
}

func createNamespace(tx walletdb.ReadWriteTx) error {
	ns, err := tx.CreateTopLevelBucket(namespaceKey)
	if err != nil {
		return err
	}
	for _, name := range [][]byte{
		bucketOutputs, bucketTxLog, bucketSlateIdx, bucketContexts,
		bucketStoredTxs,
	} {
		if _, err := ns.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}

	v := make([]byte, 4)
	byteOrder.PutUint32(v, LatestVersion)
	if err := ns.Put(rootVersion, v); err != nil {
		return err
	}
	date := make([]byte, 8)
	byteOrder.PutUint64(date, uint64(time.Now().Unix()))
	return ns.Put(rootCreateDate, date)
}

func checkVersion(ns walletdb.ReadBucket) error {
	version, err := readUint32(ns.Get(rootVersion), rootVersion)
	if err != nil {
		return err
	}
	if version != LatestVersion {
		return werr.Newf(werr.ErrStoreFailure,
			"unsupported store version %d", version)
	}
	return nil
}

// View implements DB.
func (s *Store) View(ctx context.Context, f func(ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		return f(&kvReadTx{ns: tx.ReadBucket(namespaceKey)})
	})
}

// Update implements DB.
func (s *Store) Update(ctx context.Context,
	f func(ReadWriteTx) error) error {

	if err := ctx.Err(); err != nil {
		return err
	}
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(namespaceKey)
		return f(&kvReadWriteTx{kvReadTx{ns: ns}, ns})
	})
}

// Close implements DB.
func (s *Store) Close() error {
	return s.db.Close()
}

type kvReadTx struct {
	ns walletdb.ReadBucket
}

func (t *kvReadTx) FetchOutput(c commit.Commitment) (*OutputRecord, error) {
	v := t.ns.NestedReadBucket(bucketOutputs).Get(c[:])
	if v == nil {
		return nil, nil
	}
	var o OutputRecord
	if err := readOutput(c[:], v, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *kvReadTx) ForEachOutput(f func(*OutputRecord) error) error {
	b := t.ns.NestedReadBucket(bucketOutputs)
	return b.ForEach(func(k, v []byte) error {
		var o OutputRecord
		if err := readOutput(k, v, &o); err != nil {
			return err
		}
		return f(&o)
	})
}

func (t *kvReadTx) FetchTxLogEntry(id uint32) (*TxLogEntry, error) {
	k := keyTxLog(id)
	v := t.ns.NestedReadBucket(bucketTxLog).Get(k)
	if v == nil {
		return nil, nil
	}
	var e TxLogEntry
	if err := readTxLog(k, v, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *kvReadTx) FetchTxLogEntryBySlate(slateID uuid.UUID) (*TxLogEntry,
	error) {

	v := t.ns.NestedReadBucket(bucketSlateIdx).Get(slateID[:])
	if v == nil {
		return nil, nil
	}
	id, err := readUint32(v, bucketSlateIdx)
	if err != nil {
		return nil, err
	}
	return t.FetchTxLogEntry(id)
}

func (t *kvReadTx) ForEachTxLogEntry(f func(*TxLogEntry) error) error {
	b := t.ns.NestedReadBucket(bucketTxLog)
	return b.ForEach(func(k, v []byte) error {
		var e TxLogEntry
		if err := readTxLog(k, v, &e); err != nil {
			return err
		}
		return f(&e)
	})
}

func (t *kvReadTx) FetchContext(slateID uuid.UUID,
	participantID uint64) (*participant.Context, error) {

	b := t.ns.NestedReadBucket(bucketContexts)
	v := b.Get(keyContext(slateID, participantID))
	if v == nil {
		return nil, nil
	}
	return participant.Deserialize(v)
}

func (t *kvReadTx) FetchStoredTx(slateID uuid.UUID) (*core.Transaction,
	error) {

	v := t.ns.NestedReadBucket(bucketStoredTxs).Get(slateID[:])
	if v == nil {
		return nil, nil
	}
	var tx core.Transaction
	if err := tx.Deserialize(bytes.NewReader(v)); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (t *kvReadTx) LastChildIndex() (uint32, error) {
	return readUint32(t.ns.Get(rootChildIndex), rootChildIndex)
}

type kvReadWriteTx struct {
	kvReadTx
	ns walletdb.ReadWriteBucket
}

func (t *kvReadWriteTx) PutOutput(o *OutputRecord) error {
	b := t.ns.NestedReadWriteBucket(bucketOutputs)
	return b.Put(o.Commit[:], valueOutput(o))
}

func (t *kvReadWriteTx) DeleteOutput(c commit.Commitment) error {
	return t.ns.NestedReadWriteBucket(bucketOutputs).Delete(c[:])
}

func (t *kvReadWriteTx) NextTxLogID() (uint32, error) {
	seq, err := t.ns.NestedReadWriteBucket(bucketTxLog).NextSequence()
	if err != nil {
		return 0, err
	}
	return uint32(seq), nil
}

func (t *kvReadWriteTx) PutTxLogEntry(e *TxLogEntry) error {
	if e.ID == 0 {
		return errors.New("log entry has no id")
	}

	idx := t.ns.NestedReadWriteBucket(bucketSlateIdx)
	if e.SlateID != uuid.Nil {
		if v := idx.Get(e.SlateID[:]); v != nil {
			id, err := readUint32(v, bucketSlateIdx)
			if err != nil {
				return err
			}
			if id != e.ID {
				return werr.Newf(werr.ErrDuplicateNegotiation,
					"slate %v already logged as entry %d",
					e.SlateID, id)
			}
		}
		if err := idx.Put(e.SlateID[:], keyTxLog(e.ID)); err != nil {
			return err
		}
	}

	b := t.ns.NestedReadWriteBucket(bucketTxLog)
	return b.Put(keyTxLog(e.ID), valueTxLog(e))
}

func (t *kvReadWriteTx) NextChildIndex() (uint32, error) {
	last, err := t.LastChildIndex()
	if err != nil {
		return 0, err
	}
	v := make([]byte, 4)
	byteOrder.PutUint32(v, last+1)
	if err := t.ns.Put(rootChildIndex, v); err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (t *kvReadWriteTx) PutContext(ctx *participant.Context) error {
	v, err := ctx.Serialize()
	if err != nil {
		return err
	}
	b := t.ns.NestedReadWriteBucket(bucketContexts)
	return b.Put(keyContext(ctx.SlateID, ctx.ParticipantID), v)
}

func (t *kvReadWriteTx) DeleteContext(slateID uuid.UUID,
	participantID uint64) error {

	b := t.ns.NestedReadWriteBucket(bucketContexts)
	return b.Delete(keyContext(slateID, participantID))
}

func (t *kvReadWriteTx) PutStoredTx(slateID uuid.UUID,
	tx *core.Transaction) error {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	return t.ns.NestedReadWriteBucket(bucketStoredTxs).Put(
		slateID[:], buf.Bytes(),
	)
}
